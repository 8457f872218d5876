package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"harmonia.org/internal/audit"
	"harmonia.org/internal/fault"
	"harmonia.org/internal/members"
	"harmonia.org/internal/store/pg"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the error envelope with a stable kind identifier.
func writeError(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	payload := map[string]any{
		"kind":    kind,
		"message": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeFault maps a backend error onto the wire. Store absence sentinels
// become 404s; everything else follows the error's kind, with internals
// masked.
func writeFault(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, members.ErrNotFound),
		errors.Is(err, pg.ErrWorkgroupNotFound),
		errors.Is(err, pg.ErrPageNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	kind := fault.KindOf(err)
	writeError(w, r, kind.StatusCode(), kind.SimplifiedString(), fault.MessageOf(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// pathID parses the named integer path segment.
func pathID(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.PathValue(name))
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fault.Badf("%s must be a positive integer", name)
	}
	return id, nil
}
