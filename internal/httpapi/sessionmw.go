package httpapi

import (
	"bytes"
	"net/http"
	"strings"

	"harmonia.org/internal/fault"
	"harmonia.org/internal/obs"
	"harmonia.org/internal/session"
)

// bufferedWriter holds the response back until the session's fate is known,
// so a failed commit can still surface as a 500 instead of trailing a body
// that claims success.
type bufferedWriter struct {
	http.ResponseWriter
	code        int
	buf         bytes.Buffer
	wroteHeader bool
}

func (b *bufferedWriter) WriteHeader(code int) {
	if !b.wroteHeader {
		b.code = code
		b.wroteHeader = true
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.buf.Write(p)
}

func (b *bufferedWriter) flush() {
	b.ResponseWriter.WriteHeader(b.code)
	_, _ = b.buf.WriteTo(b.ResponseWriter)
}

// withSession owns the request's database session lifecycle. The session is
// prepared before the handler and finalized after it: any response status
// from 400 up rolls the transaction back, everything else commits. Handlers
// never finalize; they only Run statements. Requests outside the API surface
// carry no session at all.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := a.sessions.Prepare(r.Context())
		if err != nil {
			writeFault(w, r, err)
			return
		}

		bw := &bufferedWriter{ResponseWriter: w, code: http.StatusOK}
		finished := false
		defer func() {
			if finished {
				return
			}
			// Handler panicked: discard its work, then let the
			// wrapping infrastructure handle the panic itself.
			_ = sess.Rollback()
		}()

		next.ServeHTTP(bw, r.WithContext(session.ContextWith(r.Context(), sess)))
		finished = true

		if bw.code >= 400 {
			if err := sess.Rollback(); err != nil {
				obs.LogRequest(map[string]any{
					"level": "error",
					"msg":   "session_rollback_failed",
					"error": err.Error(),
				})
			}
			bw.flush()
			return
		}
		if err := sess.Commit(); err != nil {
			obs.LogRequest(map[string]any{
				"level": "error",
				"msg":   "session_commit_failed",
				"error": err.Error(),
			})
			// The handler's cookies and body described work that was
			// just discarded.
			w.Header().Del("Set-Cookie")
			writeFault(w, r, fault.Database(err))
			return
		}
		bw.flush()
	})
}
