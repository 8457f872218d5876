package httpapi

import (
	"net/http"
	"strconv"

	"harmonia.org/internal/audit"
	"harmonia.org/internal/authn"
	"harmonia.org/internal/pages"
	"harmonia.org/internal/roles"
)

type pageRequest struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Published bool   `json:"published"`
}

// canSeeDrafts reports whether the caller may read unpublished pages.
func canSeeDrafts(r *http.Request) bool {
	claims, ok := authn.ClaimsFromContext(r.Context())
	if !ok {
		return false
	}
	return claims.Roles.Intersects(roles.NewComposition(
		roles.OrchestraCommittee, roles.Director, roles.Operator))
}

func (a *API) handlePageList(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	list, err := a.store.ListPages(r.Context(), sess, !canSeeDrafts(r))
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (a *API) handlePageGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	page, err := a.store.FindPage(r.Context(), sess, id, !canSeeDrafts(r))
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handlePageCreate(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	var req pageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	page, err := a.store.CreatePage(r.Context(), sess, req.Title, req.Content)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "pages.created", map[string]any{"page_id": page.ID})
	w.Header().Set("Location", "/api/pages/"+strconv.Itoa(page.ID))
	writeJSON(w, http.StatusCreated, page)
}

func (a *API) handlePageUpdate(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	var req pageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	page, err := a.store.UpdatePage(r.Context(), sess, pages.Page{
		ID:        id,
		Title:     req.Title,
		Content:   req.Content,
		Published: req.Published,
	})
	if err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "pages.updated", map[string]any{"page_id": id})
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handlePageDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if err := a.store.DeletePage(r.Context(), sess, id); err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "pages.deleted", map[string]any{"page_id": id})
	w.WriteHeader(http.StatusNoContent)
}
