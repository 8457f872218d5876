package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"harmonia.org/internal/audit"
	"harmonia.org/internal/roles"
)

type workgroupRequest struct {
	Name string `json:"name"`
}

type workgroupMemberRequest struct {
	MemberID int `json:"member_id"`
}

func (a *API) handleWorkgroupList(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	list, err := a.store.ListWorkgroups(r.Context(), sess)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (a *API) handleWorkgroupCreate(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	var req workgroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	wg, err := a.store.CreateWorkgroup(r.Context(), sess, req.Name)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "workgroups.created", map[string]any{
		"workgroup_id": wg.ID,
		"name":         wg.Name,
	})
	w.Header().Set("Location", "/api/workgroups/"+strconv.Itoa(wg.ID))
	writeJSON(w, http.StatusCreated, wg)
}

func (a *API) handleWorkgroupGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	wg, err := a.store.FindWorkgroup(r.Context(), sess, id)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wg)
}

func (a *API) handleWorkgroupRename(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	var req workgroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	wg, err := a.store.RenameWorkgroup(r.Context(), sess, id, req.Name)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "workgroups.renamed", map[string]any{
		"workgroup_id": id,
		"name":         wg.Name,
	})
	writeJSON(w, http.StatusOK, wg)
}

func (a *API) handleWorkgroupDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if err := a.store.DeleteWorkgroup(r.Context(), sess, id); err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "workgroups.deleted", map[string]any{"workgroup_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWorkgroupMembers(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	list, err := a.store.WorkgroupMembers(r.Context(), sess, id)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (a *API) handleWorkgroupMemberAdd(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	var req workgroupMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if req.MemberID <= 0 {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "member_id is required")
		return
	}
	if err := a.store.AddWorkgroupMember(r.Context(), sess, id, req.MemberID); err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "workgroups.member_added", map[string]any{
		"workgroup_id": id,
		"member_id":    req.MemberID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWorkgroupMemberRemove(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	memberID, err := pathID(r, "member")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if err := a.store.RemoveWorkgroupMember(r.Context(), sess, id, memberID); err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "workgroups.member_removed", map[string]any{
		"workgroup_id": id,
		"member_id":    memberID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWorkgroupRoleAssociate(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	var req associateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	role, err := roles.Parse(strings.TrimSpace(req.Role))
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if err := a.store.AssociateWorkgroupRole(r.Context(), sess, id, role); err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "roles.workgroup_associated", map[string]any{
		"class":        roles.ClassWorkgroup,
		"workgroup_id": id,
		"role":         role,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWorkgroupRoleDissociate(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	role, err := roles.Parse(r.PathValue("role"))
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if err := a.store.DissociateWorkgroupRole(r.Context(), sess, id, role); err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "roles.workgroup_dissociated", map[string]any{
		"class":        roles.ClassWorkgroup,
		"workgroup_id": id,
		"role":         role,
	})
	w.WriteHeader(http.StatusNoContent)
}
