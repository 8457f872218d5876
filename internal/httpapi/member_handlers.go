package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"harmonia.org/internal/audit"
	"harmonia.org/internal/members"
	"harmonia.org/internal/roles"
)

type associateRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleMemberSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	result, err := a.store.Search(r.Context(), sess, q.Get("q"), page, a.cfg.Search.PageSize)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleMemberRegister(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	var reg members.Registration
	if err := decodeJSON(w, r, &reg); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	activation := uuid.NewString()
	member, err := a.store.Register(r.Context(), sess, reg, activation)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "members.registered", map[string]any{
		"member_id":     member.ID,
		"email_address": member.EmailAddress,
	})
	w.Header().Set("Location", "/api/members/"+strconv.Itoa(member.ID))
	writeJSON(w, http.StatusCreated, map[string]any{
		"member": member,
		// Handed to the new member out of band; valid for one day.
		"activation_string": activation,
	})
}

func (a *API) handleMemberGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	member, err := a.store.FindByID(r.Context(), sess, id)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (a *API) handleMemberUpdate(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	var m members.Member
	if err := decodeJSON(w, r, &m); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	m.ID = id
	updated, err := a.store.Update(r.Context(), sess, m)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "members.updated", map[string]any{"member_id": id})
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleMemberDeactivate(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if err := a.store.Deactivate(r.Context(), sess, id); err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "members.deactivated", map[string]any{"member_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMemberRolesList(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeFault(w, r, err)
		return
	}
	direct, err := a.store.MemberRoles(r.Context(), sess, id)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles.NewComposition(direct...).Slice()})
}

func (a *API) handleMemberRoleAssociate(w http.ResponseWriter, r *http.Request) {
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
	if err := a.store.AssociateMemberRole(r.Context(), sess, id, role); err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "roles.associated", map[string]any{
		"class":     roles.ClassMember,
		"member_id": id,
		"role":      role,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMemberRoleDissociate(w http.ResponseWriter, r *http.Request) {
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
	if err := a.store.DissociateMemberRole(r.Context(), sess, id, role); err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "roles.dissociated", map[string]any{
		"class":     roles.ClassMember,
		"member_id": id,
		"role":      role,
	})
	w.WriteHeader(http.StatusNoContent)
}
