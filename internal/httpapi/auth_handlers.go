package httpapi

import (
	"net/http"
	"strings"

	"harmonia.org/internal/audit"
	"harmonia.org/internal/authn"
	"harmonia.org/internal/fault"
	"harmonia.org/internal/session"
)

type loginRequest struct {
	EmailAddress string `json:"email_address"`
	OneTimeCode  string `json:"one_time_code"`
}

type activateRequest struct {
	ActivationString string `json:"activation_string"`
}

func requestSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		writeFault(w, r, fault.Internal("request carries no database session", nil))
		return nil, false
	}
	return sess, true
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	req.EmailAddress = strings.TrimSpace(req.EmailAddress)
	if req.EmailAddress == "" || strings.TrimSpace(req.OneTimeCode) == "" {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "email_address and one_time_code are required")
		return
	}

	result, err := a.auth.Login(r.Context(), sess, req.EmailAddress, req.OneTimeCode)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.refused", map[string]any{
			"email_address": req.EmailAddress,
		})
		writeFault(w, r, err)
		return
	}
	for _, c := range result.Cookies {
		http.SetCookie(w, c)
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"email_address": result.Member.EmailAddress,
		"roles":         result.CompositeRoles.Slice(),
	})
	writeJSON(w, http.StatusOK, result)
}

// handleRefresh renews tokens approaching expiry. Both token cookies must be
// presented; the refresh token proves the principal, and the access token's
// remaining lifetime decides whether it is reissued.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	access, err1 := r.Cookie(authn.CookieAccess)
	refresh, err2 := r.Cookie(authn.CookieRefresh)
	if err1 != nil || err2 != nil || access.Value == "" || refresh.Value == "" {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "both token cookies are required")
		return
	}

	result, err := a.auth.Refresh(r.Context(), sess, access.Value, refresh.Value)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	for _, c := range result.Cookies {
		http.SetCookie(w, c)
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	for _, c := range a.auth.Logout() {
		http.SetCookie(w, c)
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleActivate(w http.ResponseWriter, r *http.Request) {
	sess, ok := requestSession(w, r)
	if !ok {
		return
	}
	var req activateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if strings.TrimSpace(req.ActivationString) == "" {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "activation_string is required")
		return
	}

	uri, err := a.auth.Enroll(r.Context(), sess, req.ActivationString)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.activated", nil)
	writeJSON(w, http.StatusOK, map[string]any{"provisioning_uri": uri})
}
