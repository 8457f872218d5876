package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"harmonia.org/internal/authn"
	"harmonia.org/internal/config"
	"harmonia.org/internal/obs"
	"harmonia.org/internal/policy"
	"harmonia.org/internal/session"
	"harmonia.org/internal/store/pg"
)

// ReadyProbe reports whether the process can serve traffic.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	store    *pg.Store
	sessions session.Manager
	auth     *authn.Service

	policy *policy.Policy
	cache  *policy.Cache

	cfg        *config.Config
	readyProbe ReadyProbe
	version    string
}

func New(cfg *config.Config, store *pg.Store, sessions session.Manager, auth *authn.Service, version string) (*API, error) {
	cache, err := policy.NewCache(cfg.Policy.CacheCapacity)
	if err != nil {
		return nil, err
	}
	a := &API{
		mux:      http.NewServeMux(),
		store:    store,
		sessions: sessions,
		auth:     auth,
		policy:   routePolicy(),
		cache:    cache,
		cfg:      cfg,
		version:  version,
	}
	if store != nil {
		a.readyProbe = ReadyProbe{DB: store.DB()}
	}

	// health/ready
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	// token lifecycle
	login := http.HandlerFunc(a.handleLogin)
	a.mux.Handle("POST /api/auth/login",
		RateLimit(login, cfg.RateLimit.Burst, cfg.RateLimit.PerSecond))
	a.mux.HandleFunc("POST /api/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("POST /api/auth/logout", a.handleLogout)
	a.mux.HandleFunc("POST /api/auth/activate", a.handleActivate)

	// members
	a.mux.HandleFunc("GET /api/members", a.handleMemberSearch)
	a.mux.HandleFunc("POST /api/members", a.handleMemberRegister)
	a.mux.HandleFunc("GET /api/members/{id}", a.handleMemberGet)
	a.mux.HandleFunc("PUT /api/members/{id}", a.handleMemberUpdate)
	a.mux.HandleFunc("DELETE /api/members/{id}", a.handleMemberDeactivate)
	a.mux.HandleFunc("GET /api/members/{id}/roles", a.handleMemberRolesList)
	a.mux.HandleFunc("POST /api/members/{id}/roles", a.handleMemberRoleAssociate)
	a.mux.HandleFunc("DELETE /api/members/{id}/roles/{role}", a.handleMemberRoleDissociate)

	// workgroups
	a.mux.HandleFunc("GET /api/workgroups", a.handleWorkgroupList)
	a.mux.HandleFunc("POST /api/workgroups", a.handleWorkgroupCreate)
	a.mux.HandleFunc("GET /api/workgroups/{id}", a.handleWorkgroupGet)
	a.mux.HandleFunc("PUT /api/workgroups/{id}", a.handleWorkgroupRename)
	a.mux.HandleFunc("DELETE /api/workgroups/{id}", a.handleWorkgroupDelete)
	a.mux.HandleFunc("GET /api/workgroups/{id}/members", a.handleWorkgroupMembers)
	a.mux.HandleFunc("POST /api/workgroups/{id}/members", a.handleWorkgroupMemberAdd)
	a.mux.HandleFunc("DELETE /api/workgroups/{id}/members/{member}", a.handleWorkgroupMemberRemove)
	a.mux.HandleFunc("POST /api/workgroups/{id}/roles", a.handleWorkgroupRoleAssociate)
	a.mux.HandleFunc("DELETE /api/workgroups/{id}/roles/{role}", a.handleWorkgroupRoleDissociate)

	// pages
	a.mux.HandleFunc("GET /api/pages", a.handlePageList)
	a.mux.HandleFunc("POST /api/pages", a.handlePageCreate)
	a.mux.HandleFunc("GET /api/pages/{id}", a.handlePageGet)
	a.mux.HandleFunc("PUT /api/pages/{id}", a.handlePageUpdate)
	a.mux.HandleFunc("DELETE /api/pages/{id}", a.handlePageDelete)

	return a, nil
}

// Handler assembles the middleware chain around the mux. The gate runs
// before the session so denied requests never check out a connection.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withSession(h)
	h = a.gate(h)
	h = MaxBodyBytes(h, 1<<20)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "harmonia-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
