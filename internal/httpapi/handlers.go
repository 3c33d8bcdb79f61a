// Package httpapi is the HTTP layer: routing, middleware, request/response
// envelopes and the policy gate in front of admin operations.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/redis/go-redis/v9"

	"gatekeep.dev/internal/auth"
	"gatekeep.dev/internal/cache"
	"gatekeep.dev/internal/obs"
	"gatekeep.dev/internal/policy"
)

const maxBodyBytes = 1 << 20

// ReadyProbe checks downstream dependencies for the readiness endpoint.
// Nil fields are skipped.
type ReadyProbe struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Config wires the API's collaborators.
type Config struct {
	Auth     *auth.Service
	Policies *policy.Manager
	Cache    cache.Cache
	Limiter  RateLimiter
	Ready    ReadyProbe
	Version  string
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	svc      *auth.Service
	policies *policy.Manager
	cache    cache.Cache
	limiter  RateLimiter
	ready    ReadyProbe
	version  string
}

func New(cfg Config) *API {
	a := &API{
		mux:      http.NewServeMux(),
		svc:      cfg.Auth,
		policies: cfg.Policies,
		cache:    cfg.Cache,
		limiter:  cfg.Limiter,
		ready:    cfg.Ready,
		version:  cfg.Version,
	}
	if a.limiter == nil {
		a.limiter = NewMemoryLimiter()
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	// Auth surface. Credential endpoints carry the tight auth window;
	// recovery endpoints their own budgets.
	a.handle("POST /api/auth/register", a.limited(scopeAuth, a.handleRegister))
	a.handle("POST /api/auth/login", a.limited(scopeAuth, a.handleLogin))
	a.handle("PATCH /api/auth/refresh", a.limited(scopeAuth, a.validateRefreshToken(a.handleRefresh)))
	a.handle("POST /api/auth/logout", a.validateToken(a.handleLogout))
	a.handle("GET /api/auth/me", a.validateToken(a.requirePermission("users", "read", a.handleMe)))
	a.handle("GET /api/auth/sessions", a.validateToken(a.requirePermission("users", "read", a.handleSessions)))
	a.handle("POST /api/auth/forgot-password", a.limited(scopePassword, a.handleForgotPassword))
	a.handle("POST /api/auth/reset-password", a.limited(scopePassword, a.handleResetPassword))
	a.handle("POST /api/auth/verify-email", a.limited(scopeEmail, a.handleVerifyEmail))
	a.handle("POST /api/auth/resend-verification", a.limited(scopeEmail, a.handleResendVerification))

	// Admin surface: every route passes the bearer check, the admin rate
	// window and a casbin permission.
	a.admin("GET /api/admin/policies", "policies", "read", a.handleListPolicies)
	a.admin("POST /api/admin/policies", "policies", "create", a.handleAddPolicy)
	a.admin("DELETE /api/admin/policies", "policies", "delete", a.handleRemovePolicy)
	a.admin("POST /api/admin/policies/reload", "policies", "reload", a.handleReloadPolicies)
	a.admin("POST /api/admin/roles/assign", "roles", "assign", a.handleAssignRole)
	a.admin("POST /api/admin/roles/remove", "roles", "remove", a.handleRemoveRole)
	a.admin("GET /api/admin/roles/{role}/users", "roles", "read", a.handleRoleUsers)
	a.admin("GET /api/admin/users", "users", "read", a.handleListUsers)
	a.admin("GET /api/admin/users/{userId}/roles", "roles", "read", a.handleUserRoles)
	a.admin("PATCH /api/admin/users/{userId}/role", "users", "update", a.handleUpdateUserRole)
	a.admin("POST /api/admin/cache/clear", "cache", "clear", a.handleClearCache)
	a.admin("DELETE /api/admin/cache/users/{userId}", "cache", "clear", a.handleClearUserCache)
	a.admin("GET /api/admin/cache/stats", "cache", "read", a.handleCacheStats)

	return a
}

func (a *API) handle(pattern string, h http.HandlerFunc) {
	a.mux.Handle(pattern, a.limited(scopeAPI, h))
}

func (a *API) admin(pattern, object, action string, h http.HandlerFunc) {
	a.mux.Handle(pattern, a.limited(scopeAdmin, a.validateToken(a.requirePermission(object, action, h))))
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, maxBodyBytes)
	h = obs.Instrument(h)
	h = Logging(h)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = RequestID(h)
	return h
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gatekeep-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- response envelope ---

type successEnvelope struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
	Data    any    `json:"data"`
}

type errorEnvelope struct {
	Message string   `json:"message"`
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, code int, message string, data any) {
	writeJSON(w, code, successEnvelope{Message: message, Success: true, Data: data})
}

func writeError(w http.ResponseWriter, code int, message string, errs ...string) {
	if len(errs) == 0 {
		errs = []string{message}
	}
	writeJSON(w, code, errorEnvelope{Message: message, Success: false, Errors: errs})
}

func decodeJSON(r *http.Request, dst any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func deviceInfo(r *http.Request) auth.DeviceInfo {
	return auth.DeviceInfo{
		DeviceName: r.Header.Get("X-Device-Name"),
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
	}
}

// serverError hides internals behind a generic message and logs the cause.
func serverError(w http.ResponseWriter, r *http.Request, err error) {
	obs.Error("request failed", map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"error":  err.Error(),
	})
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

