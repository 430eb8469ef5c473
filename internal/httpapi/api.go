package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"atlasdesk.org/internal/auth"
	"atlasdesk.org/internal/obs"
	"atlasdesk.org/internal/registry"
)

// ReadyProbe checks dependency readiness, typically a database ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Services bundles the identity core the HTTP layer fronts.
type Services struct {
	Mode          auth.Mode
	Registry      *registry.Service
	Tokens        *auth.TokenService
	ServiceTokens *auth.ServiceTokenService
	Login         *auth.LoginService
	Federated     *auth.FederatedValidator
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	svc        Services
}

// New wires routes over the identity services.
func New(rp ReadyProbe, version string, svc Services) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		svc:        svc,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	// Identity registry surface.
	a.mux.HandleFunc("/v1/identity/register", a.handleRegister)
	a.mux.HandleFunc("/v1/identity/token", a.handleServiceToken)
	a.mux.HandleFunc("/v1/identity/validate/", a.handleValidate)
	a.mux.HandleFunc("/v1/identity/", a.handleGetRecord)

	// Credentialed auth surface.
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/password-reset", a.handlePasswordReset)
	a.mux.HandleFunc("/v1/auth/password", a.handlePasswordChange)

	// End-user surface, authenticated per the active mode.
	a.mux.Handle("/v1/me", a.withUserAuth(http.HandlerFunc(a.handleMe)))

	// Tool-call surface used by the agent gateway; always service-token
	// gated, regardless of the end-user mode.
	a.mux.Handle("/v1/tools/whoami", a.withServiceToken(http.HandlerFunc(a.handleToolWhoami)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 20, 10)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "atlasdesk-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
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

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "atlasdesk-api",
		"mode":    a.svc.Mode.String(),
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// handleMe returns the uniform per-request identity view.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": identity.Authenticated,
		"id":            identity.ID,
		"display_name":  identity.GetDisplayName(),
		"roles":         identity.Roles,
	})
}

// handleToolWhoami echoes the service-token claims back to the gateway.
func (a *API) handleToolWhoami(w http.ResponseWriter, r *http.Request) {
	claims, ok := serviceClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"correlation_id": claims.CorrelationID(),
		"mode":           claims.Mode,
		"session_id":     claims.SessionID,
	})
}
