package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"atlasdesk.org/internal/audit"
	"atlasdesk.org/internal/auth"
	"atlasdesk.org/internal/obs"
	"atlasdesk.org/internal/registry"
)

type registerRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Organization string `json:"organization,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

type registerResponse struct {
	CorrelationID string    `json:"correlation_id"`
	ServiceToken  string    `json:"service_token"`
	Mode          string    `json:"mode"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// handleRegister creates (or finds) an anonymous correlation record and
// hands back a fresh service token for it in one round trip.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.svc.Mode == auth.ModeEntraExternalID {
		handleAuthError(w, r, auth.ErrNotSupported)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	correlationID, err := a.svc.Registry.RegisterAnonymous(r.Context(), req.Name, req.Email, req.Organization, req.SessionID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	token, expiresAt, err := a.svc.ServiceTokens.IssueServiceToken(r.Context(), correlationID, a.svc.Mode, req.SessionID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	obs.TokenIssued("service")

	ctx := audit.WithCorrelationID(r.Context(), correlationID)
	_ = audit.LogEvent(ctx, "identity.registered", map[string]any{
		"mode":  a.svc.Mode.String(),
		"email": req.Email,
	})

	writeJSON(w, http.StatusOK, registerResponse{
		CorrelationID: correlationID,
		ServiceToken:  token,
		Mode:          a.svc.Mode.String(),
		ExpiresAt:     expiresAt,
	})
}

type serviceTokenRequest struct {
	CorrelationID string `json:"correlation_id"`
	Mode          string `json:"mode,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
}

type serviceTokenResponse struct {
	ServiceToken string    `json:"service_token"`
	Mode         string    `json:"mode"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// handleServiceToken issues a service token for an already registered
// correlation id.
func (a *API) handleServiceToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req serviceTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	mode := a.svc.Mode
	if parsed, ok := auth.ParseMode(req.Mode); ok {
		mode = parsed
	}

	token, expiresAt, err := a.svc.ServiceTokens.IssueServiceToken(r.Context(), req.CorrelationID, mode, req.SessionID)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownCorrelationID) {
			_ = audit.LogEvent(r.Context(), "service_token.rejected", map[string]any{
				"reason": "unknown_correlation_id",
			})
		}
		handleAuthError(w, r, err)
		return
	}
	obs.TokenIssued("service")

	ctx := audit.WithCorrelationID(r.Context(), req.CorrelationID)
	_ = audit.LogEvent(ctx, "service_token.issued", map[string]any{"mode": mode.String()})

	writeJSON(w, http.StatusOK, serviceTokenResponse{
		ServiceToken: token,
		Mode:         mode.String(),
		ExpiresAt:    expiresAt,
	})
}

// handleValidate answers whether a correlation id currently resolves.
func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/identity/validate/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusBadRequest, "correlation id is required")
		return
	}

	valid, err := a.svc.Registry.Validate(r.Context(), id)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	msg := "correlation id is registered"
	if !valid {
		msg = "correlation id is not registered"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   valid,
		"message": msg,
	})
}

// handleGetRecord returns the full correlation record for audit display.
func (a *API) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/identity/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusBadRequest, "correlation id is required")
		return
	}

	rec, err := a.svc.Registry.GetByAuditID(r.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "correlation id not registered")
			return
		}
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"correlation_id": rec.AuditID,
		"kind":           string(rec.Kind),
		"name":           rec.DisplayName,
		"email":          rec.Email,
		"organization":   rec.Organization,
		"mode":           rec.Mode.String(),
		"registered_at":  rec.RegisteredAt,
	})
}
