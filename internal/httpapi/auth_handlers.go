package httpapi

import (
	"net/http"
	"time"

	"atlasdesk.org/internal/audit"
	"atlasdesk.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	ExpiresAt     time.Time `json:"expires_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.svc.Login.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	obs.TokenIssued("user")

	ctx := audit.WithCorrelationID(r.Context(), result.CorrelationID)
	_ = audit.LogEvent(ctx, "auth.token.issued", map[string]any{
		"user_id":    result.Identity.ID,
		"expires_at": result.ExpiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:   result.AccessToken,
		RefreshToken:  result.RefreshToken,
		ExpiresAt:     result.ExpiresAt,
		CorrelationID: result.CorrelationID,
	})
}

type refreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.svc.Login.Refresh(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	obs.TokenIssued("user")

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:   result.AccessToken,
		RefreshToken:  result.RefreshToken,
		ExpiresAt:     result.ExpiresAt,
		CorrelationID: result.CorrelationID,
	})
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

// handlePasswordReset reports success for any email so account existence
// never leaks.
func (a *API) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req passwordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.Login.RequestPasswordReset(r.Context(), req.Email); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "if the account exists, a reset link has been sent",
	})
}

type passwordChangeRequest struct {
	UserID          string `json:"user_id"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (a *API) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req passwordChangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.Login.ChangePassword(r.Context(), req.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "password updated"})
}
