package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"atlasdesk.org/internal/obs"
)

// CredentialUser is the account shape returned by the credential store.
type CredentialUser struct {
	ID          string
	Email       string
	DisplayName string
	Roles       []string
}

// CredentialStore is the external credential system the credentialed login
// path delegates to. It owns password hashing and lockout counting.
// VerifyPassword returns ErrInvalidCredentials for unknown accounts and
// wrong passwords alike, and ErrAccountLocked once repeated failures trip
// the lockout policy.
type CredentialStore interface {
	VerifyPassword(ctx context.Context, email, password string) (*CredentialUser, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	RequestPasswordReset(ctx context.Context, email string) error
}

// CredentialedRegistrar is the registry hook for credentialed logins: it
// creates the correlation record on first sight and refreshes last-login
// on every issuance.
type CredentialedRegistrar interface {
	ResolveOrCreateForCredentialed(ctx context.Context, externalUserID string, claims map[string]string) (string, error)
}

// LoginResult is the outcome of a successful credentialed login.
type LoginResult struct {
	AccessToken   string
	RefreshToken  string
	ExpiresAt     time.Time
	CorrelationID string
	Identity      Identity
}

// LoginService implements the credentialed login flow for BearerToken
// mode. In EntraExternalId mode every operation fails fast with
// ErrNotSupported instead of silently no-opping.
type LoginService struct {
	mode      Mode
	store     CredentialStore
	tokens    *TokenService
	registrar CredentialedRegistrar
}

// NewLoginService wires the login flow.
func NewLoginService(mode Mode, store CredentialStore, tokens *TokenService, registrar CredentialedRegistrar) *LoginService {
	return &LoginService{mode: mode, store: store, tokens: tokens, registrar: registrar}
}

// Login verifies credentials and issues an access/refresh token pair.
func (s *LoginService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if s.mode == ModeEntraExternalID {
		return LoginResult{}, ErrNotSupported
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	user, err := s.store.VerifyPassword(ctx, email, password)
	if err != nil {
		// Locked stays distinct; everything else collapses to the generic
		// invalid-credentials outcome.
		return LoginResult{}, err
	}

	claims := map[string]string{
		ClaimEmail: user.Email,
		ClaimRoles: strings.Join(user.Roles, ","),
	}
	correlationID, err := s.registrar.ResolveOrCreateForCredentialed(ctx, user.ID, claims)
	if err != nil {
		return LoginResult{}, fmt.Errorf("register credentialed identity: %w", err)
	}

	roles := MapClaimsToRoles(claims)
	identity := NewIdentity(user.ID, user.DisplayName, roles)
	access, err := s.tokens.IssueAccessToken(identity, roles, map[string]string{"cid": correlationID})
	if err != nil {
		return LoginResult{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken()
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		AccessToken:   access,
		RefreshToken:  refresh,
		ExpiresAt:     s.tokens.Expiry(),
		CorrelationID: correlationID,
		Identity:      identity,
	}, nil
}

// Refresh exchanges an expired access token for a fresh pair. The access
// token must still pass signature, issuer and audience checks; only the
// expiry check is waived. The refresh token itself is opaque and merely
// gates re-entry into issuance.
func (s *LoginService) Refresh(ctx context.Context, accessToken, refreshToken string) (LoginResult, error) {
	if s.mode == ModeEntraExternalID {
		return LoginResult{}, ErrNotSupported
	}
	if strings.TrimSpace(refreshToken) == "" {
		return LoginResult{}, ErrInvalidToken
	}
	claims, err := s.tokens.ValidateExpiredTokenForRefresh(accessToken)
	if err != nil {
		return LoginResult{}, ErrInvalidToken
	}

	identity := NewIdentity(claims.Subject, claims.Name, claims.Roles)
	access, err := s.tokens.IssueAccessToken(identity, claims.Roles, claims.Extra)
	if err != nil {
		return LoginResult{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken()
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		AccessToken:   access,
		RefreshToken:  refresh,
		ExpiresAt:     s.tokens.Expiry(),
		CorrelationID: claims.Extra["cid"],
		Identity:      identity,
	}, nil
}

// ChangePassword delegates to the credential store, gated on mode.
func (s *LoginService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if s.mode == ModeEntraExternalID {
		return ErrNotSupported
	}
	if strings.TrimSpace(userID) == "" || newPassword == "" {
		return fmt.Errorf("%w: user id and new password are required", ErrInvalidInput)
	}
	return s.store.ChangePassword(ctx, userID, currentPassword, newPassword)
}

// RequestPasswordReset always reports success to the caller so responses
// never leak whether an account exists. The real outcome is logged.
func (s *LoginService) RequestPasswordReset(ctx context.Context, email string) error {
	if s.mode == ModeEntraExternalID {
		return ErrNotSupported
	}
	if err := s.store.RequestPasswordReset(ctx, strings.TrimSpace(strings.ToLower(email))); err != nil {
		obs.Logf("auth.password_reset.suppressed", map[string]any{"error": err.Error()})
	}
	return nil
}
