package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the minimum byte length accepted for a signing secret.
// A shorter secret is a configuration error, surfaced at startup rather
// than per request.
const MinSecretLength = 32

// Claims is the end-user token payload.
type Claims struct {
	Name  string            `json:"name,omitempty"`
	Roles []string          `json:"roles,omitempty"`
	Extra map[string]string `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and validates end-user bearer tokens. Tokens are
// signed with HS256: the same shared secret signs and validates.
type TokenService struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	skew     time.Duration
	now      func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock overrides the time source, for tests.
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClockSkew sets the leeway applied to lifetime checks. Issuer and
// audience checks are never relaxed.
func WithClockSkew(skew time.Duration) TokenOption {
	return func(s *TokenService) {
		if skew >= 0 {
			s.skew = skew
		}
	}
}

// NewTokenService validates signing configuration and returns the service.
func NewTokenService(secret, issuer, audience string, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is not configured")
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: signing secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	svc := &TokenService{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		ttl:      ttl,
		skew:     2 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// IssueAccessToken signs a token for the identity with a fresh jti.
func (s *TokenService) IssueAccessToken(identity Identity, roles []string, extra map[string]string) (string, error) {
	if strings.TrimSpace(identity.ID) == "" {
		return "", fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	claims := Claims{
		Name:  identity.DisplayName,
		Roles: dedupeRoles(roles),
		Extra: extra,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.ID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken returns an opaque random value. It is structurally
// unrelated to access tokens and is never validated as a signed structure;
// it only gates re-entry into the issuance flow.
func (s *TokenService) IssueRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("refresh token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ValidateToken verifies signature, issuer, audience and lifetime, and
// returns the embedded claims.
func (s *TokenService) ValidateToken(token string) (*Claims, error) {
	return s.parse(token, false)
}

// ValidateExpiredTokenForRefresh is the refresh path: it skips the expiry
// check but still enforces signature, issuer and audience, so an expired
// token cannot be forged into refresh eligibility.
func (s *TokenService) ValidateExpiredTokenForRefresh(token string) (*Claims, error) {
	return s.parse(token, true)
}

// Expiry reports when a token issued now would expire.
func (s *TokenService) Expiry() time.Time {
	return s.now().UTC().Add(s.ttl)
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

func (s *TokenService) parse(token string, allowExpired bool) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(s.skew),
	}
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	// Issuer and audience are checked manually so the refresh path cannot
	// skip them together with the lifetime checks.
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrInvalidToken
	}
	if s.audience != "" && !containsAudience(claims.Audience, s.audience) {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	claims.Roles = dedupeRoles(claims.Roles)
	return claims, nil
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
