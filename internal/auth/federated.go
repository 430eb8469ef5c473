package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// FederatedClaims is the identity material extracted from an Entra External
// ID token.
type FederatedClaims struct {
	SubjectID   string
	TenantID    string
	Email       string
	DisplayName string
	Scopes      []string
	Raw         map[string]string
}

// FederatedValidator handles EntraExternalId mode. The trust model here is
// deliberately minimal: the token payload is decoded and its claims are
// trusted without verifying the signature against the provider's published
// keys. A production OIDC client would fetch the tenant JWKS and verify;
// this implementation covers only the claim contract the rest of the
// system consumes.
type FederatedValidator struct {
	tenantID string
	clientID string
}

// NewFederatedValidator checks provider settings. Missing settings are a
// configuration error, fatal at startup rather than surfaced per request.
func NewFederatedValidator(tenantID, clientID string) (*FederatedValidator, error) {
	tenantID = strings.TrimSpace(tenantID)
	clientID = strings.TrimSpace(clientID)
	if tenantID == "" || clientID == "" {
		return nil, errors.New("auth: entra tenant id and client id are required in federated mode")
	}
	return &FederatedValidator{tenantID: tenantID, clientID: clientID}, nil
}

// ExtractClaims decodes the federated token and returns its claim set.
func (v *FederatedValidator) ExtractClaims(token string) (*FederatedClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, ErrInvalidToken
	}

	sub := stringClaim(claims, "sub")
	if sub == "" {
		return nil, fmt.Errorf("%w: subject claim missing", ErrInvalidToken)
	}

	fc := &FederatedClaims{
		SubjectID:   sub,
		TenantID:    stringClaim(claims, "tid"),
		Email:       firstClaim(claims, "email", "preferred_username", "upn"),
		DisplayName: firstClaim(claims, "name", "given_name"),
		Raw:         flattenClaims(claims),
	}
	if fc.TenantID == "" {
		fc.TenantID = v.tenantID
	}
	if scp := stringClaim(claims, "scp"); scp != "" {
		fc.Scopes = splitClaimList(scp)
	}
	return fc, nil
}

// Identity builds the per-request identity from federated claims, mapping
// roles through the standard claim rules.
func (v *FederatedValidator) Identity(fc *FederatedClaims) Identity {
	roles := MapClaimsToRoles(fc.Raw)
	display := fc.DisplayName
	if display == "" {
		display = fc.Email
	}
	return NewIdentity(fc.SubjectID, display, roles)
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func firstClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if v := stringClaim(claims, key); v != "" {
			return v
		}
	}
	return ""
}

func flattenClaims(claims jwt.MapClaims) map[string]string {
	out := make(map[string]string, len(claims))
	for k, v := range claims {
		switch t := v.(type) {
		case string:
			out[k] = t
		case []any:
			parts := make([]string, 0, len(t))
			for _, item := range t {
				if s, ok := item.(string); ok {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				out[k] = strings.Join(parts, ",")
			}
		}
	}
	return out
}
