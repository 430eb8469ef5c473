package auth

import (
	"context"
	"strings"
)

// Identity is the uniform per-request view of the caller. It is built the
// same way whether the active mode verified a bearer token, trusted a
// federated claim set, or synthesized the identity with verification
// disabled.
type Identity struct {
	Authenticated bool
	ID            string
	DisplayName   string
	Roles         []string
}

// NewIdentity builds an authenticated identity with deduplicated roles.
func NewIdentity(id, displayName string, roles []string) Identity {
	return Identity{
		Authenticated: true,
		ID:            strings.TrimSpace(id),
		DisplayName:   strings.TrimSpace(displayName),
		Roles:         dedupeRoles(roles),
	}
}

// AnonymousIdentity is the identity used when no verification happened but
// the caller still carries a correlation id, as in Disabled mode.
func AnonymousIdentity(correlationID string) Identity {
	return Identity{
		Authenticated: false,
		ID:            strings.TrimSpace(correlationID),
		Roles:         []string{RoleUser},
	}
}

// GetDisplayName resolves the presentable name. The fallback chain is a
// contract: display name, then id, then "Unknown User" for authenticated
// identities; always "Anonymous" when not authenticated, regardless of any
// populated name fields.
func (i Identity) GetDisplayName() string {
	if !i.Authenticated {
		return "Anonymous"
	}
	if i.DisplayName != "" {
		return i.DisplayName
	}
	if i.ID != "" {
		return i.ID
	}
	return "Unknown User"
}

// HasRole reports whether the identity carries the given role.
func (i Identity) HasRole(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	for _, r := range i.Roles {
		if strings.ToLower(r) == role {
			return true
		}
	}
	return false
}

func dedupeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var out []string
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		key := strings.ToLower(role)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, role)
	}
	return out
}

type identityContextKey struct{}
type tokenContextKey struct{}

// ContextWithIdentity attaches the per-request identity to the context.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &identity)
}

// IdentityFromContext extracts the identity placed by the authentication
// middleware, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
