package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type staticResolver map[string]bool

func (r staticResolver) Validate(ctx context.Context, auditID string) (bool, error) {
	return r[auditID], nil
}

type failingResolver struct{}

func (failingResolver) Validate(ctx context.Context, auditID string) (bool, error) {
	return false, errors.New("registry unavailable")
}

func newServiceTokenService(t *testing.T, resolver CorrelationResolver, opts ...ServiceTokenOption) *ServiceTokenService {
	t.Helper()
	svc, err := NewServiceTokenService(testSecret, "atlasdesk", "atlasdesk-services", time.Hour, resolver, opts...)
	if err != nil {
		t.Fatalf("NewServiceTokenService: %v", err)
	}
	return svc
}

func TestIssueServiceTokenRegistryGated(t *testing.T) {
	ctx := context.Background()
	svc := newServiceTokenService(t, staticResolver{"known-cid": true})

	token, expires, err := svc.IssueServiceToken(ctx, "known-cid", ModeBearerToken, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if token == "" || expires.Before(time.Now()) {
		t.Fatalf("token=%q expires=%s", token, expires)
	}

	if _, _, err := svc.IssueServiceToken(ctx, "unknown-cid", ModeBearerToken, ""); !errors.Is(err, ErrUnknownCorrelationID) {
		t.Fatalf("expected ErrUnknownCorrelationID, got %v", err)
	}
	if _, _, err := svc.IssueServiceToken(ctx, "  ", ModeBearerToken, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestValidateServiceTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newServiceTokenService(t, staticResolver{"cid-1": true})

	token, _, err := svc.IssueServiceToken(ctx, "cid-1", ModeDisabled, "sess-9")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := svc.ValidateServiceToken(ctx, token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.CorrelationID() != "cid-1" {
		t.Fatalf("correlation id = %q", claims.CorrelationID())
	}
	if claims.Mode != ModeDisabled.String() || claims.SessionID != "sess-9" {
		t.Fatalf("claims = %+v", claims)
	}

	got, err := svc.ExtractCorrelationID(ctx, token)
	if err != nil || got != "cid-1" {
		t.Fatalf("ExtractCorrelationID = %q, %v", got, err)
	}
}

func TestValidateServiceTokenUniformFailure(t *testing.T) {
	ctx := context.Background()
	resolver := staticResolver{"cid-1": true}
	svc := newServiceTokenService(t, resolver)

	token, _, err := svc.IssueServiceToken(ctx, "cid-1", ModeBearerToken, "")
	if err != nil {
		t.Fatal(err)
	}

	// Revocation: the registry stops resolving the id, so the still
	// cryptographically valid token is rejected.
	resolver["cid-1"] = false
	if _, err := svc.ValidateServiceToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked id: %v", err)
	}

	// Every failure collapses to the same sentinel.
	if _, err := svc.ValidateServiceToken(ctx, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: %v", err)
	}
	if _, err := svc.ValidateServiceToken(ctx, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token: %v", err)
	}

	broken := newServiceTokenService(t, failingResolver{})
	if _, err := broken.ValidateServiceToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("registry error: %v", err)
	}
}

func TestServiceTokenRejectsUserTokens(t *testing.T) {
	ctx := context.Background()
	// Same secret and issuer on both domains: the token_use marker alone
	// must keep the domains apart.
	users, err := NewTokenService(testSecret, "atlasdesk", "atlasdesk-services", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	userToken, err := users.IssueAccessToken(NewIdentity("cid-1", "Ada", nil), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	svc := newServiceTokenService(t, staticResolver{"cid-1": true})
	if _, err := svc.ValidateServiceToken(ctx, userToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("user token accepted as service token: %v", err)
	}
}

func TestServiceTokenExpiry(t *testing.T) {
	ctx := context.Background()
	past := time.Now().Add(-3 * time.Hour)
	issuer, err := NewServiceTokenService(testSecret, "atlasdesk", "atlasdesk-services", time.Hour,
		staticResolver{"cid-1": true},
		WithServiceTokenClock(func() time.Time { return past }),
	)
	if err != nil {
		t.Fatal(err)
	}
	token, _, err := issuer.IssueServiceToken(ctx, "cid-1", ModeBearerToken, "")
	if err != nil {
		t.Fatal(err)
	}

	validator := newServiceTokenService(t, staticResolver{"cid-1": true}, WithServiceTokenSkew(0))
	if _, err := validator.ValidateServiceToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired service token accepted: %v", err)
	}
}
