package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signFederated builds a provider-style token. The validator never checks
// the signature, so any key works.
func signFederated(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestNewFederatedValidatorRequiresProviderSettings(t *testing.T) {
	if _, err := NewFederatedValidator("", "client"); err == nil {
		t.Fatal("missing tenant accepted")
	}
	if _, err := NewFederatedValidator("tenant", " "); err == nil {
		t.Fatal("missing client accepted")
	}
	if _, err := NewFederatedValidator("tenant", "client"); err != nil {
		t.Fatal(err)
	}
}

func TestExtractClaims(t *testing.T) {
	v, err := NewFederatedValidator("tenant-1", "client-1")
	if err != nil {
		t.Fatal(err)
	}
	token := signFederated(t, jwt.MapClaims{
		"sub":   "subject-1",
		"tid":   "tenant-9",
		"email": "ada@example.org",
		"name":  "Ada Lovelace",
		"scp":   "orders.read tickets.write",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	fc, err := v.ExtractClaims(token)
	if err != nil {
		t.Fatal(err)
	}
	if fc.SubjectID != "subject-1" || fc.TenantID != "tenant-9" {
		t.Fatalf("claims = %+v", fc)
	}
	if fc.Email != "ada@example.org" || fc.DisplayName != "Ada Lovelace" {
		t.Fatalf("claims = %+v", fc)
	}
	if len(fc.Scopes) != 2 || fc.Scopes[0] != "orders.read" {
		t.Fatalf("scopes = %v", fc.Scopes)
	}
}

func TestExtractClaimsFallbacks(t *testing.T) {
	v, _ := NewFederatedValidator("tenant-1", "client-1")

	// Tenant defaults to configuration, email falls through the alias chain.
	token := signFederated(t, jwt.MapClaims{
		"sub":                "subject-2",
		"preferred_username": "ada@example.org",
	})
	fc, err := v.ExtractClaims(token)
	if err != nil {
		t.Fatal(err)
	}
	if fc.TenantID != "tenant-1" {
		t.Fatalf("tenant = %q", fc.TenantID)
	}
	if fc.Email != "ada@example.org" {
		t.Fatalf("email = %q", fc.Email)
	}

	if _, err := v.ExtractClaims(signFederated(t, jwt.MapClaims{"email": "x@y.z"})); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("missing subject accepted: %v", err)
	}
	if _, err := v.ExtractClaims("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: %v", err)
	}
	if _, err := v.ExtractClaims(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token: %v", err)
	}
}

func TestFederatedIdentityMapsRoles(t *testing.T) {
	v, _ := NewFederatedValidator("tenant-1", "client-1")
	token := signFederated(t, jwt.MapClaims{
		"sub":    "subject-3",
		"name":   "Ada Lovelace",
		"groups": []any{"emea-support-desk"},
	})
	fc, err := v.ExtractClaims(token)
	if err != nil {
		t.Fatal(err)
	}
	identity := v.Identity(fc)
	if !identity.Authenticated || identity.ID != "subject-3" {
		t.Fatalf("identity = %+v", identity)
	}
	if !identity.HasRole(RoleSupport) {
		t.Fatalf("roles = %v", identity.Roles)
	}
}
