package auth

import (
	"context"
	"testing"
)

func TestGetDisplayName(t *testing.T) {
	cases := []struct {
		name     string
		identity Identity
		want     string
	}{
		{"display name wins", NewIdentity("u1", "Ada Lovelace", nil), "Ada Lovelace"},
		{"id fallback", NewIdentity("u1", "", nil), "u1"},
		{"unknown user fallback", Identity{Authenticated: true}, "Unknown User"},
		{"anonymous always", Identity{Authenticated: false, ID: "cid-1", DisplayName: "Ada"}, "Anonymous"},
		{"anonymous identity helper", AnonymousIdentity("cid-2"), "Anonymous"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.identity.GetDisplayName(); got != tc.want {
				t.Fatalf("GetDisplayName() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHasRole(t *testing.T) {
	id := NewIdentity("u1", "Ada", []string{"Admin", "support", "admin"})
	if len(id.Roles) != 2 {
		t.Fatalf("roles not deduplicated: %v", id.Roles)
	}
	if !id.HasRole("ADMIN") || !id.HasRole("support") {
		t.Fatalf("expected roles present: %v", id.Roles)
	}
	if id.HasRole("sales") {
		t.Fatal("unexpected sales role")
	}
}

func TestAnonymousIdentityCarriesBaseline(t *testing.T) {
	id := AnonymousIdentity(" cid-7 ")
	if id.Authenticated {
		t.Fatal("anonymous identity must not be authenticated")
	}
	if id.ID != "cid-7" {
		t.Fatalf("ID = %q", id.ID)
	}
	if !id.HasRole(RoleUser) {
		t.Fatalf("missing baseline role: %v", id.Roles)
	}
}

func TestIdentityContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := IdentityFromContext(ctx); ok {
		t.Fatal("empty context should carry no identity")
	}
	want := NewIdentity("u1", "Ada", []string{RoleUser})
	ctx = ContextWithIdentity(ctx, want)
	got, ok := IdentityFromContext(ctx)
	if !ok || got.ID != want.ID || got.DisplayName != want.DisplayName {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}

	if _, ok := TokenFromContext(ctx); ok {
		t.Fatal("no token attached yet")
	}
	ctx = ContextWithToken(ctx, "raw-token")
	if token, ok := TokenFromContext(ctx); !ok || token != "raw-token" {
		t.Fatalf("token = %q, ok=%v", token, ok)
	}
}
