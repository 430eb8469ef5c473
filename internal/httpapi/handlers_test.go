package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"atlasdesk.org/internal/auth"
	"atlasdesk.org/internal/registry"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestAPI(t *testing.T, mode auth.Mode) *API {
	t.Helper()
	reg, err := registry.NewService(registry.NewMemoryStore(), mode, registry.WithCacheTTL(0))
	if err != nil {
		t.Fatal(err)
	}
	tokens, err := auth.NewTokenService(testSecret, "atlasdesk", "atlasdesk-api", 15*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	serviceTokens, err := auth.NewServiceTokenService(testSecret, "atlasdesk", "atlasdesk-services", time.Hour, reg)
	if err != nil {
		t.Fatal(err)
	}
	creds := auth.NewMemoryCredentialStore()
	if err := creds.AddUser(auth.CredentialUser{
		ID:          "u-1",
		Email:       "ada@example.org",
		DisplayName: "Ada Lovelace",
		Roles:       []string{"admin"},
	}, "correct horse"); err != nil {
		t.Fatal(err)
	}

	svc := Services{
		Mode:          mode,
		Registry:      reg,
		Tokens:        tokens,
		ServiceTokens: serviceTokens,
		Login:         auth.NewLoginService(mode, creds, tokens, reg),
	}
	if mode == auth.ModeEntraExternalID {
		fv, err := auth.NewFederatedValidator("tenant-1", "client-1")
		if err != nil {
			t.Fatal(err)
		}
		svc.Federated = fv
	}
	return New(ReadyProbe{}, "test", svc)
}

func doJSON(t *testing.T, api *API, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	api.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestRegisterFlow(t *testing.T) {
	api := newTestAPI(t, auth.ModeBearerToken)

	rec := doJSON(t, api, http.MethodPost, "/v1/identity/register", map[string]string{
		"name":       "Ada Lovelace",
		"email":      "ada@example.org",
		"session_id": "sess-1",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	var reg registerResponse
	decodeBody(t, rec, &reg)
	if reg.CorrelationID == "" || reg.ServiceToken == "" {
		t.Fatalf("response = %+v", reg)
	}
	if reg.Mode != "BearerToken" {
		t.Fatalf("mode = %q", reg.Mode)
	}

	// Re-register with the same email: same correlation id.
	rec = doJSON(t, api, http.MethodPost, "/v1/identity/register", map[string]string{
		"name":  "A. Lovelace",
		"email": "ADA@example.org",
	}, nil)
	var again registerResponse
	decodeBody(t, rec, &again)
	if again.CorrelationID != reg.CorrelationID {
		t.Fatalf("duplicate registration minted %q, want %q", again.CorrelationID, reg.CorrelationID)
	}

	// Validate the id.
	rec = doJSON(t, api, http.MethodGet, "/v1/identity/validate/"+reg.CorrelationID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate: %d", rec.Code)
	}
	var validation struct {
		Valid bool `json:"valid"`
	}
	decodeBody(t, rec, &validation)
	if !validation.Valid {
		t.Fatal("registered id reported invalid")
	}

	// Full record.
	rec = doJSON(t, api, http.MethodGet, "/v1/identity/"+reg.CorrelationID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get record: %d", rec.Code)
	}
	var record map[string]any
	decodeBody(t, rec, &record)
	if record["kind"] != "anonymous" || record["email"] != "ada@example.org" {
		t.Fatalf("record = %v", record)
	}
}

func TestRegisterValidation(t *testing.T) {
	api := newTestAPI(t, auth.ModeBearerToken)

	rec := doJSON(t, api, http.MethodPost, "/v1/identity/register", map[string]string{
		"name": "Ada", "email": "not-an-email",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad email: %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/v1/identity/register", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET register: %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("Allow = %q", allow)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/identity/register",
		strings.NewReader(`{"name":"Ada","email":"ada@example.org","bogus":true}`))
	rr := httptest.NewRecorder()
	api.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field accepted: %d", rr.Code)
	}
}

func TestRegisterNotSupportedInFederatedMode(t *testing.T) {
	api := newTestAPI(t, auth.ModeEntraExternalID)

	rec := doJSON(t, api, http.MethodPost, "/v1/identity/register", map[string]string{
		"name": "Ada", "email": "ada@example.org",
	}, nil)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("register in federated mode: %d", rec.Code)
	}
}

func TestServiceTokenEndpoint(t *testing.T) {
	api := newTestAPI(t, auth.ModeBearerToken)

	var reg registerResponse
	decodeBody(t, doJSON(t, api, http.MethodPost, "/v1/identity/register", map[string]string{
		"name": "Ada", "email": "ada@example.org",
	}, nil), &reg)

	rec := doJSON(t, api, http.MethodPost, "/v1/identity/token", map[string]string{
		"correlation_id": reg.CorrelationID,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("token: %d %s", rec.Code, rec.Body.String())
	}
	var tok serviceTokenResponse
	decodeBody(t, rec, &tok)
	if tok.ServiceToken == "" || tok.ExpiresAt.Before(time.Now()) {
		t.Fatalf("response = %+v", tok)
	}

	// Unknown correlation id maps to 404.
	rec = doJSON(t, api, http.MethodPost, "/v1/identity/token", map[string]string{
		"correlation_id": "00000000-0000-4000-8000-000000000000",
	}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: %d", rec.Code)
	}
}

func TestToolEndpointRequiresServiceToken(t *testing.T) {
	api := newTestAPI(t, auth.ModeBearerToken)

	rec := doJSON(t, api, http.MethodGet, "/v1/tools/whoami", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	rec = doJSON(t, api, http.MethodGet, "/v1/tools/whoami", nil, map[string]string{
		"Authorization": "Bearer garbage",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: %d", rec.Code)
	}

	var reg registerResponse
	decodeBody(t, doJSON(t, api, http.MethodPost, "/v1/identity/register", map[string]string{
		"name": "Ada", "email": "ada@example.org", "session_id": "sess-7",
	}, nil), &reg)

	rec = doJSON(t, api, http.MethodGet, "/v1/tools/whoami", nil, map[string]string{
		"Authorization": "Bearer " + reg.ServiceToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: %d %s", rec.Code, rec.Body.String())
	}
	var who map[string]any
	decodeBody(t, rec, &who)
	if who["correlation_id"] != reg.CorrelationID || who["session_id"] != "sess-7" {
		t.Fatalf("whoami = %v", who)
	}
}

func TestLoginRefreshAndMe(t *testing.T) {
	api := newTestAPI(t, auth.ModeBearerToken)

	rec := doJSON(t, api, http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "ada@example.org", "password": "correct horse",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	var pair tokenPairResponse
	decodeBody(t, rec, &pair)
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.CorrelationID == "" {
		t.Fatalf("pair = %+v", pair)
	}

	rec = doJSON(t, api, http.MethodGet, "/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + pair.AccessToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("me: %d %s", rec.Code, rec.Body.String())
	}
	var me map[string]any
	decodeBody(t, rec, &me)
	if me["authenticated"] != true || me["display_name"] != "Ada Lovelace" {
		t.Fatalf("me = %v", me)
	}

	rec = doJSON(t, api, http.MethodPost, "/v1/auth/refresh", map[string]string{
		"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body.String())
	}
	var next tokenPairResponse
	decodeBody(t, rec, &next)
	if next.CorrelationID != pair.CorrelationID {
		t.Fatalf("correlation id changed on refresh: %q vs %q", next.CorrelationID, pair.CorrelationID)
	}
}

func TestLoginFailureStatuses(t *testing.T) {
	api := newTestAPI(t, auth.ModeBearerToken)

	rec := doJSON(t, api, http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "ada@example.org", "password": "wrong",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", rec.Code)
	}

	// Lockout surfaces as 423.
	for i := 0; i < 5; i++ {
		rec = doJSON(t, api, http.MethodPost, "/v1/auth/login", map[string]string{
			"email": "ada@example.org", "password": "wrong",
		}, nil)
	}
	if rec.Code != http.StatusLocked {
		t.Fatalf("locked account: %d", rec.Code)
	}
}

func TestPasswordResetNonEnumerating(t *testing.T) {
	api := newTestAPI(t, auth.ModeBearerToken)

	known := doJSON(t, api, http.MethodPost, "/v1/auth/password-reset", map[string]string{
		"email": "ada@example.org",
	}, nil)
	unknown := doJSON(t, api, http.MethodPost, "/v1/auth/password-reset", map[string]string{
		"email": "nobody@example.org",
	}, nil)
	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("codes: %d, %d", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Fatalf("responses differ: %q vs %q", known.Body.String(), unknown.Body.String())
	}
}

func TestAuthEndpointsInFederatedMode(t *testing.T) {
	api := newTestAPI(t, auth.ModeEntraExternalID)

	for _, path := range []string{"/v1/auth/login", "/v1/auth/refresh", "/v1/auth/password-reset"} {
		rec := doJSON(t, api, http.MethodPost, path, map[string]string{
			"email": "a@b.c", "password": "x", "access_token": "x", "refresh_token": "x",
		}, nil)
		if rec.Code != http.StatusNotImplemented {
			t.Fatalf("%s: %d", path, rec.Code)
		}
	}
}

func TestMeInDisabledMode(t *testing.T) {
	api := newTestAPI(t, auth.ModeDisabled)

	rec := doJSON(t, api, http.MethodGet, "/v1/me", nil, map[string]string{
		"X-Correlation-Id": "cid-42",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("me: %d", rec.Code)
	}
	var me map[string]any
	decodeBody(t, rec, &me)
	if me["authenticated"] != false || me["display_name"] != "Anonymous" || me["id"] != "cid-42" {
		t.Fatalf("me = %v", me)
	}
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t, auth.ModeBearerToken)

	rec := doJSON(t, api, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	rec = doJSON(t, api, http.MethodGet, "/readyz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}
	rec = doJSON(t, api, http.MethodGet, "/v1/info", nil, nil)
	var info map[string]any
	decodeBody(t, rec, &info)
	if info["mode"] != "BearerToken" {
		t.Fatalf("info = %v", info)
	}
}
