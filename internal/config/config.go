package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	defaultUserTokenTTL    = 15 * time.Minute
	defaultServiceTokenTTL = 8 * time.Hour
	defaultClockSkew       = 2 * time.Minute
	defaultCacheTTL        = 30 * time.Second
)

// TokenConfig holds the signing parameters for one trust domain.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
	Skew     time.Duration
}

// Config is the explicit configuration snapshot built once at process start.
// Components receive it (or a slice of it) through their constructors and
// never read the environment at call time.
type Config struct {
	Environment string
	Mode        string

	PostgresDSN string

	UserToken    TokenConfig
	ServiceToken TokenConfig

	// Entra External ID settings, required only in federated mode.
	EntraTenantID string
	EntraClientID string

	// RegistryCacheTTL bounds how long a Validate outcome may be reused.
	RegistryCacheTTL time.Duration

	// AllowUnregistered accepts correlation ids that are absent from the
	// registry. Defaults to false: registry presence is required.
	AllowUnregistered bool

	ListenAddr string
}

// FromEnv reads the ATLAS_* environment once and returns the snapshot.
func FromEnv() Config {
	cfg := Config{
		Environment: strings.TrimSpace(os.Getenv("ATLAS_ENVIRONMENT")),
		Mode:        strings.TrimSpace(os.Getenv("ATLAS_AUTH_MODE")),
		PostgresDSN: strings.TrimSpace(os.Getenv("ATLAS_PG_DSN")),
		UserToken: TokenConfig{
			Secret:   os.Getenv("ATLAS_AUTH_SECRET"),
			Issuer:   envOr("ATLAS_AUTH_ISSUER", "atlasdesk"),
			Audience: envOr("ATLAS_AUTH_AUDIENCE", "atlasdesk-api"),
			TTL:      envMinutes("ATLAS_AUTH_TTL_MINUTES", defaultUserTokenTTL),
			Skew:     envMinutes("ATLAS_AUTH_SKEW_MINUTES", defaultClockSkew),
		},
		ServiceToken: TokenConfig{
			Secret:   os.Getenv("ATLAS_SVC_SECRET"),
			Issuer:   envOr("ATLAS_SVC_ISSUER", "atlasdesk"),
			Audience: envOr("ATLAS_SVC_AUDIENCE", "atlasdesk-services"),
			TTL:      envMinutes("ATLAS_SVC_TTL_MINUTES", defaultServiceTokenTTL),
			Skew:     envMinutes("ATLAS_SVC_SKEW_MINUTES", defaultClockSkew),
		},
		EntraTenantID:     strings.TrimSpace(os.Getenv("ATLAS_ENTRA_TENANT_ID")),
		EntraClientID:     strings.TrimSpace(os.Getenv("ATLAS_ENTRA_CLIENT_ID")),
		RegistryCacheTTL:  envSeconds("ATLAS_REGISTRY_CACHE_TTL_SECONDS", defaultCacheTTL),
		AllowUnregistered: envBool("ATLAS_ALLOW_UNREGISTERED", false),
		ListenAddr:        envOr("ATLAS_LISTEN_ADDR", ":8080"),
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envMinutes(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Minute
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
