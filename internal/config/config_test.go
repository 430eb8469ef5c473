package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"ATLAS_ENVIRONMENT", "ATLAS_AUTH_MODE", "ATLAS_PG_DSN",
		"ATLAS_AUTH_SECRET", "ATLAS_AUTH_TTL_MINUTES", "ATLAS_SVC_TTL_MINUTES",
		"ATLAS_REGISTRY_CACHE_TTL_SECONDS", "ATLAS_ALLOW_UNREGISTERED", "ATLAS_LISTEN_ADDR",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	if cfg.UserToken.TTL != 15*time.Minute {
		t.Fatalf("user ttl = %s", cfg.UserToken.TTL)
	}
	if cfg.ServiceToken.TTL != 8*time.Hour {
		t.Fatalf("service ttl = %s", cfg.ServiceToken.TTL)
	}
	if cfg.UserToken.Skew != 2*time.Minute {
		t.Fatalf("skew = %s", cfg.UserToken.Skew)
	}
	if cfg.RegistryCacheTTL != 30*time.Second {
		t.Fatalf("cache ttl = %s", cfg.RegistryCacheTTL)
	}
	if cfg.AllowUnregistered {
		t.Fatal("allowUnregistered defaults on")
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.UserToken.Issuer != "atlasdesk" || cfg.UserToken.Audience != "atlasdesk-api" {
		t.Fatalf("user token identity = %q / %q", cfg.UserToken.Issuer, cfg.UserToken.Audience)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ATLAS_ENVIRONMENT", " test ")
	t.Setenv("ATLAS_AUTH_MODE", "entra")
	t.Setenv("ATLAS_AUTH_TTL_MINUTES", "60")
	t.Setenv("ATLAS_SVC_TTL_MINUTES", "120")
	t.Setenv("ATLAS_REGISTRY_CACHE_TTL_SECONDS", "5")
	t.Setenv("ATLAS_ALLOW_UNREGISTERED", "true")
	t.Setenv("ATLAS_LISTEN_ADDR", ":9090")

	cfg := FromEnv()
	if cfg.Environment != "test" || cfg.Mode != "entra" {
		t.Fatalf("environment=%q mode=%q", cfg.Environment, cfg.Mode)
	}
	if cfg.UserToken.TTL != time.Hour || cfg.ServiceToken.TTL != 2*time.Hour {
		t.Fatalf("ttls = %s / %s", cfg.UserToken.TTL, cfg.ServiceToken.TTL)
	}
	if cfg.RegistryCacheTTL != 5*time.Second {
		t.Fatalf("cache ttl = %s", cfg.RegistryCacheTTL)
	}
	if !cfg.AllowUnregistered || cfg.ListenAddr != ":9090" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestFromEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("ATLAS_AUTH_TTL_MINUTES", "not-a-number")
	t.Setenv("ATLAS_SVC_TTL_MINUTES", "-5")
	t.Setenv("ATLAS_REGISTRY_CACHE_TTL_SECONDS", "0")
	t.Setenv("ATLAS_ALLOW_UNREGISTERED", "maybe")

	cfg := FromEnv()
	if cfg.UserToken.TTL != 15*time.Minute {
		t.Fatalf("bad minutes accepted: %s", cfg.UserToken.TTL)
	}
	if cfg.ServiceToken.TTL != 8*time.Hour {
		t.Fatalf("negative minutes accepted: %s", cfg.ServiceToken.TTL)
	}
	if cfg.RegistryCacheTTL != 30*time.Second {
		t.Fatalf("zero seconds accepted: %s", cfg.RegistryCacheTTL)
	}
	if cfg.AllowUnregistered {
		t.Fatal("unparseable bool accepted")
	}
}
