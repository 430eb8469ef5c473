package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"atlasdesk.org/internal/auth"
	"atlasdesk.org/internal/config"
	"atlasdesk.org/internal/httpapi"
	"atlasdesk.org/internal/obs"
	"atlasdesk.org/internal/registry"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("ATLAS_COMMIT"))

	cfg := config.FromEnv()
	mode := auth.ResolveMode(cfg.Mode, cfg.Environment)

	// Database is optional: without a DSN the registry runs in memory,
	// which is enough for local development and the smoke binary.
	var db *sql.DB
	var store registry.Store
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = registry.NewPGStore(db)
	} else {
		store = registry.NewMemoryStore()
	}

	reg, err := registry.NewService(store, mode,
		registry.WithCacheTTL(cfg.RegistryCacheTTL),
		registry.WithAllowUnregistered(cfg.AllowUnregistered),
	)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}

	tokens, err := auth.NewTokenService(
		cfg.UserToken.Secret, cfg.UserToken.Issuer, cfg.UserToken.Audience, cfg.UserToken.TTL,
		auth.WithClockSkew(cfg.UserToken.Skew),
	)
	if err != nil {
		log.Fatalf("user token service: %v", err)
	}

	serviceTokens, err := auth.NewServiceTokenService(
		cfg.ServiceToken.Secret, cfg.ServiceToken.Issuer, cfg.ServiceToken.Audience, cfg.ServiceToken.TTL,
		reg,
		auth.WithServiceTokenSkew(cfg.ServiceToken.Skew),
	)
	if err != nil {
		log.Fatalf("service token service: %v", err)
	}

	creds := auth.NewMemoryCredentialStore()
	login := auth.NewLoginService(mode, creds, tokens, reg)

	var federated *auth.FederatedValidator
	if mode == auth.ModeEntraExternalID {
		federated, err = auth.NewFederatedValidator(cfg.EntraTenantID, cfg.EntraClientID)
		if err != nil {
			log.Fatalf("federated validator: %v", err)
		}
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, httpapi.Services{
		Mode:          mode,
		Registry:      reg,
		Tokens:        tokens,
		ServiceTokens: serviceTokens,
		Login:         login,
		Federated:     federated,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting atlasdesk-api %s on %s (mode=%s)", version, srv.Addr, mode)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
