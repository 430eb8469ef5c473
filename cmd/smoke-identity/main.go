// Command smoke-identity runs the identity round trip in process:
// register a participant, mint a service token, validate it, and check
// that the correlation id survives the trip.
package main

import (
	"context"
	"log"
	"strings"
	"time"

	"atlasdesk.org/internal/auth"
	"atlasdesk.org/internal/registry"
)

func main() {
	log.SetFlags(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mode := auth.ModeBearerToken
	reg, err := registry.NewService(registry.NewMemoryStore(), mode)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}

	secret := strings.Repeat("smoke-secret-", 3)
	svc, err := auth.NewServiceTokenService(secret, "atlasdesk", "atlasdesk-services", time.Hour, reg)
	if err != nil {
		log.Fatalf("service tokens: %v", err)
	}

	correlationID, err := reg.RegisterAnonymous(ctx, "Ada Lovelace", "ada.lovelace@example.org", "Analytical Engines Ltd", "smoke-session")
	if err != nil {
		log.Fatalf("register: %v", err)
	}
	log.Printf("registered correlation_id=%s", correlationID)

	token, expires, err := svc.IssueServiceToken(ctx, correlationID, mode, "smoke-session")
	if err != nil {
		log.Fatalf("issue: %v", err)
	}
	log.Printf("issued token expiring %s", expires.Format(time.RFC3339))

	claims, err := svc.ValidateServiceToken(ctx, token)
	if err != nil {
		log.Fatalf("validate: %v", err)
	}
	extracted, err := svc.ExtractCorrelationID(ctx, token)
	if err != nil {
		log.Fatalf("extract: %v", err)
	}
	if extracted != correlationID || claims.CorrelationID() != correlationID {
		log.Fatalf("correlation id mismatch: issued %s, got %s", correlationID, extracted)
	}

	record, err := reg.GetByAuditID(ctx, correlationID)
	if err != nil {
		log.Fatalf("lookup: %v", err)
	}
	log.Printf("record kind=%s email=%s", record.Kind, record.Email)

	// Second registration with the same email must reuse the record.
	again, err := reg.RegisterAnonymous(ctx, "Ada Lovelace", "ADA.LOVELACE@example.org", "", "smoke-session")
	if err != nil {
		log.Fatalf("re-register: %v", err)
	}
	if again != correlationID {
		log.Fatalf("registration not idempotent: %s vs %s", correlationID, again)
	}

	log.Println("smoke-identity OK")
}
