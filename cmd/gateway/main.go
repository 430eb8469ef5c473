// Command gateway is a small agent-side client. It registers an anonymous
// participant against the API, keeps a service token fresh, and invokes
// tool endpoints on the participant's behalf.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"atlasdesk.org/internal/gateway"
)

func main() {
	log.SetFlags(0)
	var (
		baseURL   = flag.String("api", envOr("ATLAS_API_URL", "http://localhost:8080"), "API base URL")
		name      = flag.String("name", "Agent Session", "participant display name")
		email     = flag.String("email", "", "participant email (required)")
		org       = flag.String("org", "", "participant organization")
		sessionID = flag.String("session", "", "workshop session id")
		tool      = flag.String("tool", "/v1/tools/whoami", "tool path to invoke")
	)
	flag.Parse()

	if *email == "" {
		log.Fatal("missing -email")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := gateway.New(*baseURL)
	correlationID, err := client.Register(ctx, *name, *email, *org, *sessionID)
	if err != nil {
		log.Fatalf("register: %v", err)
	}
	log.Printf("registered correlation_id=%s", correlationID)

	var reply map[string]any
	if err := client.CallTool(ctx, *tool, &reply); err != nil {
		log.Fatalf("call tool %s: %v", *tool, err)
	}
	out, _ := json.MarshalIndent(reply, "", "  ")
	fmt.Println(string(out))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
