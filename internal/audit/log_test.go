package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"atlasdesk.org/internal/auth"
	"atlasdesk.org/internal/obs"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithCorrelationID(ctx, "cid-42")
	ctx = auth.ContextWithIdentity(ctx, auth.NewIdentity("user-7", "Ada", []string{"admin"}))

	if err := LogEvent(ctx, "identity.registered", map[string]any{"mode": "BearerToken"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "identity.registered" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["correlation_id"] != "cid-42" {
		t.Fatalf("unexpected correlation id: %v", entry["correlation_id"])
	}
	if entry["actor_id"] != "user-7" {
		t.Fatalf("unexpected actor id: %v", entry["actor_id"])
	}
	if id, ok := entry["event_id"].(string); !ok || len(id) != 26 {
		t.Fatalf("unexpected event id: %v", entry["event_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["mode"] != "BearerToken" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("empty event accepted")
	}
}
