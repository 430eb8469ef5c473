package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"atlasdesk.org/internal/auth"
	"atlasdesk.org/internal/ids"
	"atlasdesk.org/internal/obs"
)

type ctxKey string

const (
	requestIDKey     ctxKey = "audit_request_id"
	correlationIDKey ctxKey = "audit_correlation_id"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithCorrelationID attaches the identity correlation id. This is the one
// identifier that unifies a person across all authentication modes, so
// every audit line that can carry it should.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func fromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and identity context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":       time.Now().UTC().Format(time.RFC3339Nano),
		"type":     "audit",
		"event":    event,
		"event_id": ids.New(),
	}
	if rid := fromContext(ctx, requestIDKey); rid != "" {
		entry["request_id"] = rid
	}
	if cid := fromContext(ctx, correlationIDKey); cid != "" {
		entry["correlation_id"] = cid
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.ID != "" {
		entry["actor_id"] = identity.ID
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
