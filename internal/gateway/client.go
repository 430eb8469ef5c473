// Package gateway is the client side of the tool-calling service: it
// registers an identity with the business API once, holds the resulting
// service token, and forwards tool calls with that token attached. A new
// token is obtained by repeating the issuance flow shortly before expiry;
// tokens are never renewed in place.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// renewMargin is how long before expiry the client re-issues its token.
const renewMargin = time.Minute

// Client talks to the atlasdesk API on behalf of the agent gateway.
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time

	mu            sync.Mutex
	correlationID string
	sessionID     string
	token         string
	expiresAt     time.Time
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) Option {
	return func(c *Client) {
		if fn != nil {
			c.now = fn
		}
	}
}

// New creates a client for the given API base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type registerPayload struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Organization string `json:"organization,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

type registerReply struct {
	CorrelationID string    `json:"correlation_id"`
	ServiceToken  string    `json:"service_token"`
	Mode          string    `json:"mode"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Register bootstraps the gateway identity and stores the first service
// token. Registration is idempotent by email, so restarts reuse the same
// correlation id.
func (c *Client) Register(ctx context.Context, name, email, organization, sessionID string) (string, error) {
	var reply registerReply
	err := c.post(ctx, "/v1/identity/register", registerPayload{
		Name:         name,
		Email:        email,
		Organization: organization,
		SessionID:    sessionID,
	}, &reply, "")
	if err != nil {
		return "", fmt.Errorf("register gateway identity: %w", err)
	}

	c.mu.Lock()
	c.correlationID = reply.CorrelationID
	c.sessionID = sessionID
	c.token = reply.ServiceToken
	c.expiresAt = reply.ExpiresAt
	c.mu.Unlock()
	return reply.CorrelationID, nil
}

// CorrelationID returns the id assigned at registration.
func (c *Client) CorrelationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.correlationID
}

type tokenPayload struct {
	CorrelationID string `json:"correlation_id"`
	SessionID     string `json:"session_id,omitempty"`
}

type tokenReply struct {
	ServiceToken string    `json:"service_token"`
	Mode         string    `json:"mode"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// serviceToken returns a token that is valid for at least renewMargin,
// re-issuing through the API when the held one is close to expiry.
func (c *Client) serviceToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	correlationID := c.correlationID
	sessionID := c.sessionID
	token := c.token
	expires := c.expiresAt
	c.mu.Unlock()

	if correlationID == "" {
		return "", errors.New("gateway: not registered")
	}
	if token != "" && c.now().Add(renewMargin).Before(expires) {
		return token, nil
	}

	var reply tokenReply
	err := c.post(ctx, "/v1/identity/token", tokenPayload{
		CorrelationID: correlationID,
		SessionID:     sessionID,
	}, &reply, "")
	if err != nil {
		return "", fmt.Errorf("issue service token: %w", err)
	}

	c.mu.Lock()
	c.token = reply.ServiceToken
	c.expiresAt = reply.ExpiresAt
	c.mu.Unlock()
	return reply.ServiceToken, nil
}

// CallTool forwards one tool call to the API with the service token
// attached and decodes the JSON reply into out.
func (c *Client) CallTool(ctx context.Context, path string, out any) error {
	token, err := c.serviceToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", bearerPrefix+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tool call %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out)
}

const bearerPrefix = "Bearer "

func (c *Client) post(ctx context.Context, path string, payload, out any, token string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", bearerPrefix+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out)
}
