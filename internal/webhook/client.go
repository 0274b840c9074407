// Package webhook implements the outbound push client for the external
// automation receiver (n8n). All deliveries flow through a circuit breaker so
// a dead receiver trips fast instead of burning the full timeout on every
// item in a batch.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"tweetrelay/internal/config"
	"tweetrelay/internal/types"
)

// secretHeader carries the receiver-shared secret for authentication.
const secretHeader = "X-Webhook-Secret"

// maxResponseBodyRead limits how much of a response body we read for error
// messages.
const maxResponseBodyRead = 4096

// deliveryPayload is the wire format pushed to the receiver.
type deliveryPayload struct {
	Type      string         `json:"type"`
	Group     string         `json:"group"`
	Payload   string         `json:"payload"`
	Metadata  types.Metadata `json:"metadata,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Client delivers scheduled items to the configured receiver URL over HTTP.
// It is safe for concurrent use.
type Client struct {
	url        string
	secret     types.SecretString
	userAgent  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
}

// NewClient creates a Client from the webhook configuration. The breaker
// opens after five consecutive receiver failures and probes again after 30
// seconds.
func NewClient(cfg config.WebhookConfig) *Client {
	return NewClientWithHTTPClient(cfg, &http.Client{Timeout: cfg.Timeout})
}

// NewClientWithHTTPClient creates a Client with a caller-supplied HTTP
// client. This constructor exists for testing, allowing injection of an
// httptest server client.
func NewClientWithHTTPClient(cfg config.WebhookConfig, httpClient *http.Client) *Client {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "receiver-webhook",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Client{
		url:        cfg.URL,
		secret:     cfg.Secret,
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
		breaker:    cb,
	}
}

// CheckReady reports whether the client has a destination to deliver to.
// A missing URL short-circuits the whole dispatch cycle rather than failing
// items one by one.
func (c *Client) CheckReady() error {
	if c.url == "" {
		return errors.New("webhook: receiver URL not configured")
	}
	return nil
}

// Deliver pushes one scheduled item to the receiver. Any transport error,
// timeout, open breaker, or non-2xx response is a delivery failure; the
// caller owns the retry policy.
func (c *Client) Deliver(ctx context.Context, item *types.ScheduledItem) error {
	if err := c.CheckReady(); err != nil {
		return err
	}

	body, err := json.Marshal(deliveryPayload{
		Type:      "scheduled_item",
		Group:     item.Group,
		Payload:   item.Content,
		Metadata:  item.Metadata,
		Timestamp: item.ScheduledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshaling payload: %w", err)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		if secret := c.secret.Unmask(); secret != "" {
			req.Header.Set(secretHeader, secret)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
			resp.Body.Close()
			return nil, fmt.Errorf("receiver returned status %d: %s", resp.StatusCode, string(snippet))
		}
		return resp, nil
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamDelivery, "delivery to receiver failed", err)
	}

	// Drain and close so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyRead))
	resp.Body.Close()
	return nil
}
