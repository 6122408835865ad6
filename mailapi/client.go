// Package mailapi is the HTTP client for the external email-delivery
// backend. The backend owns all email domain logic; this client only speaks
// its REST contract, retrying transient faults with exponential backoff and
// surfacing non-success envelopes as typed errors.
package mailapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxRetries  = 3
	defaultBackoffBase = time.Second
)

// APIError is a non-success response from the backend: either a non-2xx
// status or a {success:false} envelope. It is never retried once classified
// as a client-side (4xx) or application-level failure.
type APIError struct {
	StatusCode int
	ErrText    string
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrText != "" {
		return fmt.Sprintf("mailapi: backend error (status %d): %s", e.StatusCode, e.ErrText)
	}
	return fmt.Sprintf("mailapi: backend error (status %d)", e.StatusCode)
}

// envelope is the backend's uniform response shape.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// SendRequest is the payload for /send and /send/async.
type SendRequest struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Priority string `json:"priority,omitempty"`
}

// Client talks to the email backend. Safe for concurrent use.
type Client struct {
	baseURL     string
	token       string
	http        *http.Client
	timeout     time.Duration
	maxRetries  int
	backoffBase time.Duration
	log         *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient injects the underlying http.Client. Intended for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-attempt request timeout. It applies after every
// option has resolved, so combining it with WithHTTPClient works in either
// order.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxRetries bounds retry attempts for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoffBase overrides the first backoff delay. Intended for tests.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoffBase = d
		}
	}
}

// WithLogger sets the logger used for retry reporting.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New constructs a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid backend URL %q", baseURL)
	}

	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: defaultTimeout},
		maxRetries:  defaultMaxRetries,
		backoffBase: defaultBackoffBase,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		c.http.Timeout = c.timeout
	}
	return c, nil
}

// Send delivers an email synchronously via POST /send.
func (c *Client) Send(ctx context.Context, req SendRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/send", req)
}

// SendAsync enqueues an email via POST /send/async.
func (c *Client) SendAsync(ctx context.Context, req SendRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/send/async", req)
}

// ListTemplates fetches the template catalog via GET /templates.
func (c *Client) ListTemplates(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/templates", nil)
}

// GetTemplate fetches one template via GET /templates/{name}.
func (c *Client) GetTemplate(ctx context.Context, name string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/templates/"+url.PathEscape(name), nil)
}

// GetStatus fetches one delivery status via GET /status/{id}.
func (c *Client) GetStatus(ctx context.Context, id string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(id), nil)
}

// BatchStatus fetches delivery statuses in bulk via POST /status/batch.
func (c *Client) BatchStatus(ctx context.Context, ids []string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/status/batch", map[string]any{"ids": ids})
}

// Health probes the backend via GET /health.
func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/health", nil)
}

// do performs one backend call with retry. Network errors and 5xx responses
// are retried with exponential backoff (base doubling per attempt); 4xx
// responses, application-level failures, and context cancellation are
// terminal.
func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffBase << (attempt - 1)
			c.log.WarnContext(ctx, "mailapi.retry",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("err", lastErr.Error()))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		data, retryable, err := c.attempt(ctx, method, path, payload)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("mailapi: %s %s failed after %d retries: %w", method, path, c.maxRetries, lastErr)
}

// attempt performs a single request and classifies its failure mode.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte) (data json.RawMessage, retryable bool, err error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, true, &APIError{StatusCode: resp.StatusCode, ErrText: strings.TrimSpace(string(raw))}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return nil, false, &APIError{StatusCode: resp.StatusCode, ErrText: strings.TrimSpace(string(raw))}
		}
		return nil, false, fmt.Errorf("invalid backend response: %w", err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		errText := env.Error
		if errText == "" {
			errText = env.Message
		}
		return nil, false, &APIError{StatusCode: resp.StatusCode, ErrText: errText, Message: env.Message}
	}

	return env.Data, false, nil
}
