// Package bootstrap obtains a streaming session id from the backend's HTTP
// API before the streaming connection is opened.
package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/voxchat/internal/observe"
)

// DefaultTimeout bounds the whole set_username round trip.
const DefaultTimeout = 5 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 64 << 10

var (
	// ErrRequestTimedOut is returned when the backend does not answer within
	// the configured timeout.
	ErrRequestTimedOut = errors.New("bootstrap: request timed out")

	// ErrEmptyUsername is returned for a blank username.
	ErrEmptyUsername = errors.New("bootstrap: username is required")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("bootstrap: server returned %d", e.Status)
	}
	return fmt.Sprintf("bootstrap: server returned %d: %s", e.Status, e.Detail)
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the request timeout. Values <= 0 are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client calls the backend's REST API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	metrics *observe.Metrics
}

// New returns a client for the API rooted at apiURL
// (e.g. "http://localhost:8000/api").
func New(apiURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(apiURL, "/"),
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

type setUsernameRequest struct {
	Username string `json:"username"`
}

type setUsernameResponse struct {
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// SetUsername registers username with the backend and returns the session id
// to open the streaming connection with.
func (c *Client) SetUsername(ctx context.Context, username string) (sessionID string, err error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", ErrEmptyUsername
	}

	ctx, span := observe.StartSpan(ctx, observe.SpanSetUsername)
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		c.metrics.BootstrapDuration.Record(ctx, time.Since(start).Seconds())
	}()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(setUsernameRequest{Username: username})
	if err != nil {
		return "", fmt.Errorf("bootstrap: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/set_username", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("bootstrap: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", c.wrapTransport(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", c.wrapTransport(ctx, reqCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{Status: resp.StatusCode, Detail: detail(raw)}
	}

	var out setUsernameResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("bootstrap: decode response: %w", err)
	}
	if out.SessionID == "" {
		return "", errors.New("bootstrap: response has no session_id")
	}
	span.SetAttributes(observe.AttrSessionID.String(out.SessionID))
	observe.Logger(observe.WithSession(ctx, out.SessionID)).Info("bootstrap: session assigned")
	return out.SessionID, nil
}

// wrapTransport maps a transport failure to ErrRequestTimedOut when the
// request deadline (and not the caller's context) expired.
func (c *Client) wrapTransport(parent, reqCtx context.Context, err error) error {
	if parent.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrRequestTimedOut, c.timeout)
	}
	return fmt.Errorf("bootstrap: set_username: %w", err)
}

// detail extracts a human-readable message from an error body. The backend
// returns either {"detail":"..."} or a validation error list.
func detail(raw []byte) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err != nil || len(er.Detail) == 0 {
		return strings.TrimSpace(string(raw))
	}
	var s string
	if err := json.Unmarshal(er.Detail, &s); err == nil {
		return s
	}
	return string(er.Detail)
}

// LogValue implements slog.LogValuer.
func (e *APIError) LogValue() slog.Value {
	return slog.GroupValue(slog.Int("status", e.Status), slog.String("detail", e.Detail))
}
