package teamauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const maxResponseBytes = 1 << 20

// Response is a buffered backend reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// BackendClient talks JSON to the application backend. With a TokenSource
// it behaves as the authenticated fetch helper: relative endpoints are
// joined onto the base URL and the application token is attached as a
// bearer credential when present.
type BackendClient struct {
	baseURL      string
	httpClient   *http.Client
	tokens       TokenSource
	limiter      *rate.Limiter
	requireToken bool
	logger       Logger
}

// ClientOption configures a BackendClient.
type ClientOption func(*BackendClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(b *BackendClient) {
		if c != nil {
			b.httpClient = c
		}
	}
}

// WithTokenSource attaches the application token to outbound requests.
func WithTokenSource(ts TokenSource) ClientOption {
	return func(b *BackendClient) {
		b.tokens = ts
	}
}

// WithRequireToken makes requests fail with ErrNotAuthenticated when no
// application token is available, instead of going out anonymous.
func WithRequireToken() ClientOption {
	return func(b *BackendClient) {
		b.requireToken = true
	}
}

// WithRateLimiter throttles outbound requests.
func WithRateLimiter(l *rate.Limiter) ClientOption {
	return func(b *BackendClient) {
		b.limiter = l
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l Logger) ClientOption {
	return func(b *BackendClient) {
		b.logger = normalizeLogger(l)
	}
}

// NewBackendClient creates a client rooted at baseURL.
func NewBackendClient(baseURL string, opts ...ClientOption) *BackendClient {
	b := &BackendClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// BaseURL returns the configured base URL.
func (b *BackendClient) BaseURL() string {
	return b.baseURL
}

// URL resolves endpoint against the base URL. Absolute URLs pass through.
func (b *BackendClient) URL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return b.baseURL + endpoint
}

// Send performs the request and buffers the reply. Only transport failures
// are returned as errors; callers inspect Response.Status themselves.
func (b *BackendClient) Send(ctx context.Context, method, endpoint string, payload any) (*Response, error) {
	ctx, requestID := ensureRequestID(ctx)

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, derive(ErrValidation, "could not encode request", err, nil)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.URL(endpoint), body)
	if err != nil {
		return nil, derive(ErrBackend, "could not build request", err, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	if err := b.authorize(ctx, req); err != nil {
		return nil, err
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, derive(ErrBackend, "request cancelled", err, nil)
		}
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.logger.Error("backend request failed", "method", method, "endpoint", endpoint, "request_id", requestID, "error", err)
		return nil, derive(ErrBackend, "could not reach the server", err, map[string]any{
			"endpoint":   endpoint,
			"request_id": requestID,
		})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, derive(ErrBackend, "could not read the server response", err, nil)
	}

	b.logger.Debug("backend request", "method", method, "endpoint", endpoint, "status", resp.StatusCode, "request_id", requestID)

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

// DoJSON sends payload and decodes a 2xx reply into out (which may be nil).
// Failures are normalized into go-errors values carrying the backend message.
func (b *BackendClient) DoJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	return b.Call(ctx, method, endpoint, payload, out, "")
}

// Call is DoJSON with a fallback message for failures whose body carries
// none.
func (b *BackendClient) Call(ctx context.Context, method, endpoint string, payload, out any, fallback string) error {
	resp, err := b.Send(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}

	if !resp.OK() {
		return b.statusError(method, endpoint, resp, fallback)
	}

	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		b.logger.Error("backend response decode failed", "endpoint", endpoint, "error", err)
		return derive(ErrBackend, "malformed server response", err, map[string]any{"endpoint": endpoint})
	}
	return nil
}

func (b *BackendClient) authorize(ctx context.Context, req *http.Request) error {
	if b.tokens == nil {
		if b.requireToken {
			return derive(ErrNotAuthenticated, "", nil, nil)
		}
		return nil
	}

	token, err := b.tokens.Token(ctx)
	if err != nil {
		return derive(ErrBackend, "could not read the stored session", err, nil)
	}
	if token == "" {
		if b.requireToken {
			return derive(ErrNotAuthenticated, "", nil, nil)
		}
		return nil
	}

	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// statusError turns a non-2xx reply into ErrBackend (or ErrNotAuthenticated
// for 401), preferring the message embedded in the body.
func (b *BackendClient) statusError(method, endpoint string, resp *Response, fallback string) error {
	msg := BackendMessage(resp.Body)
	if msg == "" {
		msg = fallback
	}
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", resp.Status)
	}

	perr := &ProviderError{
		Provider:    "backend",
		Operation:   method + " " + endpoint,
		Status:      resp.Status,
		Description: msg,
	}

	b.logger.Warn("backend request rejected", "method", method, "endpoint", endpoint, "status", resp.Status, "body", string(resp.Body))

	base := ErrBackend
	if resp.Status == http.StatusUnauthorized {
		base = ErrNotAuthenticated
	}
	return WrapProviderError(base, perr)
}

// BackendMessage extracts a human-readable message from an error body.
// NestJS-style bodies may carry message as a string or a list of strings.
func BackendMessage(body []byte) string {
	var payload struct {
		Message any    `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	switch m := payload.Message.(type) {
	case string:
		if s := strings.TrimSpace(m); s != "" {
			return s
		}
	case []any:
		parts := make([]string, 0, len(m))
		for _, item := range m {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}

	return strings.TrimSpace(payload.Error)
}
