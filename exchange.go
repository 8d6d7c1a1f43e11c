package teamauth

import (
	"context"
	"net/http"
	"strings"
)

// ExchangeResult is one of Authenticated, OnboardingRequired or Failed.
type ExchangeResult interface {
	exchangeResult()
}

// Authenticated means the identity belongs to an onboarded user.
type Authenticated struct {
	ApplicationToken string
	User             *User
}

// OnboardingRequired means the identity has no application user yet.
type OnboardingRequired struct {
	IdentityUID         string
	Email               string
	IdentityAccessToken string
}

// Failed carries a user-facing reason and the underlying error.
type Failed struct {
	Reason string
	Err    error
}

func (Authenticated) exchangeResult()      {}
func (OnboardingRequired) exchangeResult() {}
func (Failed) exchangeResult()             {}

func (f Failed) Error() string {
	return f.Reason
}

func (f Failed) Unwrap() error {
	return f.Err
}

// ClassifyExchange classifies a canonical exchange reply body.
func ClassifyExchange(body []byte) ExchangeResult {
	return SchemaV2.Classify(body, "")
}

// ExchangeClient trades an identity access token for an application token.
type ExchangeClient struct {
	backend *BackendClient
	path    string
	schema  SchemaVersion
	logger  Logger
}

// ExchangeOption configures the ExchangeClient.
type ExchangeOption func(*ExchangeClient)

// WithExchangePath overrides the endpoint path.
func WithExchangePath(path string) ExchangeOption {
	return func(c *ExchangeClient) {
		if path != "" {
			c.path = path
		}
	}
}

// WithExchangeSchema selects the wire schema.
func WithExchangeSchema(v SchemaVersion) ExchangeOption {
	return func(c *ExchangeClient) {
		c.schema = v
	}
}

// WithExchangeLogger sets the logger.
func WithExchangeLogger(l Logger) ExchangeOption {
	return func(c *ExchangeClient) {
		c.logger = normalizeLogger(l)
	}
}

// NewExchangeClient builds a client posting to /auth/supabase.
func NewExchangeClient(backend *BackendClient, opts ...ExchangeOption) *ExchangeClient {
	c := &ExchangeClient{
		backend: backend,
		path:    "/auth/supabase",
		schema:  SchemaV2,
		logger:  defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Exchange never returns nil; transport and backend errors become Failed.
func (c *ExchangeClient) Exchange(ctx context.Context, identityAccessToken string) ExchangeResult {
	if strings.TrimSpace(identityAccessToken) == "" {
		err := derive(ErrValidation, "missing identity access token", nil, nil)
		return Failed{Reason: err.Message, Err: err}
	}

	resp, err := c.backend.Send(ctx, http.MethodPost, c.path, map[string]string{
		"accessToken": identityAccessToken,
	})
	if err != nil {
		return Failed{Reason: UserMessage(err), Err: err}
	}

	if !resp.OK() {
		err := c.backend.statusError(http.MethodPost, c.path, resp, "sign-in failed")
		return Failed{Reason: UserMessage(err), Err: err}
	}

	result := c.schema.Classify(resp.Body, identityAccessToken)
	switch r := result.(type) {
	case Failed:
		c.logger.Error("exchange reply not recognized", "reason", r.Reason, "status", resp.Status, "body", string(resp.Body))
	case OnboardingRequired:
		c.logger.Info("exchange requires onboarding", "identity_uid", r.IdentityUID)
	case Authenticated:
		c.logger.Debug("exchange authenticated")
	}
	return result
}
