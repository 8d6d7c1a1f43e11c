// Package supabase implements teamauth.IdentityClient against the Supabase
// GoTrue REST API.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	teamauth "github.com/teamup-ku/go-teamauth"
)

const providerName = "supabase"

// Config holds the project settings.
type Config struct {
	URL     string
	AnonKey string

	HTTPClient *http.Client
	Sessions   SessionStore
	// Policy, when set, rejects sign-ups outside the institution domains
	// before any request is sent.
	Policy *teamauth.EmailPolicy
	Logger teamauth.Logger
	// Now is used to expire stored sessions.
	Now func() time.Time
}

// Client talks to GoTrue and keeps the session in Config.Sessions.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	sessions   SessionStore
	policy     *teamauth.EmailPolicy
	logger     teamauth.Logger
	now        func() time.Time
}

var _ teamauth.IdentityClient = (*Client)(nil)

// New creates a client for the project at cfg.URL.
func New(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = NewMemorySessionStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = teamauth.NopLogger{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		anonKey:    cfg.AnonKey,
		httpClient: client,
		sessions:   sessions,
		policy:     cfg.Policy,
		logger:     logger,
		now:        now,
	}
}

// SignUp registers a user. With email confirmation enabled GoTrue replies
// with the bare user and no session.
func (c *Client) SignUp(ctx context.Context, creds teamauth.Credentials, opts teamauth.SignUpOptions) (*teamauth.SignUpResult, error) {
	if c.policy != nil {
		if err := c.policy.Check(creds.Email); err != nil {
			return nil, err
		}
	}

	endpoint := "/signup"
	if opts.EmailRedirectTo != "" {
		endpoint += "?" + url.Values{"redirect_to": {opts.EmailRedirectTo}}.Encode()
	}

	payload := map[string]any{
		"email":    creds.Email,
		"password": creds.Password,
	}
	if len(opts.Data) > 0 {
		payload["data"] = opts.Data
	}

	var reply sessionReply
	if err := c.do(ctx, "signup", http.MethodPost, endpoint, "", payload, &reply); err != nil {
		return nil, err
	}

	if reply.AccessToken == "" {
		user := reply.bareUser()
		return &teamauth.SignUpResult{User: user}, nil
	}

	session := reply.session(c.now())
	if err := c.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	return &teamauth.SignUpResult{User: session.User, Session: session}, nil
}

// SignIn uses the password grant.
func (c *Client) SignIn(ctx context.Context, creds teamauth.Credentials) (*teamauth.IdentitySession, error) {
	payload := map[string]any{
		"email":    creds.Email,
		"password": creds.Password,
	}
	return c.grant(ctx, "sign_in", "password", payload)
}

// ExchangeCode completes a PKCE OAuth redirect.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*teamauth.IdentitySession, error) {
	payload := map[string]any{
		"auth_code":     code,
		"code_verifier": codeVerifier,
	}
	return c.grant(ctx, "exchange_code", "pkce", payload)
}

func (c *Client) grant(ctx context.Context, operation, grantType string, payload map[string]any) (*teamauth.IdentitySession, error) {
	endpoint := "/token?" + url.Values{"grant_type": {grantType}}.Encode()

	var reply sessionReply
	if err := c.do(ctx, operation, http.MethodPost, endpoint, "", payload, &reply); err != nil {
		return nil, err
	}
	if reply.AccessToken == "" {
		return nil, teamauth.WrapProviderError(teamauth.ErrNoSession,
			providerError(operation, http.StatusOK, "missing_access_token", "no session was returned", nil, nil))
	}

	session := reply.session(c.now())
	if err := c.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SignOut revokes the session remotely. The local session is cleared even
// when the provider call fails.
func (c *Client) SignOut(ctx context.Context) error {
	session, err := c.sessions.Load(ctx)
	if err != nil {
		c.logger.Warn("supabase session load failed", "error", err)
	}

	var remoteErr error
	if session.Valid() {
		remoteErr = c.do(ctx, "sign_out", http.MethodPost, "/logout", session.AccessToken, nil, nil)
		if remoteErr != nil {
			c.logger.Warn("supabase sign out failed", "error", remoteErr)
		}
	}

	if err := c.sessions.Clear(ctx); err != nil {
		return err
	}
	return remoteErr
}

// GetSession returns the stored session, or nil when there is none or it
// has expired.
func (c *Client) GetSession(ctx context.Context) (*teamauth.IdentitySession, error) {
	session, err := c.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !session.Valid() {
		return nil, nil
	}
	if !session.ExpiresAt.IsZero() && !c.now().Before(session.ExpiresAt) {
		c.logger.Debug("supabase session expired", "expires_at", session.ExpiresAt)
		_ = c.sessions.Clear(ctx)
		return nil, nil
	}
	return session, nil
}

// GetUser fetches the current user for the stored session.
func (c *Client) GetUser(ctx context.Context) (*teamauth.IdentityUser, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, teamauth.WrapProviderError(teamauth.ErrNoSession, nil)
	}

	var user userReply
	if err := c.do(ctx, "get_user", http.MethodGet, "/user", session.AccessToken, nil, &user); err != nil {
		return nil, err
	}
	out := user.identity()
	return &out, nil
}

// ResetPassword sends a recovery email linking to redirectTo.
func (c *Client) ResetPassword(ctx context.Context, email, redirectTo string) error {
	endpoint := "/recover"
	if redirectTo != "" {
		endpoint += "?" + url.Values{"redirect_to": {redirectTo}}.Encode()
	}
	return c.do(ctx, "reset_password", http.MethodPost, endpoint, "", map[string]any{"email": email}, nil)
}

// UpdatePassword changes the password of the signed-in user.
func (c *Client) UpdatePassword(ctx context.Context, newPassword string) (*teamauth.IdentityUser, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, teamauth.WrapProviderError(teamauth.ErrNoSession, nil)
	}

	var user userReply
	payload := map[string]any{"password": newPassword}
	if err := c.do(ctx, "update_password", http.MethodPut, "/user", session.AccessToken, payload, &user); err != nil {
		return nil, err
	}
	out := user.identity()
	return &out, nil
}

// AuthorizeURL builds the OAuth redirect for provider using PKCE.
func (c *Client) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	params := url.Values{"provider": {provider}}
	if redirectTo != "" {
		params.Set("redirect_to", redirectTo)
	}
	if codeChallenge != "" {
		params.Set("code_challenge", codeChallenge)
		params.Set("code_challenge_method", "s256")
	}
	return c.baseURL + "/authorize?" + params.Encode()
}

func (c *Client) do(ctx context.Context, operation, method, endpoint, bearer string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return teamauth.WrapProviderError(teamauth.ErrValidation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return teamauth.WrapProviderError(teamauth.ErrProvider,
			providerError(operation, 0, "request", "could not build request", err, nil))
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase request failed", "operation", operation, "error", err)
		return teamauth.WrapProviderError(teamauth.ErrProvider,
			providerError(operation, 0, "unreachable", "could not reach the identity provider", err, nil))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return teamauth.WrapProviderError(teamauth.ErrProvider,
			providerError(operation, resp.StatusCode, "read", "could not read the identity provider response", err, nil))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(raw)
		c.logger.Warn("supabase request rejected", "operation", operation, "status", resp.StatusCode, "code", apiErr.code())
		return teamauth.WrapProviderError(teamauth.ErrProvider,
			providerError(operation, resp.StatusCode, apiErr.code(), apiErr.message(resp.StatusCode), nil, apiErr.metadata()))
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return teamauth.WrapProviderError(teamauth.ErrProvider,
			providerError(operation, resp.StatusCode, "invalid_response", "failed to decode identity provider response", err, nil))
	}
	return nil
}

func providerError(operation string, status int, code, description string, err error, raw map[string]any) *teamauth.ProviderError {
	return &teamauth.ProviderError{
		Provider:    providerName,
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
		Raw:         raw,
	}
}
