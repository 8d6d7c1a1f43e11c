package callback_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	teamauth "github.com/teamup-ku/go-teamauth"
	"github.com/teamup-ku/go-teamauth/callback"
	"github.com/teamup-ku/go-teamauth/metrics"
)

type fakeHandler struct {
	got teamauth.CallbackParams
	out teamauth.Outcome
}

func (f *fakeHandler) HandleCallback(_ context.Context, params teamauth.CallbackParams) teamauth.Outcome {
	f.got = params
	return f.out
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCallbackSuccessPage(t *testing.T) {
	handler := &fakeHandler{out: teamauth.Outcome{
		State:       teamauth.FlowAuthenticated,
		Message:     "welcome back",
		RedirectURL: "https://teamup.example.com/dashboard",
	}}
	srv, err := callback.New(handler)
	require.NoError(t, err)
	srv.Expect(&teamauth.OAuthRequest{CodeVerifier: "verifier"})

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, "Signed in")
	assert.Contains(t, body, "welcome back")
	assert.Contains(t, body, `content="0;url=https://teamup.example.com/dashboard"`)

	assert.Equal(t, "abc", handler.got.Code)
	assert.Equal(t, "verifier", handler.got.CodeVerifier)

	select {
	case out := <-srv.Results():
		assert.Equal(t, teamauth.FlowAuthenticated, out.State)
	default:
		t.Fatal("expected an outcome on the results channel")
	}
}

func TestCallbackFailurePageRedirectsAfterDelay(t *testing.T) {
	handler := &fakeHandler{out: teamauth.Outcome{
		State:         teamauth.FlowFailed,
		Message:       "Invalid login credentials",
		RedirectURL:   "https://teamup.example.com/login?error=authentication_failed",
		RedirectAfter: teamauth.DefaultRedirectDelay,
		Err:           errors.New("rejected"),
	}}
	srv, err := callback.New(handler)
	require.NoError(t, err)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet,
		"/auth/callback?error=access_denied&error_description=nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, "Sign-in failed")
	assert.Contains(t, body, "Invalid login credentials")
	assert.Contains(t, body, `content="3;url=https://teamup.example.com/login?error=authentication_failed"`)

	assert.Equal(t, "access_denied", handler.got.Error)
	assert.Equal(t, "nope", handler.got.ErrorDescription)
}

func TestCallbackOnboardingPage(t *testing.T) {
	handler := &fakeHandler{out: teamauth.Outcome{
		State:       teamauth.FlowOnboarding,
		RedirectURL: "https://teamup.example.com/onboarding",
	}}
	srv, err := callback.New(handler, callback.WithPath("/cb"))
	require.NoError(t, err)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/cb", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Almost there")
}

func TestCallbackServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	require.NoError(t, collector.Record(context.Background(), teamauth.ActivityEvent{EventType: teamauth.ActivityEventOAuthStarted, Flow: "callback"}))

	srv, err := callback.New(&fakeHandler{}, callback.WithMetrics(reg))
	require.NoError(t, err)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "teamauth_events_total")
}

func TestCallbackServerLifecycle(t *testing.T) {
	srv, err := callback.New(&fakeHandler{}, callback.WithAddr("127.0.0.1:0"))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:0/auth/callback", srv.URL())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestCallbackHandlerFunc(t *testing.T) {
	var got teamauth.CallbackParams
	srv, err := callback.New(callback.HandlerFunc(func(_ context.Context, params teamauth.CallbackParams) teamauth.Outcome {
		got = params
		return teamauth.Outcome{State: teamauth.FlowAuthenticated}
	}))
	require.NoError(t, err)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/auth/callback?code=xyz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "xyz", got.Code)
}
