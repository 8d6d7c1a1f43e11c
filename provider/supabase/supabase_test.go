package supabase_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	teamauth "github.com/teamup-ku/go-teamauth"
	"github.com/teamup-ku/go-teamauth/provider/supabase"
	"github.com/teamup-ku/go-teamauth/store"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newClient(t *testing.T, handler http.HandlerFunc) (*supabase.Client, *supabase.MemorySessionStore) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sessions := supabase.NewMemorySessionStore()
	client := supabase.New(supabase.Config{
		URL:        server.URL + "/",
		AnonKey:    "anon-key",
		HTTPClient: server.Client(),
		Sessions:   sessions,
		Now:        func() time.Time { return fixedNow },
	})
	return client, sessions
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func tokenReply(token string) map[string]any {
	return map[string]any{
		"access_token":  token,
		"refresh_token": "refresh",
		"token_type":    "bearer",
		"expires_in":    3600,
		"user":          map[string]any{"id": "uid-1", "email": "a@b.com"},
	}
}

func TestSignInPasswordGrant(t *testing.T) {
	client, sessions := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.com", body["email"])
		assert.Equal(t, "secret1", body["password"])

		writeJSON(w, http.StatusOK, tokenReply("sb-token"))
	})

	session, err := client.SignIn(context.Background(), teamauth.Credentials{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "sb-token", session.AccessToken)
	assert.Equal(t, "uid-1", session.User.ID)
	assert.Equal(t, fixedNow.Add(time.Hour), session.ExpiresAt)

	stored, err := sessions.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "sb-token", stored.AccessToken)
}

func TestSignInProviderMessageIsVerbatim(t *testing.T) {
	cases := map[string]map[string]any{
		"msg":               {"msg": "Email not confirmed", "error_code": "email_not_confirmed"},
		"error_description": {"error": "invalid_grant", "error_description": "Invalid login credentials"},
		"message":           {"message": "Too many requests"},
	}
	expected := map[string]string{
		"msg":               "Email not confirmed",
		"error_description": "Invalid login credentials",
		"message":           "Too many requests",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client, sessions := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, body)
			})

			_, err := client.SignIn(context.Background(), teamauth.Credentials{Email: "a@b.com", Password: "wrong1"})
			require.Error(t, err)
			assert.True(t, teamauth.IsTextCode(err, teamauth.TextCodeProvider))
			assert.Equal(t, expected[name], teamauth.UserMessage(err))

			stored, _ := sessions.Load(context.Background())
			assert.Nil(t, stored)
		})
	}
}

func TestSignUpPendingConfirmation(t *testing.T) {
	client, sessions := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		assert.Equal(t, "https://app.example.com/auth/callback", r.URL.Query().Get("redirect_to"))
		writeJSON(w, http.StatusOK, map[string]any{"id": "uid-2", "email": "new@b.com"})
	})

	res, err := client.SignUp(context.Background(),
		teamauth.Credentials{Email: "new@b.com", Password: "secret1"},
		teamauth.SignUpOptions{EmailRedirectTo: "https://app.example.com/auth/callback"})
	require.NoError(t, err)
	assert.True(t, res.PendingConfirmation())
	assert.Equal(t, "uid-2", res.User.ID)

	stored, _ := sessions.Load(context.Background())
	assert.Nil(t, stored)
}

func TestSignUpPolicyRejectsBeforeRequest(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusOK, tokenReply("sb-new"))
	}))
	t.Cleanup(server.Close)

	client := supabase.New(supabase.Config{
		URL:        server.URL,
		AnonKey:    "anon-key",
		HTTPClient: server.Client(),
		Policy:     teamauth.NewEmailPolicy(),
	})

	_, err := client.SignUp(context.Background(), teamauth.Credentials{Email: "kim@gmail.com", Password: "secret1"}, teamauth.SignUpOptions{})
	require.Error(t, err)
	assert.True(t, teamauth.IsTextCode(err, teamauth.TextCodeValidation))
	assert.Equal(t, 0, calls)

	res, err := client.SignUp(context.Background(), teamauth.Credentials{Email: "student@korea.edu", Password: "secret1"}, teamauth.SignUpOptions{})
	require.NoError(t, err)
	assert.False(t, res.PendingConfirmation())
	assert.Equal(t, 1, calls)
}

func TestSignUpWithImmediateSession(t *testing.T) {
	client, sessions := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, tokenReply("sb-new"))
	})

	res, err := client.SignUp(context.Background(), teamauth.Credentials{Email: "a@b.com", Password: "secret1"}, teamauth.SignUpOptions{})
	require.NoError(t, err)
	assert.False(t, res.PendingConfirmation())

	stored, _ := sessions.Load(context.Background())
	require.NotNil(t, stored)
	assert.Equal(t, "sb-new", stored.AccessToken)
}

func TestExchangeCodePKCE(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pkce", r.URL.Query().Get("grant_type"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "auth-code", body["auth_code"])
		assert.Equal(t, "verifier", body["code_verifier"])
		writeJSON(w, http.StatusOK, tokenReply("sb-oauth"))
	})

	session, err := client.ExchangeCode(context.Background(), "auth-code", "verifier")
	require.NoError(t, err)
	assert.Equal(t, "sb-oauth", session.AccessToken)
}

func TestGetSessionExpired(t *testing.T) {
	client, sessions := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	ctx := context.Background()

	require.NoError(t, sessions.Save(ctx, &teamauth.IdentitySession{AccessToken: "old", ExpiresAt: fixedNow.Add(-time.Minute)}))
	session, err := client.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	stored, _ := sessions.Load(ctx)
	assert.Nil(t, stored)

	require.NoError(t, sessions.Save(ctx, &teamauth.IdentitySession{AccessToken: "live", ExpiresAt: fixedNow.Add(time.Minute)}))
	session, err = client.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "live", session.AccessToken)
}

func TestSignOutClearsLocalSessionOnFailure(t *testing.T) {
	client, sessions := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/logout", r.URL.Path)
		assert.Equal(t, "Bearer live", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"msg": "boom"})
	})
	ctx := context.Background()
	require.NoError(t, sessions.Save(ctx, &teamauth.IdentitySession{AccessToken: "live"}))

	err := client.SignOut(ctx)
	assert.Error(t, err)

	stored, _ := sessions.Load(ctx)
	assert.Nil(t, stored)
}

func TestUserEndpointsUseSessionBearer(t *testing.T) {
	client, sessions := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "Bearer live", r.Header.Get("Authorization"))
		if r.Method == http.MethodPut {
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "newpass1", body["password"])
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "uid-1", "email": "a@b.com"})
	})
	ctx := context.Background()

	_, err := client.GetUser(ctx)
	assert.True(t, teamauth.IsTextCode(err, teamauth.TextCodeNoSession))

	require.NoError(t, sessions.Save(ctx, &teamauth.IdentitySession{AccessToken: "live"}))
	user, err := client.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", user.ID)

	user, err = client.UpdatePassword(ctx, "newpass1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", user.Email)
}

func TestResetPassword(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/recover", r.URL.Path)
		assert.Equal(t, "https://app.example.com/password/update", r.URL.Query().Get("redirect_to"))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.ResetPassword(context.Background(), "a@b.com", "https://app.example.com/password/update"))
}

func TestAuthorizeURL(t *testing.T) {
	client := supabase.New(supabase.Config{URL: "https://proj.supabase.co", AnonKey: "anon"})

	raw := client.AuthorizeURL("google", "http://127.0.0.1:5173/auth/callback", "challenge")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "/auth/v1/authorize", parsed.Path)
	q := parsed.Query()
	assert.Equal(t, "google", q.Get("provider"))
	assert.Equal(t, "http://127.0.0.1:5173/auth/callback", q.Get("redirect_to"))
	assert.Equal(t, "challenge", q.Get("code_challenge"))
	assert.Equal(t, "s256", q.Get("code_challenge_method"))
}

func TestUnreachableProvider(t *testing.T) {
	client := supabase.New(supabase.Config{URL: "http://127.0.0.1:1", AnonKey: "anon"})
	_, err := client.SignIn(context.Background(), teamauth.Credentials{Email: "a@b.com", Password: "secret1"})
	require.Error(t, err)
	assert.True(t, teamauth.IsTextCode(err, teamauth.TextCodeProvider))
	assert.Equal(t, "could not reach the identity provider", teamauth.UserMessage(err))
}

func TestKVSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	sessions := supabase.NewKVSessionStore(kv)

	got, err := sessions.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	in := &teamauth.IdentitySession{
		AccessToken: "abc",
		ExpiresAt:   fixedNow,
		User:        teamauth.IdentityUser{ID: "uid-1", Email: "a@b.com"},
	}
	require.NoError(t, sessions.Save(ctx, in))

	raw, err := kv.Get(ctx, supabase.SessionKey)
	require.NoError(t, err)
	assert.Contains(t, raw, `"access_token":"abc"`)

	got, err = sessions.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "uid-1", got.User.ID)
	assert.True(t, fixedNow.Equal(got.ExpiresAt))

	require.NoError(t, sessions.Clear(ctx))
	got, err = sessions.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
