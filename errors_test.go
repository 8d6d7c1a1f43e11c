package teamauth_test

import (
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	teamauth "github.com/teamup-ku/go-teamauth"
)

func TestIsTextCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     string
		expected bool
	}{
		{
			name:     "Sentinel matches its own code",
			err:      teamauth.ErrNoSession,
			code:     teamauth.TextCodeNoSession,
			expected: true,
		},
		{
			name:     "Wrapped sentinel",
			err:      fmt.Errorf("outer: %w", teamauth.ErrBackend),
			code:     teamauth.TextCodeBackend,
			expected: true,
		},
		{
			name:     "Different code",
			err:      teamauth.ErrProvider,
			code:     teamauth.TextCodeBackend,
			expected: false,
		},
		{
			name:     "Plain error",
			err:      errors.New("boom"),
			code:     teamauth.TextCodeBackend,
			expected: false,
		},
		{
			name:     "Nil error",
			err:      nil,
			code:     teamauth.TextCodeBackend,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, teamauth.IsTextCode(tt.err, tt.code))
		})
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", teamauth.UserMessage(nil))
	assert.Equal(t, "no access token was issued", teamauth.UserMessage(teamauth.ErrNoSession))
	assert.Equal(t, "boom", teamauth.UserMessage(errors.New(" boom ")))
}

func TestWrapProviderErrorUsesProviderWording(t *testing.T) {
	perr := &teamauth.ProviderError{
		Provider:    "supabase",
		Operation:   "signup",
		Status:      422,
		Description: "User already registered",
	}

	err := teamauth.WrapProviderError(teamauth.ErrProvider, perr)
	require.Error(t, err)

	assert.Equal(t, "User already registered", teamauth.UserMessage(err))
	assert.True(t, teamauth.IsTextCode(err, teamauth.TextCodeProvider))

	var unwrapped *teamauth.ProviderError
	require.True(t, errors.As(err, &unwrapped))
	assert.Equal(t, 422, unwrapped.Status)

	// the shared sentinel keeps its original message
	assert.Equal(t, "identity provider rejected the request", teamauth.ErrProvider.Message)
}

func TestWrapProviderErrorMapsHTTPStatus(t *testing.T) {
	tests := []struct {
		status   int
		code     int
		category string
	}{
		{status: 422, code: 422, category: "bad_input"},
		{status: 429, code: 429, category: "rate_limit"},
		{status: 503, code: 503, category: "internal"},
		{status: 0, code: goerrors.CodeUnauthorized, category: ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			perr := &teamauth.ProviderError{Provider: "supabase", Operation: "token", Status: tt.status, Description: "nope"}
			err := teamauth.WrapProviderError(teamauth.ErrProvider, perr)

			var rich *goerrors.Error
			require.True(t, goerrors.As(err, &rich))
			assert.Equal(t, tt.code, rich.Code)
			assert.Equal(t, teamauth.TextCodeProvider, rich.TextCode)
			if tt.category == "" {
				assert.NotContains(t, rich.Metadata, "status_category")
			} else {
				assert.Equal(t, tt.category, rich.Metadata["status_category"])
			}
		})
	}

	assert.Equal(t, goerrors.CodeUnauthorized, teamauth.ErrProvider.Code)
}

func TestProviderErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *teamauth.ProviderError
		expected string
	}{
		{
			name:     "description",
			err:      &teamauth.ProviderError{Provider: "supabase", Operation: "token", Description: "Invalid login credentials"},
			expected: "supabase token failed: Invalid login credentials",
		},
		{
			name:     "with status",
			err:      &teamauth.ProviderError{Provider: "backend", Operation: "GET /project", Status: 404, Description: "project not found"},
			expected: "backend GET /project failed [404]: project not found",
		},
		{
			name:     "code only",
			err:      &teamauth.ProviderError{Provider: "backend", Code: "E_DUP"},
			expected: "backend failed: E_DUP",
		},
		{
			name:     "nothing",
			err:      &teamauth.ProviderError{},
			expected: "provider failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}
