package teamauth

import (
	"context"
	"log/slog"
)

// Logger is the structured logger used across the SDK. Messages are constant
// strings and args are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LoggerProvider hands out named loggers so each component can be scoped.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// LoggerProviderFunc adapts a function to LoggerProvider.
type LoggerProviderFunc func(name string) Logger

// GetLogger implements LoggerProvider.
func (f LoggerProviderFunc) GetLogger(name string) Logger {
	if f == nil {
		return defLogger{}
	}
	return f(name)
}

// IdentityClient wraps the external identity provider. Implementations keep
// no mutable state of their own; the provider session lives in whatever
// store the implementation was configured with.
type IdentityClient interface {
	SignUp(ctx context.Context, creds Credentials, opts SignUpOptions) (*SignUpResult, error)
	SignIn(ctx context.Context, creds Credentials) (*IdentitySession, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*IdentitySession, error)
	GetUser(ctx context.Context) (*IdentityUser, error)
	ResetPassword(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, newPassword string) (*IdentityUser, error)
	AuthorizeURL(provider, redirectTo, codeChallenge string) string
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*IdentitySession, error)
}

// Exchanger trades an identity access token for an ExchangeResult.
type Exchanger interface {
	Exchange(ctx context.Context, identityAccessToken string) ExchangeResult
}

// OnboardingCompleter submits an onboarding profile for a new user.
type OnboardingCompleter interface {
	Complete(ctx context.Context, identityAccessToken string, profile OnboardingProfile) (*Authenticated, error)
}

type defLogger struct{}

func (defLogger) Debug(msg string, args ...any) { slog.Debug("teamauth: "+msg, args...) }
func (defLogger) Info(msg string, args ...any)  { slog.Info("teamauth: "+msg, args...) }
func (defLogger) Warn(msg string, args ...any)  { slog.Warn("teamauth: "+msg, args...) }
func (defLogger) Error(msg string, args ...any) { slog.Error("teamauth: "+msg, args...) }

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}

func loggerFrom(p LoggerProvider, name string) Logger {
	if p == nil {
		return defLogger{}
	}
	return normalizeLogger(p.GetLogger(name))
}
