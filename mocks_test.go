package teamauth_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	teamauth "github.com/teamup-ku/go-teamauth"
)

// MockIdentityClient implements teamauth.IdentityClient
type MockIdentityClient struct {
	mock.Mock
}

func (m *MockIdentityClient) SignUp(ctx context.Context, creds teamauth.Credentials, opts teamauth.SignUpOptions) (*teamauth.SignUpResult, error) {
	args := m.Called(ctx, creds, opts)
	res, _ := args.Get(0).(*teamauth.SignUpResult)
	return res, args.Error(1)
}

func (m *MockIdentityClient) SignIn(ctx context.Context, creds teamauth.Credentials) (*teamauth.IdentitySession, error) {
	args := m.Called(ctx, creds)
	session, _ := args.Get(0).(*teamauth.IdentitySession)
	return session, args.Error(1)
}

func (m *MockIdentityClient) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityClient) GetSession(ctx context.Context) (*teamauth.IdentitySession, error) {
	args := m.Called(ctx)
	session, _ := args.Get(0).(*teamauth.IdentitySession)
	return session, args.Error(1)
}

func (m *MockIdentityClient) GetUser(ctx context.Context) (*teamauth.IdentityUser, error) {
	args := m.Called(ctx)
	user, _ := args.Get(0).(*teamauth.IdentityUser)
	return user, args.Error(1)
}

func (m *MockIdentityClient) ResetPassword(ctx context.Context, email, redirectTo string) error {
	args := m.Called(ctx, email, redirectTo)
	return args.Error(0)
}

func (m *MockIdentityClient) UpdatePassword(ctx context.Context, newPassword string) (*teamauth.IdentityUser, error) {
	args := m.Called(ctx, newPassword)
	user, _ := args.Get(0).(*teamauth.IdentityUser)
	return user, args.Error(1)
}

func (m *MockIdentityClient) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	args := m.Called(provider, redirectTo, codeChallenge)
	return args.String(0)
}

func (m *MockIdentityClient) ExchangeCode(ctx context.Context, code, codeVerifier string) (*teamauth.IdentitySession, error) {
	args := m.Called(ctx, code, codeVerifier)
	session, _ := args.Get(0).(*teamauth.IdentitySession)
	return session, args.Error(1)
}

// MockExchanger implements teamauth.Exchanger
type MockExchanger struct {
	mock.Mock
}

func (m *MockExchanger) Exchange(ctx context.Context, token string) teamauth.ExchangeResult {
	args := m.Called(ctx, token)
	return args.Get(0).(teamauth.ExchangeResult)
}

// MockOnboardingCompleter implements teamauth.OnboardingCompleter
type MockOnboardingCompleter struct {
	mock.Mock
}

func (m *MockOnboardingCompleter) Complete(ctx context.Context, token string, profile teamauth.OnboardingProfile) (*teamauth.Authenticated, error) {
	args := m.Called(ctx, token, profile)
	auth, _ := args.Get(0).(*teamauth.Authenticated)
	return auth, args.Error(1)
}

type recordingSink struct {
	mu     sync.Mutex
	events []teamauth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event teamauth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []teamauth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]teamauth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *recordingSink) transitions() []teamauth.FlowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []teamauth.FlowState
	for _, e := range s.events {
		if e.EventType == teamauth.ActivityEventFlowTransition {
			out = append(out, e.ToState)
		}
	}
	return out
}
