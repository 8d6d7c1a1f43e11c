package teamauth

import (
	"context"
	"strings"
	"sync"
)

// TokenKey is the single persisted slot holding the application JWT.
const TokenKey = "jwtToken"

// TokenStore persists the application token. Get returns "" when empty.
type TokenStore interface {
	Set(ctx context.Context, token string) error
	Get(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// TokenSource is the read-only view handed to authorized clients.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// MemoryTokenStore keeps the token for the lifetime of the process.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenStore returns an empty store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Set(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryTokenStore) Get(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *MemoryTokenStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}

// SessionContext is the injectable holder of the application session. Any
// component may read through it; only the orchestrator in this package can
// write, which keeps the single-writer rule enforced by the compiler.
type SessionContext struct {
	store TokenStore
}

// NewSessionContext wraps store, defaulting to an in-memory store.
func NewSessionContext(store TokenStore) *SessionContext {
	if store == nil {
		store = NewMemoryTokenStore()
	}
	return &SessionContext{store: store}
}

// Token implements TokenSource.
func (s *SessionContext) Token(ctx context.Context) (string, error) {
	token, err := s.store.Get(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// Authenticated reports whether an application token is present.
func (s *SessionContext) Authenticated(ctx context.Context) bool {
	token, err := s.Token(ctx)
	return err == nil && token != ""
}

// Claims decodes the stored application token.
func (s *SessionContext) Claims(ctx context.Context) (*ApplicationClaims, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, derive(ErrNotAuthenticated, "", nil, nil)
	}
	return DecodeApplicationToken(token)
}

func (s *SessionContext) persist(ctx context.Context, token string) error {
	return s.store.Set(ctx, token)
}

func (s *SessionContext) clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}
