package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	teamauth "github.com/teamup-ku/go-teamauth"
	"github.com/teamup-ku/go-teamauth/store"
)

// SessionKey is the KV key the provider session is kept under.
const SessionKey = "supabase.session"

// SessionStore keeps the provider session between calls. Load returns nil
// when nothing is stored.
type SessionStore interface {
	Load(ctx context.Context) (*teamauth.IdentitySession, error)
	Save(ctx context.Context, session *teamauth.IdentitySession) error
	Clear(ctx context.Context) error
}

// MemorySessionStore keeps the session in process memory.
type MemorySessionStore struct {
	mu      sync.RWMutex
	session *teamauth.IdentitySession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (m *MemorySessionStore) Load(_ context.Context) (*teamauth.IdentitySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, nil
	}
	cp := *m.session
	return &cp, nil
}

func (m *MemorySessionStore) Save(_ context.Context, session *teamauth.IdentitySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session == nil {
		m.session = nil
		return nil
	}
	cp := *session
	m.session = &cp
	return nil
}

func (m *MemorySessionStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	return nil
}

// KVSessionStore serializes the session as JSON into a store.KV slot, so the
// same backend can hold both the provider session and the application token.
type KVSessionStore struct {
	kv  store.KV
	key string
}

func NewKVSessionStore(kv store.KV) *KVSessionStore {
	return &KVSessionStore{kv: kv, key: SessionKey}
}

func (s *KVSessionStore) Load(ctx context.Context) (*teamauth.IdentitySession, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	var session teamauth.IdentitySession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("supabase: decode stored session: %w", err)
	}
	return &session, nil
}

func (s *KVSessionStore) Save(ctx context.Context, session *teamauth.IdentitySession) error {
	if session == nil {
		return s.Clear(ctx)
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("supabase: encode session: %w", err)
	}
	return s.kv.Set(ctx, s.key, string(raw))
}

func (s *KVSessionStore) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, s.key)
}
