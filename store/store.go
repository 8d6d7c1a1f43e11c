// Package store provides the key-value slots behind the application token
// and the identity provider session. Backends live in sub-packages.
package store

import (
	"context"
	"sync"

	teamauth "github.com/teamup-ku/go-teamauth"
)

// KV is a small string key-value store. Get returns "" for a missing key.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Memory is an in-process KV.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

// TokenStore exposes one KV slot as a teamauth.TokenStore.
type TokenStore struct {
	kv  KV
	key string
}

// Tokens binds the application token slot (teamauth.TokenKey) of kv.
func Tokens(kv KV) *TokenStore {
	return TokensAt(kv, teamauth.TokenKey)
}

// TokensAt binds an arbitrary slot of kv.
func TokensAt(kv KV, key string) *TokenStore {
	if kv == nil {
		kv = NewMemory()
	}
	if key == "" {
		key = teamauth.TokenKey
	}
	return &TokenStore{kv: kv, key: key}
}

func (t *TokenStore) Set(ctx context.Context, token string) error {
	return t.kv.Set(ctx, t.key, token)
}

func (t *TokenStore) Get(ctx context.Context) (string, error) {
	return t.kv.Get(ctx, t.key)
}

func (t *TokenStore) Clear(ctx context.Context) error {
	return t.kv.Delete(ctx, t.key)
}

var _ teamauth.TokenStore = (*TokenStore)(nil)
