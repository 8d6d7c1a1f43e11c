package redisstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamup-ku/go-teamauth/store"
	"github.com/teamup-ku/go-teamauth/store/redisstore"
)

func dial(t *testing.T, opts ...redisstore.Option) *redisstore.Store {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	opts = append([]redisstore.Option{redisstore.WithPrefix("teamauth-test:" + uuid.NewString() + ":")}, opts...)
	s, client, err := redisstore.Dial(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), 0, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return s
}

func TestRedisTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	tokens := store.Tokens(dial(t))

	got, err := tokens.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, tokens.Set(ctx, "abc"))
	got, err = tokens.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	require.NoError(t, tokens.Clear(ctx))
	got, err = tokens.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisTTL(t *testing.T) {
	ctx := context.Background()
	s := dial(t, redisstore.WithTTL(time.Second))

	require.NoError(t, s.Set(ctx, "k", "v"))
	require.Eventually(t, func() bool {
		got, err := s.Get(ctx, "k")
		return err == nil && got == ""
	}, 3*time.Second, 100*time.Millisecond)
}

func TestDialFailure(t *testing.T) {
	_, _, err := redisstore.Dial(context.Background(), "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
