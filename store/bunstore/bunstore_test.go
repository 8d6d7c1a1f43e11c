package bunstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	teamauth "github.com/teamup-ku/go-teamauth"
	"github.com/teamup-ku/go-teamauth/store"
	"github.com/teamup-ku/go-teamauth/store/bunstore"
)

func setupStore(t *testing.T, dsn string) *bunstore.Store {
	t.Helper()

	s, db, err := bunstore.OpenSQLite(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return s
}

func TestBunStoreTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	tokens := store.Tokens(setupStore(t, "file::memory:?cache=shared"))

	got, err := tokens.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, tokens.Set(ctx, "abc"))
	require.NoError(t, tokens.Set(ctx, "def"))

	got, err = tokens.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "def", got)

	require.NoError(t, tokens.Clear(ctx))
	got, err = tokens.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBunStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "teamauth.db")

	first, db, err := bunstore.OpenSQLite(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, teamauth.TokenKey, "abc"))
	require.NoError(t, db.Close())

	second := setupStore(t, dsn)
	got, err := second.Get(ctx, teamauth.TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}
