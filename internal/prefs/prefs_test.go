package prefs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_GetMissing(t *testing.T) {
	store := setupStore(t)

	_, ok, err := store.Get(context.Background(), KeyOnboardingCompleted)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SetGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, KeyOnboardingCompleted, "true"))

	value, ok, err := store.Get(ctx, KeyOnboardingCompleted)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", value)
}

func TestStore_SetIdempotent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, KeyOnboardingCompleted, "true"))
	require.NoError(t, store.Set(ctx, KeyOnboardingCompleted, "true"))

	value, ok, err := store.Get(ctx, KeyOnboardingCompleted)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", value)
}

func TestStore_Overwrite(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, KeySession, `{"access_token":"a"}`))
	require.NoError(t, store.Set(ctx, KeySession, `{"access_token":"b"}`))

	value, ok, err := store.Get(ctx, KeySession)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"access_token":"b"}`, value)
}

func TestStore_Delete(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, KeySession, "x"))
	require.NoError(t, store.Delete(ctx, KeySession))

	_, ok, err := store.Get(ctx, KeySession)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
