package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertthunder/tunedeck/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStorage struct{ *MemoryStorage }

func (f *failingStorage) SetItem(context.Context, string, string) error {
	return errors.New("disk full")
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("empty storage is unauthenticated", func(t *testing.T) {
		s, err := NewStore(ctx, NewMemoryStorage(), "", nil)
		require.NoError(t, err)

		tok, ok := s.Current()
		assert.False(t, ok)
		assert.Empty(t, tok)
	})

	t.Run("persisted shape", func(t *testing.T) {
		storage := NewMemoryStorage()
		s, err := NewStore(ctx, storage, "", nil)
		require.NoError(t, err)

		require.NoError(t, s.SetToken(ctx, "abc"))
		raw, err := storage.GetItem(ctx, DefaultKey)
		require.NoError(t, err)
		assert.JSONEq(t, `{"state":{"token":"abc"},"version":0}`, raw)

		require.NoError(t, s.Clear(ctx))
		raw, err = storage.GetItem(ctx, DefaultKey)
		require.NoError(t, err)
		assert.JSONEq(t, `{"state":{"token":null},"version":0}`, raw)
	})

	t.Run("round trip across reload", func(t *testing.T) {
		storage := NewMemoryStorage()
		s, err := NewStore(ctx, storage, "custom", nil)
		require.NoError(t, err)
		require.NoError(t, s.SetToken(ctx, "token-1"))

		reloaded, err := NewStore(ctx, storage, "custom", nil)
		require.NoError(t, err)
		tok, ok := reloaded.Current()
		assert.True(t, ok)
		assert.Equal(t, "token-1", tok)
	})

	t.Run("round trip through file storage", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "creds")
		fs, err := NewFileStorage(dir)
		require.NoError(t, err)

		s, err := NewStore(ctx, fs, "", nil)
		require.NoError(t, err)
		require.NoError(t, s.SetToken(ctx, "file-token"))

		info, err := os.Stat(filepath.Join(dir, "auth-storage.json"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

		fs2, err := NewFileStorage(dir)
		require.NoError(t, err)
		reloaded, err := NewStore(ctx, fs2, "", nil)
		require.NoError(t, err)
		tok, _ := reloaded.Current()
		assert.Equal(t, "file-token", tok)
	})

	t.Run("corrupt state is discarded", func(t *testing.T) {
		storage := NewMemoryStorage()
		require.NoError(t, storage.SetItem(ctx, DefaultKey, "{not json"))

		s, err := NewStore(ctx, storage, "", nil)
		require.NoError(t, err)
		_, ok := s.Current()
		assert.False(t, ok)
	})

	t.Run("empty token rejected", func(t *testing.T) {
		s, err := NewStore(ctx, NewMemoryStorage(), "", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, s.SetToken(ctx, ""), shared.ErrInvalidInput)
	})

	t.Run("storage failure surfaces", func(t *testing.T) {
		s, err := NewStore(ctx, &failingStorage{MemoryStorage: NewMemoryStorage()}, "", nil)
		require.NoError(t, err)
		assert.Error(t, s.SetToken(ctx, "abc"))
	})

	t.Run("nil storage", func(t *testing.T) {
		_, err := NewStore(ctx, nil, "", nil)
		assert.ErrorIs(t, err, shared.ErrInvalidConfig)
	})
}

func TestTokenSource(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(ctx, NewMemoryStorage(), "", nil)
	require.NoError(t, err)

	_, err = s.TokenSource().Token()
	assert.ErrorIs(t, err, shared.ErrNotAuthenticated)

	require.NoError(t, s.SetToken(ctx, "bearer-1"))
	tok, err := s.TokenSource().Token()
	require.NoError(t, err)
	assert.Equal(t, "bearer-1", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.Type())

	require.NoError(t, s.Clear(ctx))
	_, err = s.TokenSource().Token()
	assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
}

func TestFileStorage(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	_, err = fs.GetItem(ctx, "missing")
	assert.ErrorIs(t, err, ErrItemNotFound)

	require.NoError(t, fs.SetItem(ctx, "../escape", "v"))
	_, err = os.Stat(filepath.Join(fs.Dir, ".._escape.json"))
	assert.NoError(t, err)

	require.NoError(t, fs.RemoveItem(ctx, "../escape"))
	require.NoError(t, fs.RemoveItem(ctx, "../escape"))
}
