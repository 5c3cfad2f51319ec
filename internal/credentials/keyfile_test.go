package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFileRoundTrip(t *testing.T) {
	kf := NewKeyFile(filepath.Join(t.TempDir(), "nested", "apikey.key"))

	_, err := kf.Load()
	assert.ErrorIs(t, err, ErrNoAPIKey, "missing file means no key")

	require.NoError(t, kf.Save("  secret-key-value\n"))

	info, err := os.Stat(kf.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	key, err := kf.Load()
	require.NoError(t, err)
	assert.Equal(t, "secret-key-value", key)

	require.NoError(t, kf.Remove())
	_, err = kf.Load()
	assert.ErrorIs(t, err, ErrNoAPIKey)

	assert.NoError(t, kf.Remove(), "removing a missing file succeeds")
}

func TestKeyFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apikey.key")
	require.NoError(t, os.WriteFile(path, []byte(" \n"), 0o600))

	_, err := NewKeyFile(path).Load()
	assert.ErrorIs(t, err, ErrNoAPIKey)

	assert.ErrorIs(t, NewKeyFile(path).Save("   "), ErrNoAPIKey)
}

func TestKeyFileUnreadable(t *testing.T) {
	dir := t.TempDir()

	_, err := NewKeyFile(dir).Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoAPIKey, "a directory is not a missing file")
}
