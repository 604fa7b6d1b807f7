package osext

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirExists(t *testing.T) {
	t.Run("directory", func(t *testing.T) {
		assert.NoError(t, DirExists(t.TempDir()))
	})
	t.Run("missing", func(t *testing.T) {
		assert.Error(t, DirExists(filepath.Join(t.TempDir(), "nope")))
	})
	t.Run("file", func(t *testing.T) {
		f := filepath.Join(t.TempDir(), "f")
		require.NoError(t, os.WriteFile(f, nil, 0o644))
		assert.ErrorIs(t, DirExists(f), ErrNotADir)
	})
}

func TestEmptyOrCreate(t *testing.T) {
	t.Run("creates missing", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out")
		require.NoError(t, EmptyOrCreate(dir))
		assert.NoError(t, DirExists(dir))
	})
	t.Run("empty existing ok", func(t *testing.T) {
		assert.NoError(t, EmptyOrCreate(t.TempDir()))
	})
	t.Run("non-empty rejected", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "leftover.json"), nil, 0o644))
		assert.ErrorIs(t, EmptyOrCreate(dir), ErrNotEmpty)
	})
	t.Run("file at path", func(t *testing.T) {
		f := filepath.Join(t.TempDir(), "f")
		require.NoError(t, os.WriteFile(f, nil, 0o644))
		assert.ErrorIs(t, EmptyOrCreate(f), ErrNotADir)
	})
}
