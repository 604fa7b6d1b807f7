package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatport.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("empty path gives defaults", func(t *testing.T) {
		p, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), p)
	})
	t.Run("partial file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, "[idle]\nwindow_seconds = 3600\nthreshold = 10\n")
		p, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, time.Hour, p.Idle.Window())
		assert.Equal(t, 1000, p.Convert.ChunkSize, "untouched sections keep defaults")
	})
	t.Run("zero worker count rejected", func(t *testing.T) {
		path := writeConfig(t, "[convert]\nworkers = 0\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "invalid values")
	})
	t.Run("negative chunk size rejected", func(t *testing.T) {
		path := writeConfig(t, "[convert]\nchunk_size = -5\n")
		_, err := Load(path)
		assert.Error(t, err)
	})
	t.Run("missing file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})
	t.Run("malformed toml", func(t *testing.T) {
		path := writeConfig(t, "[convert\nchunk")
		_, err := Load(path)
		assert.Error(t, err)
	})
}
