package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Equal(t, DefaultMaxMemoryPages, cfg.MaxMemoryPages)
	assert.Equal(t, "memory", cfg.Storage.Mode)
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagedbuf.yaml")
	yaml := "page_size: 1024\nmax_memory_pages: 10\nstorage:\n  mode: file\n  dir: /tmp/pages\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.PageSize)
	assert.Equal(t, 10, cfg.MaxMemoryPages)
	assert.Equal(t, "file", cfg.Storage.Mode)
	assert.Equal(t, "/tmp/pages", cfg.Storage.Dir)
	// Unset knobs still fall back to defaults.
	assert.Equal(t, DefaultMaxUndoLevels, cfg.MaxUndoLevels)
}

func TestLoadConfigTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagedbuf.toml")
	toml := "page_size = 2048\nmax_undo_levels = 20\n"
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.PageSize)
	assert.Equal(t, 20, cfg.MaxUndoLevels)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/no/such/pagedbuf.yaml")
	assert.Error(t, err)
}

func TestWatchPicksUpRewrittenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagedbuf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_size: 1024\n"), 0o644))

	reloaded := make(chan *Config, 1)
	stop, err := Watch(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("page_size: 4096\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 4096, cfg.PageSize)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not observe the rewritten config file in time")
	}
}

func TestWatchRejectsMissingFile(t *testing.T) {
	_, err := Watch("/no/such/pagedbuf.yaml", func(*Config) {})
	assert.Error(t, err)
}
