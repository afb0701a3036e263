package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreldev/kestrel/internal/core/entity"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := []byte("max_concurrent_jobs: 8\nttl:\n  task: 2m\n  workspace: 1h\n  project: 15m\n  comment: 5m\n  user: 1h\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.MaxConcurrentJobs)
	assert.Equal(t, 2*time.Minute, cfg.TTL.Task)
	// Untouched fields keep their defaults.
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 3, cfg.RetryAttempts)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")

	cfg := DefaultConfig()
	cfg.APIToken = "secret"
	cfg.DefaultWorkspace = "ws-1"
	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(*Config) {}, false},
		{"zero workers", func(c *Config) { c.MaxConcurrentJobs = 0 }, true},
		{"negative retries", func(c *Config) { c.RetryAttempts = -1 }, true},
		{"zero retries ok", func(c *Config) { c.RetryAttempts = 0 }, false},
		{"zero backoff", func(c *Config) { c.RetryBackoffBase = 0 }, true},
		{"page size over api cap", func(c *Config) { c.PageSize = 200 }, true},
		{"zero task ttl", func(c *Config) { c.TTL.Task = 0 }, true},
		{"zero cache bound", func(c *Config) { c.Cache.MaxEntries = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTTLByKindCoversAllKinds(t *testing.T) {
	byKind := DefaultConfig().TTL.ByKind()
	for _, k := range entity.Kinds {
		assert.Contains(t, byKind, k)
		assert.Positive(t, byKind[k])
	}
}
