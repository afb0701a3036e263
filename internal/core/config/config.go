// Package config handles configuration loading and validation for kestrel.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kestreldev/kestrel/internal/core/entity"
)

// Config holds the application configuration.
type Config struct {
	APIToken         string        `yaml:"api_token,omitempty"`
	DefaultWorkspace string        `yaml:"default_workspace,omitempty"`
	MaxConcurrentJobs int          `yaml:"max_concurrent_jobs"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	PageSize         int           `yaml:"page_size"`
	TTL              TTLConfig     `yaml:"ttl"`
	Cache            CacheConfig   `yaml:"cache"`
}

// TTLConfig sets the per-kind staleness window. A cached entity older
// than its window is still served, but marked in need of a refresh.
type TTLConfig struct {
	Workspace time.Duration `yaml:"workspace"`
	Project   time.Duration `yaml:"project"`
	Task      time.Duration `yaml:"task"`
	Comment   time.Duration `yaml:"comment"`
	User      time.Duration `yaml:"user"`
}

// ByKind returns the TTL map keyed by entity kind.
func (t TTLConfig) ByKind() map[entity.Kind]time.Duration {
	return map[entity.Kind]time.Duration{
		entity.KindWorkspace: t.Workspace,
		entity.KindProject:   t.Project,
		entity.KindTask:      t.Task,
		entity.KindComment:   t.Comment,
		entity.KindUser:      t.User,
	}
}

// CacheConfig bounds the in-memory entity store.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs: 4,
		RetryAttempts:     3,
		RetryBackoffBase:  500 * time.Millisecond,
		RequestTimeout:    30 * time.Second,
		PageSize:          50,
		TTL: TTLConfig{
			Workspace: time.Hour,
			Project:   15 * time.Minute,
			Task:      5 * time.Minute,
			Comment:   5 * time.Minute,
			User:      time.Hour,
		},
		Cache: CacheConfig{MaxEntries: 10_000},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "kestrel", "config.yml")
	}
	return filepath.Join(".", "kestrel.yml")
}

// Load reads the config file at path, layered over defaults. A missing
// file is not an error; defaults are returned.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to path, creating parent directories. The
// file holds the API token, so permissions are restricted to the owner.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
