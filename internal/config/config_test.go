package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		message string
	}{
		{
			name:    "min sessions below one",
			mutate:  func(c *Config) { c.Autoscaling.MinSessions = 0 },
			message: "min_sessions",
		},
		{
			name:    "max below min",
			mutate:  func(c *Config) { c.Autoscaling.MaxSessions = 1 },
			message: "max_sessions",
		},
		{
			name:    "scale up threshold above one",
			mutate:  func(c *Config) { c.Autoscaling.ScaleUpThreshold = 1.2 },
			message: "scale_up_threshold",
		},
		{
			name: "scale down not below scale up",
			mutate: func(c *Config) {
				c.Autoscaling.ScaleUpThreshold = 0.5
				c.Autoscaling.ScaleDownThreshold = 0.5
			},
			message: "scale_down_threshold",
		},
		{
			name:    "zero scale step",
			mutate:  func(c *Config) { c.Autoscaling.ScaleUpStep = 0 },
			message: "scale steps",
		},
		{
			name:    "peak hour out of range",
			mutate:  func(c *Config) { c.Autoscaling.PeakHours = []int{24} },
			message: "peak_hours",
		},
		{
			name: "hour in both peak and off-peak",
			mutate: func(c *Config) {
				c.Autoscaling.PeakHours = []int{9, 12}
				c.Autoscaling.OffPeakHours = []int{12}
			},
			message: "both peak_hours and off_peak_hours",
		},
		{
			name:    "empty database endpoint",
			mutate:  func(c *Config) { c.Database.Endpoint = "" },
			message: "database endpoint",
		},
		{
			// The default endpoint carries sslmode=disable.
			name:    "tls required with sslmode disable",
			mutate:  func(c *Config) { c.Database.TLSRequired = true },
			message: "tls_required",
		},
		{
			name:    "no embedding endpoints",
			mutate:  func(c *Config) { c.Embedding.Endpoints = nil },
			message: "embedding endpoint",
		},
		{
			name:    "similarity threshold at one",
			mutate:  func(c *Config) { c.Search.SimilarityThreshold = 1 },
			message: "similarity_threshold",
		},
		{
			name:    "zero cache capacity",
			mutate:  func(c *Config) { c.Cache.Capacity = 0 },
			message: "cache capacity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidateAcceptsTLSRequiredWithoutDisable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.TLSRequired = true
	cfg.Database.Endpoint = "postgres://db:5432/propsearch"
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("PROPSEARCH_PORT", "9090")
	t.Setenv("PROPSEARCH_DATABASE_URL", "postgres://db:5432/propsearch")
	t.Setenv("PROPSEARCH_MAX_SESSIONS", "40")
	t.Setenv("PROPSEARCH_SCALE_UP_THRESHOLD", "0.75")
	t.Setenv("PROPSEARCH_PEAK_HOURS", "9, 12, 18")
	t.Setenv("PROPSEARCH_EMBEDDING_ENDPOINTS", "http://e1/embed,http://e2/embed")
	t.Setenv("PROPSEARCH_TEXT_SEARCH_API_KEY", "secret")
	t.Setenv("PROPSEARCH_CACHE_TTL", "90s")
	t.Setenv("PROPSEARCH_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://db:5432/propsearch", cfg.Database.Endpoint)
	assert.Equal(t, 40, cfg.Autoscaling.MaxSessions)
	assert.InDelta(t, 0.75, cfg.Autoscaling.ScaleUpThreshold, 1e-9)
	assert.Equal(t, []int{9, 12, 18}, cfg.Autoscaling.PeakHours)
	assert.Equal(t, []string{"http://e1/embed", "http://e2/embed"}, cfg.Embedding.Endpoints)
	assert.Equal(t, "secret", cfg.TextSearch.APIKey)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("server:\n  port: 8181\nautoscaling:\n  min_sessions: 4\n  max_sessions: 12\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("PROPSEARCH_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Autoscaling.MinSessions)
	assert.Equal(t, 12, cfg.Autoscaling.MaxSessions)
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8181\n"), 0o600))
	t.Setenv("PROPSEARCH_CONFIG_FILE", path)
	t.Setenv("PROPSEARCH_PORT", "9191")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoadRejectsInvalidResult(t *testing.T) {
	t.Setenv("PROPSEARCH_MIN_SESSIONS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_sessions")
}

func TestStoreSwapKeepsOldOnInvalid(t *testing.T) {
	store := NewStore(DefaultConfig())
	bad := DefaultConfig()
	bad.Cache.Capacity = 0

	_, err := store.Swap(bad)
	require.Error(t, err)
	assert.Equal(t, 10000, store.Current().Cache.Capacity)

	good := DefaultConfig()
	good.Cache.Capacity = 500
	old, err := store.Swap(good)
	require.NoError(t, err)
	assert.Equal(t, 10000, old.Cache.Capacity)
	assert.Equal(t, 500, store.Current().Cache.Capacity)
}
