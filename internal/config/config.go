// Package config holds the runtime configuration for the search serving
// core. Values are loaded from the environment (optionally seeded from a
// .env file) with an optional YAML file override, validated once, and then
// treated as immutable. Runtime updates go through Store.Swap.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration tree.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Autoscaling AutoscalingConfig `yaml:"autoscaling"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	TextSearch  TextSearchConfig  `yaml:"text_search"`
	Search      SearchConfig      `yaml:"search"`
	Cache       CacheConfig       `yaml:"cache"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// ShutdownGrace bounds how long shutdown waits for in-flight work.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// DatabaseConfig configures the session pool endpoint and lifecycle.
type DatabaseConfig struct {
	// Endpoint is the opaque connection string handed to the driver.
	Endpoint       string        `yaml:"endpoint"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	TLSRequired    bool          `yaml:"tls_required"`
}

// AutoscalingConfig is the embedded autoscaling policy for the pool.
type AutoscalingConfig struct {
	Enabled            bool          `yaml:"enabled"`
	MinSessions        int           `yaml:"min_sessions"`
	MaxSessions        int           `yaml:"max_sessions"`
	ScaleUpThreshold   float64       `yaml:"scale_up_threshold"`
	ScaleDownThreshold float64       `yaml:"scale_down_threshold"`
	ScaleUpStep        int           `yaml:"scale_up_step"`
	ScaleDownStep      int           `yaml:"scale_down_step"`
	Cooldown           time.Duration `yaml:"cooldown"`
	TickInterval       time.Duration `yaml:"tick_interval"`
	PeakHours          []int         `yaml:"peak_hours"`
	OffPeakHours       []int         `yaml:"off_peak_hours"`
}

// EmbeddingConfig configures the remote vectorization client.
type EmbeddingConfig struct {
	// Endpoints is the ordered primary + failover list.
	Endpoints      []string      `yaml:"endpoints"`
	Model          string        `yaml:"model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Retries        int           `yaml:"retries"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	BatchSize      int           `yaml:"batch_size"`
}

// TextSearchConfig configures the remote keyword-search client.
type TextSearchConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	IndexName      string        `yaml:"index_name"`
	APIKey         string        `yaml:"-"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SearchConfig tunes strategy selection and vector ranking.
type SearchConfig struct {
	SimilarityThreshold  float64       `yaml:"similarity_threshold"`
	SlowRequestThreshold time.Duration `yaml:"slow_request_threshold"`
	// DeadlineMargin is subtracted from the request deadline for the
	// shared hybrid deadline.
	DeadlineMargin  time.Duration `yaml:"deadline_margin"`
	DefaultDeadline time.Duration `yaml:"default_deadline"`
}

// CacheConfig sizes the query result cache.
type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	Capacity      int           `yaml:"capacity"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the baseline configuration before env and file
// overrides are applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  30 * time.Second,
			ShutdownGrace: 20 * time.Second,
		},
		Database: DatabaseConfig{
			Endpoint:       "postgres://localhost:5432/propsearch?sslmode=disable",
			IdleTimeout:    5 * time.Minute,
			ConnectTimeout: 5 * time.Second,
		},
		Autoscaling: AutoscalingConfig{
			Enabled:            true,
			MinSessions:        2,
			MaxSessions:        20,
			ScaleUpThreshold:   0.7,
			ScaleDownThreshold: 0.3,
			ScaleUpStep:        3,
			ScaleDownStep:      2,
			Cooldown:           30 * time.Second,
			TickInterval:       5 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Endpoints:      []string{"http://localhost:8001/embed"},
			RequestTimeout: 5 * time.Second,
			Retries:        3,
			CacheTTL:       time.Hour,
			BatchSize:      50,
		},
		TextSearch: TextSearchConfig{
			Endpoint:       "http://localhost:7700",
			IndexName:      "properties",
			RequestTimeout: 5 * time.Second,
		},
		Search: SearchConfig{
			SimilarityThreshold:  0.7,
			SlowRequestThreshold: time.Second,
			DeadlineMargin:       100 * time.Millisecond,
			DefaultDeadline:      2 * time.Second,
		},
		Cache: CacheConfig{
			TTL:           5 * time.Minute,
			Capacity:      10000,
			SweepInterval: 60 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, an optional YAML file named
// by PROPSEARCH_CONFIG_FILE, and environment variables, then validates it.
func Load() (*Config, error) {
	// .env is optional; ignore absence like the rest of the stack does.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path := os.Getenv("PROPSEARCH_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	loadServerEnv(cfg)
	loadDatabaseEnv(cfg)
	loadAutoscalingEnv(cfg)
	loadClientEnv(cfg)
	loadSearchEnv(cfg)

	if level := os.Getenv("PROPSEARCH_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

func loadServerEnv(cfg *Config) {
	if host := os.Getenv("PROPSEARCH_HOST"); host != "" {
		cfg.Server.Host = host
	}
	setInt(&cfg.Server.Port, "PROPSEARCH_PORT")
	setDuration(&cfg.Server.ReadTimeout, "PROPSEARCH_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "PROPSEARCH_WRITE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownGrace, "PROPSEARCH_SHUTDOWN_GRACE")
}

func loadDatabaseEnv(cfg *Config) {
	if dsn := os.Getenv("PROPSEARCH_DATABASE_URL"); dsn != "" {
		cfg.Database.Endpoint = dsn
	} else if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.Endpoint = dsn
	}
	setDuration(&cfg.Database.IdleTimeout, "PROPSEARCH_IDLE_TIMEOUT")
	setDuration(&cfg.Database.ConnectTimeout, "PROPSEARCH_CONNECT_TIMEOUT")
	setBool(&cfg.Database.TLSRequired, "PROPSEARCH_TLS_REQUIRED")
}

func loadAutoscalingEnv(cfg *Config) {
	a := &cfg.Autoscaling
	setBool(&a.Enabled, "PROPSEARCH_AUTOSCALING_ENABLED")
	setInt(&a.MinSessions, "PROPSEARCH_MIN_SESSIONS")
	setInt(&a.MaxSessions, "PROPSEARCH_MAX_SESSIONS")
	setFloat(&a.ScaleUpThreshold, "PROPSEARCH_SCALE_UP_THRESHOLD")
	setFloat(&a.ScaleDownThreshold, "PROPSEARCH_SCALE_DOWN_THRESHOLD")
	setInt(&a.ScaleUpStep, "PROPSEARCH_SCALE_UP_STEP")
	setInt(&a.ScaleDownStep, "PROPSEARCH_SCALE_DOWN_STEP")
	setDuration(&a.Cooldown, "PROPSEARCH_COOLDOWN")
	setDuration(&a.TickInterval, "PROPSEARCH_SCALE_TICK")
	setHours(&a.PeakHours, "PROPSEARCH_PEAK_HOURS")
	setHours(&a.OffPeakHours, "PROPSEARCH_OFF_PEAK_HOURS")
}

func loadClientEnv(cfg *Config) {
	if eps := os.Getenv("PROPSEARCH_EMBEDDING_ENDPOINTS"); eps != "" {
		cfg.Embedding.Endpoints = splitList(eps)
	}
	if model := os.Getenv("PROPSEARCH_EMBEDDING_MODEL"); model != "" {
		cfg.Embedding.Model = model
	}
	setDuration(&cfg.Embedding.RequestTimeout, "PROPSEARCH_EMBEDDING_TIMEOUT")
	setInt(&cfg.Embedding.Retries, "PROPSEARCH_EMBEDDING_RETRIES")
	setDuration(&cfg.Embedding.CacheTTL, "PROPSEARCH_EMBEDDING_CACHE_TTL")

	if ep := os.Getenv("PROPSEARCH_TEXT_SEARCH_ENDPOINT"); ep != "" {
		cfg.TextSearch.Endpoint = ep
	}
	if idx := os.Getenv("PROPSEARCH_TEXT_SEARCH_INDEX"); idx != "" {
		cfg.TextSearch.IndexName = idx
	}
	if key := os.Getenv("PROPSEARCH_TEXT_SEARCH_API_KEY"); key != "" {
		cfg.TextSearch.APIKey = key
	}
	setDuration(&cfg.TextSearch.RequestTimeout, "PROPSEARCH_TEXT_SEARCH_TIMEOUT")
}

func loadSearchEnv(cfg *Config) {
	setFloat(&cfg.Search.SimilarityThreshold, "PROPSEARCH_SIMILARITY_THRESHOLD")
	setDuration(&cfg.Search.SlowRequestThreshold, "PROPSEARCH_SLOW_REQUEST_THRESHOLD")
	setDuration(&cfg.Search.DefaultDeadline, "PROPSEARCH_DEFAULT_DEADLINE")
	setDuration(&cfg.Cache.TTL, "PROPSEARCH_CACHE_TTL")
	setInt(&cfg.Cache.Capacity, "PROPSEARCH_CACHE_CAPACITY")
	setDuration(&cfg.Cache.SweepInterval, "PROPSEARCH_CACHE_SWEEP_INTERVAL")
}

// Validate checks the structural invariants of the configuration.
func (c *Config) Validate() error {
	a := c.Autoscaling
	if a.MinSessions < 1 {
		return fmt.Errorf("min_sessions must be >= 1, got %d", a.MinSessions)
	}
	if a.MaxSessions < a.MinSessions {
		return fmt.Errorf("max_sessions %d must be >= min_sessions %d", a.MaxSessions, a.MinSessions)
	}
	if a.ScaleUpThreshold <= 0 || a.ScaleUpThreshold > 1 {
		return fmt.Errorf("scale_up_threshold must be in (0, 1], got %g", a.ScaleUpThreshold)
	}
	if a.ScaleDownThreshold < 0 || a.ScaleDownThreshold >= a.ScaleUpThreshold {
		return fmt.Errorf("scale_down_threshold must be in [0, scale_up_threshold), got %g", a.ScaleDownThreshold)
	}
	if a.ScaleUpStep < 1 || a.ScaleDownStep < 1 {
		return fmt.Errorf("scale steps must be >= 1, got up=%d down=%d", a.ScaleUpStep, a.ScaleDownStep)
	}
	if err := validateHours(a.PeakHours); err != nil {
		return fmt.Errorf("peak_hours: %w", err)
	}
	if err := validateHours(a.OffPeakHours); err != nil {
		return fmt.Errorf("off_peak_hours: %w", err)
	}
	peak := make(map[int]bool, len(a.PeakHours))
	for _, h := range a.PeakHours {
		peak[h] = true
	}
	for _, h := range a.OffPeakHours {
		if peak[h] {
			return fmt.Errorf("hour %d appears in both peak_hours and off_peak_hours", h)
		}
	}
	if c.Database.Endpoint == "" {
		return fmt.Errorf("database endpoint is required")
	}
	// The driver defaults to sslmode=require, so only an explicit
	// sslmode=disable contradicts tls_required.
	if c.Database.TLSRequired && strings.Contains(c.Database.Endpoint, "sslmode=disable") {
		return fmt.Errorf("tls_required is set but endpoint disables TLS (sslmode=disable)")
	}
	if len(c.Embedding.Endpoints) == 0 {
		return fmt.Errorf("at least one embedding endpoint is required")
	}
	if c.Search.SimilarityThreshold <= 0 || c.Search.SimilarityThreshold >= 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1), got %g", c.Search.SimilarityThreshold)
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache capacity must be >= 1, got %d", c.Cache.Capacity)
	}
	return nil
}

func validateHours(hours []int) error {
	for _, h := range hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("hour %d out of range [0, 23]", h)
		}
	}
	return nil
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setHours(dst *[]int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var hours []int
	for _, part := range splitList(v) {
		if h, err := strconv.Atoi(part); err == nil {
			hours = append(hours, h)
		}
	}
	*dst = hours
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
