package config

import "sync/atomic"

// Store holds the current immutable configuration and supports atomic
// runtime swaps. Readers take one consistent *Config per request and never
// observe a partially updated tree.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Current returns the live configuration. The returned value must be
// treated as read-only.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Swap validates and installs a new configuration, returning the previous
// one. On validation failure the old configuration stays in place.
func (s *Store) Swap(cfg *Config) (*Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return s.current.Swap(cfg), nil
}
