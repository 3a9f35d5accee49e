// Package config loads and validates the deckhand configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deckhand/internal/notify"
	"deckhand/internal/snapshot"
)

// Config is the top-level configuration
type Config struct {
	Service   ServiceConfig   `json:"service"`
	Auth      AuthConfig      `json:"auth"`
	Database  DatabaseConfig  `json:"database"`
	Snapshots SnapshotsConfig `json:"snapshots,omitempty"`
	Templates TemplatesConfig `json:"templates,omitempty"`
	Notify    notify.Config   `json:"notify,omitempty"`
	Debug     DebugConfig     `json:"debug,omitempty"`
}

// ServiceConfig describes the director service connection
type ServiceConfig struct {
	URL                  string `json:"url"` // ws:// or wss://
	MaxReconnectAttempts int    `json:"max_reconnect_attempts,omitempty"`
	BaseReconnectDelayMS int    `json:"base_reconnect_delay_ms,omitempty"`
	MaxReconnectDelayMS  int    `json:"max_reconnect_delay_ms,omitempty"`
	HeartbeatIntervalS   int    `json:"heartbeat_interval_s,omitempty"`
	RequestTimeoutS      int    `json:"request_timeout_s,omitempty"`
}

// Validate checks the service section
func (s ServiceConfig) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("service url is required")
	}
	if !strings.HasPrefix(s.URL, "ws://") && !strings.HasPrefix(s.URL, "wss://") {
		return fmt.Errorf("service url must be a ws:// or wss:// endpoint (got %s)", s.URL)
	}
	if s.MaxReconnectAttempts < 0 || s.MaxReconnectAttempts > 10 {
		return fmt.Errorf("max_reconnect_attempts must be between 0 and 10 (got %d)", s.MaxReconnectAttempts)
	}
	return nil
}

// BaseReconnectDelay returns the configured delay as a duration
func (s ServiceConfig) BaseReconnectDelay() time.Duration {
	return time.Duration(s.BaseReconnectDelayMS) * time.Millisecond
}

// MaxReconnectDelay returns the configured cap as a duration
func (s ServiceConfig) MaxReconnectDelay() time.Duration {
	return time.Duration(s.MaxReconnectDelayMS) * time.Millisecond
}

// HeartbeatInterval returns the keepalive interval as a duration
func (s ServiceConfig) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalS) * time.Second
}

// RequestTimeout returns the correlated-request timeout as a duration
func (s ServiceConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutS) * time.Second
}

// AuthConfig describes the credential acquisition strategies, tried in
// the order they appear here
type AuthConfig struct {
	UserID      string `json:"user_id"`
	ProxyURL    string `json:"proxy_url,omitempty"`    // token proxy endpoint
	DirectURL   string `json:"direct_url,omitempty"`   // service token endpoint
	RefreshURL  string `json:"refresh_url,omitempty"`  // session refresh-token exchange
	DevToken    string `json:"dev_token,omitempty"`    // supports ${ENV_VAR} expansion
	MaxAttempts int    `json:"max_attempts,omitempty"` // consecutive refresh failures tolerated
}

// Validate checks the auth section
func (a AuthConfig) Validate() error {
	if a.UserID == "" {
		return fmt.Errorf("auth user_id is required")
	}
	if a.ProxyURL == "" && a.DirectURL == "" && a.DevToken == "" {
		return fmt.Errorf("at least one credential source (proxy_url, direct_url or dev_token) must be configured")
	}
	if a.MaxAttempts < 0 {
		return fmt.Errorf("auth max_attempts cannot be negative (got %d)", a.MaxAttempts)
	}
	return nil
}

// DatabaseConfig locates the local sqlite database used for the
// credential cache and deck snapshots
type DatabaseConfig struct {
	Path string `json:"path"`
}

// Validate checks the database section
func (d DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

// SnapshotsConfig controls deck autosave
type SnapshotsConfig struct {
	Enabled bool                  `json:"enabled"`
	Pruner  snapshot.PrunerConfig `json:"pruner,omitempty"`
}

// Validate checks the snapshots section
func (s SnapshotsConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	return s.Pruner.Validate()
}

// TemplatesConfig locates the deck template directory
type TemplatesConfig struct {
	Dir string `json:"dir,omitempty"`
}

// DebugConfig contains debugging and logging settings
type DebugConfig struct {
	VerboseLogging bool `json:"verbose_logging,omitempty"`
}

// Default returns a configuration with sensible local defaults
func Default() Config {
	return Config{
		Service: ServiceConfig{
			URL:                  "wss://localhost:8443/ws",
			MaxReconnectAttempts: 5,
		},
		Database: DatabaseConfig{Path: defaultDatabasePath()},
		Snapshots: SnapshotsConfig{
			Enabled: true,
			Pruner:  snapshot.DefaultPrunerConfig(),
		},
	}
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "deckhand.db"
	}
	return filepath.Join(home, ".deckhand", "deckhand.db")
}

// Load reads, expands and validates a config file. Secret-bearing
// fields may reference environment variables as ${VAR}.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.Auth.DevToken = os.ExpandEnv(cfg.Auth.DevToken)
	cfg.Notify.BotToken = os.ExpandEnv(cfg.Notify.BotToken)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Service.Validate(); err != nil {
		return fmt.Errorf("service: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Snapshots.Validate(); err != nil {
		return fmt.Errorf("snapshots: %w", err)
	}
	if err := c.Notify.Validate(); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
