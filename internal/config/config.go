// Package config loads runtime configuration from environment variables
// and manages the persistent client identifier.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the environment-driven configuration for the sclog CLI.
// Flags override these values.
type Config struct {
	// LogPath tails a specific file; takes precedence over LogDir.
	LogPath string `env:"SCLOG_LOG_PATH"`

	// LogDir is the game directory to discover the live log in.
	LogDir string `env:"SCLOG_LOGDIR"`

	// RemoteURL is the websocket endpoint of the kill feed service.
	// Empty disables remote streaming.
	RemoteURL string `env:"SCLOG_REMOTE_URL"`

	// SessionToken authenticates against the remote service. Empty
	// falls back to a server-issued guest credential.
	SessionToken string `env:"SCLOG_SESSION_TOKEN"`

	// DBPath is the durable event store. Empty disables persistence.
	DBPath string `env:"SCLOG_DB_PATH" envDefault:"sclog.db"`

	// AuditPath is the CSV audit log. Empty disables the audit sink.
	AuditPath string `env:"SCLOG_AUDIT_PATH" envDefault:"kills.csv"`

	// PatternFile adds user-defined patterns.
	PatternFile string `env:"SCLOG_PATTERNS"`

	CorrelationWindow time.Duration `env:"SCLOG_CORRELATION_WINDOW" envDefault:"5s"`
	StoreCapacity     int           `env:"SCLOG_STORE_CAPACITY" envDefault:"500"`
	EnrichTimeout     time.Duration `env:"SCLOG_ENRICH_TIMEOUT" envDefault:"2s"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
