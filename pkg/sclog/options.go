package sclog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sclog/sclog-go/internal/correlate"
)

// Option configures a Pipeline using the functional options pattern.
type Option func(*config)

// config holds internal pipeline configuration.
type config struct {
	logPath       string
	logDir        string
	window        time.Duration
	sweepInterval time.Duration
	pollInterval  time.Duration
	enrichTimeout time.Duration
	replay        bool
	patternFile   string
	sinks         []Sink
	enricher      Enricher
	logger        *slog.Logger
}

// defaultConfig returns a config with sensible defaults.
func defaultConfig() *config {
	return &config{
		window:        correlate.DefaultWindow,
		sweepInterval: time.Second,
		pollInterval:  2 * time.Second,
		replay:        true,
	}
}

func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// validate checks for invalid option combinations.
func (c *config) validate() error {
	if c.window <= 0 {
		return fmt.Errorf("correlation window must be positive, got %v", c.window)
	}
	if c.sweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %v", c.sweepInterval)
	}
	if c.sweepInterval > c.window {
		return fmt.Errorf("sweep interval (%v) must not exceed the correlation window (%v)", c.sweepInterval, c.window)
	}
	if c.pollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.pollInterval)
	}
	return nil
}

// WithLogPath tails a specific log file, bypassing discovery.
func WithLogPath(path string) Option {
	return func(c *config) { c.logPath = path }
}

// WithLogDir sets the game directory to discover the live log in.
// If not set, auto-detects from default install locations.
// Can also be set via the SCLOG_LOGDIR environment variable.
func WithLogDir(dir string) Option {
	return func(c *config) { c.logDir = dir }
}

// WithCorrelationWindow sets how long a corpse or vehicle-destruction
// event waits for its counterpart before being finalized alone.
// Default: 5 seconds.
func WithCorrelationWindow(d time.Duration) Option {
	return func(c *config) { c.window = d }
}

// WithSweepInterval sets how often expired correlation entries are
// finalized. Default: 1 second.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) { c.sweepInterval = d }
}

// WithPollInterval sets the tailing fallback poll interval.
// Default: 2 seconds.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) { c.pollInterval = d }
}

// WithEnrichTimeout bounds per-event enrichment when an enricher is
// attached. Zero leaves the enricher's own default in place.
func WithEnrichTimeout(d time.Duration) Option {
	return func(c *config) { c.enrichTimeout = d }
}

// WithoutReplay skips emitting existing file content on startup; only
// freshly appended lines produce events.
func WithoutReplay() Option {
	return func(c *config) { c.replay = false }
}

// WithPatternFile appends user-defined patterns from a YAML file after
// the built-in table.
func WithPatternFile(path string) Option {
	return func(c *config) { c.patternFile = path }
}

// WithSinks adds delivery targets for finalized events. Sinks have
// independent failure domains: one failing delivery never blocks the
// others.
func WithSinks(sinks ...Sink) Option {
	return func(c *config) { c.sinks = append(c.sinks, sinks...) }
}

// WithEnricher attaches an enricher applied to every finalized event
// before delivery.
func WithEnricher(e Enricher) Option {
	return func(c *config) { c.enricher = e }
}

// WithLogger sets a custom logger for debug output.
// If logger is nil, logging is disabled (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}
