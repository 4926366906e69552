package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sclog/sclog-go/internal/config"
	"github.com/sclog/sclog-go/internal/enrich"
	"github.com/sclog/sclog-go/internal/sink"
	"github.com/sclog/sclog-go/internal/storage/sqlite"
	"github.com/sclog/sclog-go/internal/stream"
	"github.com/sclog/sclog-go/pkg/sclog"
)

var (
	// run flags
	runLogDir   string
	runLogFile  string
	runFormat   string
	runRemote   string
	runDBPath   string
	runAudit    string
	runPatterns string
	runWindow   time.Duration
	runNoReplay bool
	runEnrich   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor the game log and output combat events",
	Long: `Monitor the Star Citizen game log in real-time and output combat
events as they are finalized.

Events are output as JSON Lines by default (one JSON object per line),
which makes it easy to process with tools like jq. Events that existed
in the log before startup are replayed into storage silently and are
not printed.

Examples:
  # Monitor with default settings (auto-detect the install directory)
  sclog run

  # Specify the game directory
  sclog run --log-dir "C:\Program Files\Roberts Space Industries\StarCitizen\LIVE"

  # Human-readable output
  sclog run --format pretty

  # Stream events to a kill feed service
  sclog run --remote wss://feed.example.com/ws

  # Pipe to jq for filtering
  sclog run | jq 'select(.kind == "combat_kill")'`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runLogDir, "log-dir", "d", "",
		"Game directory (auto-detected if not specified)")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "",
		"Tail a specific log file instead of discovering one")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "jsonl",
		"Output format: jsonl, pretty")
	runCmd.Flags().StringVar(&runRemote, "remote", "",
		"Websocket URL of the kill feed service (empty disables streaming)")
	runCmd.Flags().StringVar(&runDBPath, "db", "",
		"Durable event database path (empty uses SCLOG_DB_PATH)")
	runCmd.Flags().StringVar(&runAudit, "audit", "",
		"CSV audit log path (empty uses SCLOG_AUDIT_PATH)")
	runCmd.Flags().StringVar(&runPatterns, "patterns", "",
		"YAML pattern file with additional event patterns")
	runCmd.Flags().DurationVar(&runWindow, "window", 0,
		"Correlation window for merging related events (0 uses the default)")
	runCmd.Flags().BoolVar(&runNoReplay, "no-replay", false,
		"Skip replaying existing log content into storage on startup")
	runCmd.Flags().BoolVar(&runEnrich, "enrich", false,
		"Resolve player handles against their public RSI profiles")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if !ValidFormats[runFormat] {
		return fmt.Errorf("unknown format: %s", runFormat)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyRunFlags(&cfg)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := newLogger()

	var (
		sinks   []sclog.Sink
		durable *sqlite.Store
	)

	if cfg.AuditPath != "" {
		audit, err := sink.NewCSV(cfg.AuditPath)
		if err != nil {
			return err
		}
		defer audit.Close()
		sinks = append(sinks, audit)
	}

	storeOpts := []sink.MemStoreOption{}
	if cfg.DBPath != "" {
		durable, err = sqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer durable.Close()
		storeOpts = append(storeOpts, sink.WithDurable(durable))
	}
	sinks = append(sinks, sink.NewMemStore(cfg.StoreCapacity, storeOpts...))

	var client *stream.Client
	if cfg.RemoteURL != "" {
		client, err = buildStreamClient(ctx, cfg, durable, log)
		if err != nil {
			return err
		}
		sinks = append(sinks, client)
	}

	opts := []sclog.Option{
		sclog.WithSinks(sinks...),
		sclog.WithLogger(log),
	}
	if cfg.LogPath != "" {
		opts = append(opts, sclog.WithLogPath(cfg.LogPath))
	} else if cfg.LogDir != "" {
		opts = append(opts, sclog.WithLogDir(cfg.LogDir))
	}
	if cfg.CorrelationWindow > 0 {
		opts = append(opts, sclog.WithCorrelationWindow(cfg.CorrelationWindow))
	}
	if cfg.PatternFile != "" {
		opts = append(opts, sclog.WithPatternFile(cfg.PatternFile))
	}
	if runNoReplay {
		opts = append(opts, sclog.WithoutReplay())
	}
	if runEnrich {
		enr := enrich.New(enrich.NewRSIService(),
			enrich.WithTimeout(cfg.EnrichTimeout),
			enrich.WithLogger(log))
		defer enr.Close()
		opts = append(opts,
			sclog.WithEnricher(enr),
			sclog.WithEnrichTimeout(cfg.EnrichTimeout),
		)
	}

	pipeline, err := sclog.NewPipeline(opts...)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	events, errs, err := pipeline.Watch(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if client != nil {
		g.Go(func() error {
			if err := client.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				if ev.Replayed {
					continue
				}
				if err := OutputEvent(runFormat, ev, os.Stdout); err != nil {
					return fmt.Errorf("output error: %w", err)
				}

			case err, ok := <-errs:
				if !ok {
					return nil
				}
				if verbose {
					fmt.Fprintf(os.Stderr, "warning: %v\n", err)
				}

			case <-ctx.Done():
				return nil
			}
		}
	})

	return g.Wait()
}

// applyRunFlags overlays command line flags onto the environment
// configuration. Flags win when set.
func applyRunFlags(cfg *config.Config) {
	if runLogFile != "" {
		cfg.LogPath = runLogFile
	}
	if runLogDir != "" {
		cfg.LogDir = runLogDir
	}
	if runRemote != "" {
		cfg.RemoteURL = runRemote
	}
	if runDBPath != "" {
		cfg.DBPath = runDBPath
	}
	if runAudit != "" {
		cfg.AuditPath = runAudit
	}
	if runPatterns != "" {
		cfg.PatternFile = runPatterns
	}
	if runWindow > 0 {
		cfg.CorrelationWindow = runWindow
	}
}

// buildStreamClient assembles the remote streaming sink with the
// persistent client identity and the configured credential.
func buildStreamClient(ctx context.Context, cfg config.Config, durable *sqlite.Store, log *slog.Logger) (*stream.Client, error) {
	idPath, err := config.DefaultClientIDPath()
	if err != nil {
		return nil, err
	}
	clientID, err := config.ClientID(idPath)
	if err != nil {
		return nil, err
	}

	creds := stream.CredentialFunc(func(context.Context) (string, error) {
		return cfg.SessionToken, nil
	})

	streamOpts := []stream.Option{stream.WithLogger(log)}
	if durable != nil {
		streamOpts = append(streamOpts, stream.WithOnCategory(func(eventID, category string) {
			if err := durable.SetCategory(ctx, eventID, category); err != nil {
				log.Debug("storing category failed", "event_id", eventID, "error", err)
			}
		}))
	}

	return stream.New(cfg.RemoteURL, clientID, &stream.WebSocketDialer{}, creds, streamOpts...), nil
}
