package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sclog/sclog-go/pkg/sclog"
)

var (
	// parse flags
	parseFormat   string
	parsePatterns string
	parseWindow   time.Duration
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a past log file and output its combat events",
	Long: `Parse an existing log file in one pass and output every combat
event it contains, with related events correlated the same way the
live monitor would.

Examples:
  # Analyze a rotated log
  sclog parse "C:\...\StarCitizen\LIVE\logbackups\Game-2024-01-15.log"

  # Human-readable output
  sclog parse Game.log --format pretty`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringVarP(&parseFormat, "format", "f", "jsonl",
		"Output format: jsonl, pretty")
	parseCmd.Flags().StringVar(&parsePatterns, "patterns", "",
		"YAML pattern file with additional event patterns")
	parseCmd.Flags().DurationVar(&parseWindow, "window", 0,
		"Correlation window for merging related events (0 uses the default)")

	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	if !ValidFormats[parseFormat] {
		return fmt.Errorf("unknown format: %s", parseFormat)
	}

	opts := []sclog.Option{sclog.WithLogger(newLogger())}
	if parsePatterns != "" {
		opts = append(opts, sclog.WithPatternFile(parsePatterns))
	}
	if parseWindow > 0 {
		opts = append(opts, sclog.WithCorrelationWindow(parseWindow))
	}

	events, err := sclog.ParseFile(cmd.Context(), args[0], opts...)
	if err != nil {
		return err
	}

	for _, ev := range events {
		if err := OutputEvent(parseFormat, ev, os.Stdout); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	}
	return nil
}
