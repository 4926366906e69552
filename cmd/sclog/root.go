package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "sclog",
	Short: "Star Citizen combat log monitor",
	Long: `sclog monitors the Star Citizen game log and turns it into
structured combat events: kills, deaths, vehicle destructions and
session changes.

Events can be printed, written to a CSV audit log, persisted to a
local database, and streamed to a remote kill feed service.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose logging to stderr")
}

// newLogger returns the debug logger, or a discard logger unless
// --verbose is set.
func newLogger() *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}
