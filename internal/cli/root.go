// Package cli implements the quorum command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/quorum/internal/config"
)

var (
	flagConfig   string
	flagJSON     bool
	flagLogLevel string
)

// IsJSONOutput reports whether --json robot output was requested.
func IsJSONOutput() bool {
	return flagJSON
}

// Execute runs the root command.
func Execute(version string) {
	if err := newRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quorum",
		Short: "Run a question through an ensemble of LLMs and judge the answers",
		Long: `quorum sends a query to several model backends in parallel, merges
their answers into one transcript, and lets a judge model arbitrate --
re-running the ensemble within a fixed budget until it can produce a
single structured verdict.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default ~/.quorum/config.toml)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit machine-readable JSON output")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override log level (debug, info, warn, error)")

	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// loadConfig loads the effective configuration, applying CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return cfg, nil
}

// setupLogger builds the process logger from config. Logs go to stderr so
// stdout stays clean for --json output.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
