// Package main provides the refy CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/matsen/refy/internal/config"
	"github.com/matsen/refy/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	noProgress  bool
	configPath  string
	catalogPath string
	logLevel    string
)

// Loaded by the root command before any subcommand runs.
var (
	cfg    = config.Default()
	logger = zerolog.Nop()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(os.Stdout, os.Stderr, err)
		stop()
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "refy",
	Short: "Recommend papers related to the ones you already have",
	Long: `refy recommends papers from a local catalog based on the abstracts of
papers you already have, given as a BibTeX library or as free text.

Typical setup:
  refy catalog import papers.jsonl
  refy model fit
  refy index build
  refy suggest library.bib

All commands output JSON by default; pass --human for readable output.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadEnvironment,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "Suppress progress output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/refy/config.yml)")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "Catalog database or .jsonl file (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.Version = Version
}

// loadEnvironment reads .env, the config file and REFY_* overrides, then
// builds the logger.
func loadEnvironment(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	path := configFilePath()
	loaded, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if err := loaded.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	l, err := logging.New(logging.Config{
		Level:  loaded.LogLevel,
		Format: loaded.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	cfg = loaded
	logger = l
	logger.Debug().Str("config", path).Str("data_dir", cfg.DataDir).Msg("configuration loaded")
	return nil
}
