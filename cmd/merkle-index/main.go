package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"merkle-index/internal/config"
	"merkle-index/internal/telemetry"
)

var version = "dev"

// Exit codes: 0 success, 1 differences found, 2 error.
const (
	exitChanges = 1
	exitError   = 2
)

var (
	argConfig   string
	argLogLevel string

	cfg      *config.Config
	logger   *slog.Logger
	exitCode int

	shutdownTelemetry func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:     "merkle-index",
	Version: version,
	Short:   "Incrementally index an asset tree into a content-addressable Merkle tree",
	Long: `merkle-index scans a directory of assets into a Merkle tree whose node
hashes cover path, metadata and children. Each scan is diffed against the
state published by the previous one, producing ADDED, UPDATED and REMOVED
changes for a downstream index.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(argConfig)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if argLogLevel != "" {
			loaded.LogLevel = argLogLevel
			if err := loaded.Validate(); err != nil {
				return err
			}
		}

		level, err := loaded.Level()
		if err != nil {
			return err
		}
		cfg = loaded
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		if cfg.Telemetry.Enabled() {
			return initTelemetry(cmd.Context(), cmd.ErrOrStderr())
		}
		return nil
	},
}

// initTelemetry exports spans and metrics to the configured file, or w.
func initTelemetry(ctx context.Context, w io.Writer) error {
	var closeOutput func() error
	if cfg.Telemetry.Output != "" {
		f, err := os.Create(cfg.Telemetry.Output)
		if err != nil {
			return fmt.Errorf("failed to open telemetry output: %w", err)
		}
		w = f
		closeOutput = f.Close
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, w, version)
	if err != nil {
		if closeOutput != nil {
			closeOutput()
		}
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	shutdownTelemetry = func(ctx context.Context) error {
		err := shutdown(ctx)
		if closeOutput != nil {
			if cerr := closeOutput(); err == nil {
				err = cerr
			}
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&argConfig, "config", "c", "config.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&argLogLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if shutdownTelemetry != nil {
		if serr := shutdownTelemetry(context.Background()); serr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to flush telemetry: %v\n", serr)
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(exitCode)
}
