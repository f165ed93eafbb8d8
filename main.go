package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aero123421/RSS7/internal/app"
	"github.com/Aero123421/RSS7/internal/config"
	"github.com/Aero123421/RSS7/internal/logging"
)

var (
	configPath string
	logLevel   string
	addr       string
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "rss7",
		Short: "RSS/Atom to Discord delivery with AI summaries",
		Long: "Polls RSS/Atom feeds, summarizes and classifies new entries with an LLM, " +
			"and posts them to Discord channels.",
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml (default $RSS7_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.Flags().StringVar(&addr, "addr", "", "Admin API listen address")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Check every feed once, deliver new entries and exit",
		RunE:  runSweep,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete delivery records older than the retention period",
		RunE:  runPurge,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup() (*app.App, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		if !logging.ValidLevel(logLevel) {
			return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidLogLevel, logLevel)
		}
		cfg.Logging.Level = logLevel
	}
	if addr != "" {
		cfg.API.Addr = addr
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, logger, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	logger.Info("rss7 starting")
	return a.Run(ctx)
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, logger, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	res, err := a.SweepOnce(ctx)
	if err != nil {
		return err
	}
	logger.Info("sweep finished",
		"feeds", res.Feeds,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"delivered", res.Enqueued,
		"purged", res.Purged)
	return nil
}

func runPurge(cmd *cobra.Command, args []string) error {
	a, _, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	n := a.Purge(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d delivery records\n", n)
	return nil
}
