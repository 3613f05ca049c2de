// Package cmd defines the CLI commands for the steamscout executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lmei/steamscout/internal/app"
	"github.com/lmei/steamscout/internal/config"
	"github.com/lmei/steamscout/internal/ledger"
	"github.com/lmei/steamscout/internal/pipeline"
	"github.com/lmei/steamscout/internal/sink"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is the application surface commands use. An interface so tests can
// inject a fake.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Ledger() *ledger.Store
	Sink() *sink.Sink
	Orchestrator() *pipeline.Orchestrator
}

// newApp is the application factory, replaceable in tests.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.New(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steamscout",
		Short: "Resumable classifier for the Steam app catalog",
		Long: `steamscout walks the Steam AppID catalog one bounded batch at a
time, classifies each app against configured language and feature
dimensions, and merges the results into durable JSON category stores.
Progress lives in a PostgreSQL ledger, so every invocation picks up
where the last one stopped.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			instance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}

			cmd.SetContext(context.WithValue(cmd.Context(), appKey, instance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if instance, ok := cmd.Context().Value(appKey).(App); ok && instance != nil {
				instance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")

	cmd.AddCommand(newSeedCmd())
	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	instance, ok := ctx.Value(appKey).(App)
	if !ok || instance == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return instance, nil
}

// Execute is the main entry point. SIGINT/SIGTERM cancel the command
// context so an in-flight pass stops cleanly between identifiers.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
