package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyexec/internal/config"
	"github.com/michaelbrown/pyexec/internal/executor"
	"github.com/michaelbrown/pyexec/internal/logging"
	"github.com/michaelbrown/pyexec/internal/runner"
	"github.com/michaelbrown/pyexec/internal/storage"
	"github.com/michaelbrown/pyexec/internal/storage/sqlite"
)

var (
	configFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "pyexec",
	Short: "pyexec - run untrusted Python scripts in an nsjail sandbox",
	Long: `pyexec accepts a Python script that defines main(), runs it inside an
nsjail sandbox and returns the JSON value main() produced together with
everything the script printed.

Run "pyexec serve" for the HTTP service, or "pyexec run" for a one-off.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: ./pyexec.yaml, ~/.pyexec/pyexec.yaml, /etc/pyexec/pyexec.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

// exitError ends the process with code without printing anything more.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads the config and builds the logger every command shares.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// openStore opens the audit log, or returns nil when it is disabled.
func openStore(cfg *config.Config) (storage.Store, error) {
	if !cfg.Storage.Enabled {
		return nil, nil
	}
	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

// newPipeline installs the runner if configured and builds the pipeline.
func newPipeline(cfg *config.Config, logger *slog.Logger, store storage.Store) (*executor.Pipeline, error) {
	if cfg.Sandbox.InstallRunner {
		wrote, err := runner.EnsureInstalled(cfg.Sandbox.RunnerPath)
		if err != nil {
			return nil, fmt.Errorf("installing runner: %w", err)
		}
		if wrote {
			logger.Info("installed runner", "path", cfg.Sandbox.RunnerPath)
		}
	}

	opts := []executor.Option{executor.WithLogger(logger)}
	if store != nil {
		opts = append(opts, executor.WithStore(store))
	}
	return executor.New(cfg.Executor(), opts...)
}
