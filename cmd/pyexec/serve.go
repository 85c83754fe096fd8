package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyexec/internal/sandbox"
	"github.com/michaelbrown/pyexec/internal/server"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pyexec HTTP server",
	Long: `Start the pyexec HTTP server.

Endpoints:
  POST /execute        run {"script": "..."}
  GET  /execute/ws     same, over a WebSocket
  GET  /status         liveness
  GET  /executions     audit log (when storage is enabled)

Examples:
  pyexec serve
  pyexec serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	pipeline, err := newPipeline(cfg, logger, store)
	if err != nil {
		return err
	}

	for _, r := range sandbox.Check(cfg.SandboxConfig()) {
		if !r.Passed {
			logger.Warn("pre-flight check failed", "check", r.Name, "detail", r.Message)
		}
	}

	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(pipeline, server.Options{
		Store:        store,
		Logger:       logger,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigCh
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	if err := srv.Start(port); err != nil {
		return err
	}
	// in-flight executions still hold the store
	<-done
	return nil
}
