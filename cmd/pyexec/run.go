package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyexec/internal/executor"
)

var runFormat string

var runCmd = &cobra.Command{
	Use:   "run <file|->",
	Short: "Run one script and print its result",
	Long: `Run a script through the same pipeline the server uses and print the
response body. The exit status is 0 on success, 1 for a script or protocol
error and 2 when the service itself failed.

Examples:
  pyexec run job.py
  cat job.py | pyexec run - --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runFormat, "format", "json", "Output format: json or yaml")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if runFormat != "json" && runFormat != "yaml" {
		return fmt.Errorf("unknown format %q (want json or yaml)", runFormat)
	}

	script, err := readScript(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

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

	resp, err := pipeline.Execute(context.Background(), script)
	if err == nil {
		return render(cmd.OutOrStdout(), runFormat, resp)
	}

	e := executor.AsError(err)
	if rerr := render(cmd.OutOrStdout(), runFormat, e); rerr != nil {
		return rerr
	}
	if e.Kind == executor.KindInfrastructure {
		return &exitError{code: 2}
	}
	return &exitError{code: 1}
}

func readScript(stdin io.Reader, arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}
	return string(data), nil
}
