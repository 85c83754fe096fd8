package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyexec/internal/sandbox"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the host can run scripts",
	Long: `Check the sandbox prerequisites from the current config: nsjail on PATH,
the nsjail policy file, the Python interpreter and the runner.

A runner that differs from the built-in copy is reported as a warning.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}

	results := sandbox.Check(cfg.SandboxConfig())
	for _, r := range results {
		switch {
		case r.Passed:
			fmt.Printf("\033[32m✓\033[0m %-17s %s\n", r.Name, r.Message)
		case r.Warning:
			fmt.Printf("\033[33m!\033[0m %-17s %s\n", r.Name, r.Message)
		default:
			fmt.Printf("\033[31m✗\033[0m %-17s %s\n", r.Name, r.Message)
		}
	}

	if sandbox.Failed(results) {
		return &exitError{code: 1}
	}
	return nil
}
