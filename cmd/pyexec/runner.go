package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyexec/internal/runner"
)

var runnerPathFlag string

var runnerCmd = &cobra.Command{
	Use:   "runner",
	Short: "Manage the in-sandbox Python runner",
}

var runnerInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Write the embedded runner to sandbox.runner_path",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		path := cfg.Sandbox.RunnerPath
		if runnerPathFlag != "" {
			path = runnerPathFlag
		}
		wrote, err := runner.EnsureInstalled(path)
		if err != nil {
			return err
		}
		if wrote {
			fmt.Printf("Installed runner at %s\n", path)
		} else {
			fmt.Printf("Runner at %s is up to date\n", path)
		}
		return nil
	},
}

var runnerPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the embedded runner source",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := cmd.OutOrStdout().Write(runner.Source())
		return err
	},
}

func init() {
	rootCmd.AddCommand(runnerCmd)
	runnerCmd.AddCommand(runnerInstallCmd, runnerPrintCmd)
	runnerInstallCmd.Flags().StringVar(&runnerPathFlag, "path", "", "Install location (overrides config)")
}
