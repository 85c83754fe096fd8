package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyexec/internal/storage"
)

var (
	statusFilter   string
	degradedFilter bool
	limitFlag      int
	listFormat     string
	olderThanFlag  time.Duration
	forceFlag      bool
)

var executionsCmd = &cobra.Command{
	Use:     "executions",
	Aliases: []string{"execution", "ex"},
	Short:   "Inspect the execution audit log",
}

var executionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded executions",
	RunE:  runExecutionsList,
}

var executionsShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show one execution (ID or unique prefix)",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecutionsShow,
}

var executionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old executions",
	RunE:  runExecutionsPrune,
}

func init() {
	rootCmd.AddCommand(executionsCmd)
	executionsCmd.AddCommand(executionsListCmd, executionsShowCmd, executionsPruneCmd)

	executionsListCmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (succeeded, execution_failed, protocol_error, infrastructure_error)")
	executionsListCmd.Flags().BoolVar(&degradedFilter, "degraded", false, "Only executions that ran without isolation")
	executionsListCmd.Flags().IntVar(&limitFlag, "limit", 20, "Max executions to show")
	executionsListCmd.Flags().StringVar(&listFormat, "format", "text", "Output format: text, json or yaml")

	executionsPruneCmd.Flags().DurationVar(&olderThanFlag, "older-than", 30*24*time.Hour, "Delete executions older than this")
	executionsPruneCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")
}

func auditStore() (storage.Store, error) {
	cfg, _, err := setup()
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("execution log disabled (storage.enabled is false)")
	}
	return store, nil
}

func runExecutionsList(cmd *cobra.Command, args []string) error {
	store, err := auditStore()
	if err != nil {
		return err
	}
	defer store.Close()

	execs, err := store.ListExecutions(context.Background(), storage.ExecutionListOptions{
		Status:       storage.ExecutionStatus(statusFilter),
		DegradedOnly: degradedFilter,
		Limit:        limitFlag,
	})
	if err != nil {
		return err
	}

	var data []byte
	switch listFormat {
	case "json":
		data, err = storage.ExportJSON(execs)
	case "yaml":
		data, err = storage.ExportYAML(execs)
	case "text":
		if len(execs) == 0 {
			fmt.Println("No executions found.")
			return nil
		}
		data = []byte(storage.ExportText(execs))
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", listFormat)
	}
	if err != nil {
		return err
	}
	os.Stdout.Write(data)
	if listFormat == "json" {
		fmt.Println()
	}
	return nil
}

func runExecutionsShow(cmd *cobra.Command, args []string) error {
	store, err := auditStore()
	if err != nil {
		return err
	}
	defer store.Close()

	e, err := store.GetExecution(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Execution: %s\n", e.ID)
	fmt.Printf("Status:    %s\n", e.Status)
	fmt.Printf("Exit code: %d\n", e.ExitCode)
	if e.Degraded {
		fmt.Printf("Degraded:  \033[33mran without isolation\033[0m\n")
	}
	if e.Markers > 1 {
		fmt.Printf("Markers:   %d (last one used)\n", e.Markers)
	}
	if e.Error != "" {
		fmt.Printf("Error:     %s\n", truncate(e.Error, 200))
	}
	fmt.Printf("Duration:  %s\n", time.Duration(e.DurationMS)*time.Millisecond)
	fmt.Printf("Sizes:     script %dB, stdout %dB, stderr %dB\n", e.ScriptBytes, e.StdoutBytes, e.StderrBytes)
	fmt.Printf("Created:   %s (%s)\n", e.CreatedAt.Format(time.RFC3339), timeAgo(e.CreatedAt))
	return nil
}

func runExecutionsPrune(cmd *cobra.Command, args []string) error {
	if olderThanFlag <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	store, err := auditStore()
	if err != nil {
		return err
	}
	defer store.Close()

	before := time.Now().Add(-olderThanFlag)
	if !forceFlag {
		fmt.Printf("Delete executions recorded before %s? [y/N] ", before.Format(time.RFC3339))
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	n, err := store.PruneExecutions(context.Background(), before)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d executions\n", n)
	return nil
}
