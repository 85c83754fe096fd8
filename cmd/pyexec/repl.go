package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/pyexec/internal/executor"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Write scripts interactively and run them in the sandbox",
	Long: `Type a script line by line, then :run to execute it.

Commands:
  :run     execute the buffered script
  :show    print the buffer
  :reset   clear the buffer
  :quit    exit (Ctrl+D also works)`,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

const (
	promptEmpty = "\033[36mpy>\033[0m "
	promptMore  = "\033[36m...\033[0m "
)

func runREPL(cmd *cobra.Command, args []string) error {
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

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".pyexec", "repl_history")
		os.MkdirAll(filepath.Dir(historyFile), 0o755)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptEmpty,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("pyexec REPL - define main(), then :run. :quit to exit.")

	var buf []string
	for {
		if len(buf) == 0 {
			rl.SetPrompt(promptEmpty)
		} else {
			rl.SetPrompt(promptMore)
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				// Ctrl+C drops the current buffer, a second one on an empty buffer exits
				if len(buf) == 0 {
					return nil
				}
				buf = nil
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch strings.TrimSpace(line) {
		case ":quit", ":q":
			return nil
		case ":reset":
			buf = nil
			continue
		case ":show":
			fmt.Println(strings.Join(buf, "\n"))
			continue
		case ":run":
			runBuffer(pipeline, strings.Join(buf, "\n")+"\n")
			buf = nil
			continue
		}
		buf = append(buf, line)
	}
}

func runBuffer(pipeline *executor.Pipeline, script string) {
	resp, err := pipeline.Execute(context.Background(), script)
	if err != nil {
		e := executor.AsError(err)
		fmt.Printf("\033[31merror:\033[0m %s\n", e.Message)
		if e.ExitCode != nil {
			fmt.Printf("\033[90mexit code %d\033[0m\n", *e.ExitCode)
		}
		if e.Stdout != nil && *e.Stdout != "" {
			fmt.Print(*e.Stdout)
		}
		if e.Stderr != nil && *e.Stderr != "" {
			fmt.Printf("\033[90m%s\033[0m", *e.Stderr)
		}
		return
	}

	if resp.Degraded {
		fmt.Println("\033[33m(ran without isolation)\033[0m")
	}
	if resp.Stdout != "" {
		fmt.Println(resp.Stdout)
	}
	fmt.Printf("\033[32m=>\033[0m %s\n", resp.Result)
}
