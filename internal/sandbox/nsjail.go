package sandbox

import (
	"context"
	"fmt"
	"log/slog"
)

// Config describes the binaries and files an Invoker uses.
type Config struct {
	NsjailPath          string // nsjail binary; looked up on PATH when relative
	IsolationConfigPath string // nsjail policy file
	InterpreterPath     string // interpreter that runs the runner program
	RunnerPath          string // runner program, see package runner

	// Executor runs the command lines. Defaults to ProcessExecutor.
	Executor Executor

	Logger *slog.Logger
}

// Invoker runs the runner program inside nsjail. When the host cannot
// support nsjail at all it runs the runner directly instead.
type Invoker struct {
	nsjail     string
	policyPath string
	python     string
	runner     string
	exec       Executor
	logger     *slog.Logger
}

// New creates an Invoker.
func New(cfg Config) (*Invoker, error) {
	if cfg.IsolationConfigPath == "" {
		return nil, fmt.Errorf("isolation config path is required")
	}
	if cfg.InterpreterPath == "" {
		return nil, fmt.Errorf("interpreter path is required")
	}
	if cfg.RunnerPath == "" {
		return nil, fmt.Errorf("runner path is required")
	}

	nsjail := cfg.NsjailPath
	if nsjail == "" {
		nsjail = "nsjail"
	}

	executor := cfg.Executor
	if executor == nil {
		executor = ProcessExecutor{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Invoker{
		nsjail:     nsjail,
		policyPath: cfg.IsolationConfigPath,
		python:     cfg.InterpreterPath,
		runner:     cfg.RunnerPath,
		exec:       executor,
		logger:     logger,
	}, nil
}

// IsolatedCommand is the command line that runs scriptPath under nsjail.
func (inv *Invoker) IsolatedCommand(scriptPath string) []string {
	return []string{
		inv.nsjail,
		"--config", inv.policyPath,
		"--",
		inv.python, inv.runner, scriptPath,
	}
}

// DirectCommand is the command line that runs scriptPath without isolation.
func (inv *Invoker) DirectCommand(scriptPath string) []string {
	return []string{inv.python, inv.runner, scriptPath}
}

// Run executes scriptPath under nsjail and returns the outcome. If nsjail
// reports that the host cannot support it (see IsolationUnsupported) the
// runner is started once more without nsjail and that outcome is returned
// with Degraded set. No other failure triggers a second attempt.
func (inv *Invoker) Run(ctx context.Context, scriptPath string) (*Outcome, error) {
	out, err := inv.exec.Exec(ctx, inv.IsolatedCommand(scriptPath))
	if err != nil {
		return nil, fmt.Errorf("starting isolation: %w", err)
	}
	if !IsolationUnsupported(out) {
		return out, nil
	}

	inv.logger.Warn("isolation unsupported on this host, running script WITHOUT sandbox",
		"script", scriptPath,
		"nsjail_exit_code", out.ExitCode,
		"diagnostic", UnsupportedDiagnostic,
	)

	fb, err := inv.exec.Exec(ctx, inv.DirectCommand(scriptPath))
	if err != nil {
		return nil, fmt.Errorf("running fallback: %w", err)
	}
	fb.Degraded = true
	return fb, nil
}
