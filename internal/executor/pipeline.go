// Package executor runs one submitted script end to end: stage it, run it
// through the sandbox, pull the result out of stdout and classify whatever
// went wrong.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/michaelbrown/pyexec/internal/result"
	"github.com/michaelbrown/pyexec/internal/sandbox"
	"github.com/michaelbrown/pyexec/internal/staging"
	"github.com/michaelbrown/pyexec/internal/storage"
)

// Config is everything the pipeline needs to locate on the host.
type Config struct {
	IsolationConfigPath string
	InterpreterPath     string
	StagingRoot         string
	RunnerPath          string
	NsjailPath          string
}

// Option customizes a Pipeline.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	executor sandbox.Executor
	sandbox  sandbox.Sandbox
	store    storage.Store
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithExecutor replaces the process executor used by the sandbox.
func WithExecutor(e sandbox.Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithSandbox replaces the sandbox entirely.
func WithSandbox(s sandbox.Sandbox) Option {
	return func(o *options) { o.sandbox = s }
}

// WithStore records every execution to store.
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// Pipeline executes scripts. It is safe for concurrent use; requests share
// nothing but the staging directory.
type Pipeline struct {
	stager  *staging.Stager
	sandbox sandbox.Sandbox
	store   storage.Store
	logger  *slog.Logger
}

// New creates a Pipeline from cfg.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if cfg.StagingRoot == "" {
		return nil, fmt.Errorf("staging root is required")
	}

	sb := o.sandbox
	if sb == nil {
		inv, err := sandbox.New(sandbox.Config{
			NsjailPath:          cfg.NsjailPath,
			IsolationConfigPath: cfg.IsolationConfigPath,
			InterpreterPath:     cfg.InterpreterPath,
			RunnerPath:          cfg.RunnerPath,
			Executor:            o.executor,
			Logger:              o.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating sandbox: %w", err)
		}
		sb = inv
	}

	return &Pipeline{
		stager:  staging.New(cfg.StagingRoot),
		sandbox: sb,
		store:   o.store,
		logger:  o.logger,
	}, nil
}

// Execute runs script and returns its result. A non-nil error is always
// an *Error. The caller cannot abort a running script; ctx is only
// cancelled when the service shuts down.
func (p *Pipeline) Execute(ctx context.Context, script string) (*Response, error) {
	if _, err := ValidateScript(script); err != nil {
		return nil, err
	}

	run := &storage.Execution{
		ID:          uuid.New().String(),
		ScriptBytes: len(script),
	}
	start := time.Now()
	resp, err := p.execute(ctx, script, run)
	run.DurationMS = time.Since(start).Milliseconds()
	p.record(ctx, run, err)
	return resp, err
}

func (p *Pipeline) execute(ctx context.Context, script string, run *storage.Execution) (*Response, error) {
	logger := p.logger.With("execution_id", run.ID)

	staged, err := p.stager.Stage(script)
	if err != nil {
		logger.Error("staging script failed", "error", err)
		return nil, &Error{Kind: KindInfrastructure, Message: MsgStagingFailed, Err: err}
	}
	defer func() {
		if err := staged.Remove(); err != nil {
			logger.Warn("removing staged script failed", "path", staged.Path, "error", err)
		}
	}()
	logger = logger.With("script_id", staged.ID)

	out, err := p.sandbox.Run(ctx, staged.Path)
	if err != nil {
		logger.Error("running script failed", "error", err)
		return nil, &Error{Kind: KindInfrastructure, Message: MsgRunFailed, Err: err}
	}

	run.ExitCode = out.ExitCode
	run.Degraded = out.Degraded
	run.StdoutBytes = len(out.Stdout)
	run.StderrBytes = len(out.Stderr)
	if out.Degraded {
		logger.Warn("script ran without isolation")
	}

	if out.ExitCode != 0 {
		logger.Info("script exited non-zero", "exit_code", out.ExitCode)
		return nil, &Error{
			Kind:     KindExecution,
			Message:  MsgExecutionFailed,
			ExitCode: &out.ExitCode,
			Stderr:   &out.Stderr,
			Stdout:   &out.Stdout,
			Degraded: out.Degraded,
		}
	}

	ex, err := result.Extract(out.Stdout)
	run.Markers = ex.Markers
	if ex.Markers > 1 {
		logger.Warn("multiple result lines, using the last", "markers", ex.Markers)
	}
	if err != nil {
		msg := MsgResultNotJSON
		if errors.Is(err, result.ErrResultMissing) {
			msg = MsgResultMissing
		}
		logger.Info("script broke the result protocol", "error", err)
		return nil, &Error{
			Kind:     KindProtocol,
			Message:  msg,
			Stderr:   &out.Stderr,
			Stdout:   &out.Stdout,
			Degraded: out.Degraded,
			Err:      err,
		}
	}

	return &Response{
		Result:   ex.Value,
		Stdout:   ex.Stdout,
		Degraded: out.Degraded,
	}, nil
}

func (p *Pipeline) record(ctx context.Context, run *storage.Execution, err error) {
	if p.store == nil {
		return
	}

	run.Status = storage.StatusSucceeded
	if e := AsError(err); e != nil {
		run.Status = e.Kind.status()
		run.Error = e.Message
	}

	if err := p.store.RecordExecution(context.WithoutCancel(ctx), run); err != nil {
		p.logger.Error("recording execution failed", "execution_id", run.ID, "error", err)
	}
}
