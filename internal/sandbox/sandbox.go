package sandbox

import "context"

// Outcome is what one invocation of the runner produced.
type Outcome struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Degraded is set when the runner ran without the isolation boundary.
	Degraded bool
}

// Executor runs a command line to completion and captures its output.
// A non-zero exit is reported through Outcome.ExitCode, not as an error.
type Executor interface {
	Exec(ctx context.Context, argv []string) (*Outcome, error)
}

// Sandbox runs a staged script through the runner program.
type Sandbox interface {
	Run(ctx context.Context, scriptPath string) (*Outcome, error)
}
