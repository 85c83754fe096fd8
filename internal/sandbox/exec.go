package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ProcessExecutor runs commands as child processes.
type ProcessExecutor struct{}

// Exec starts argv and waits for it. Stdout and stderr go to separate
// buffers; os/exec drains both pipes concurrently, so a child filling one
// pipe never blocks on the other.
func (ProcessExecutor) Exec(ctx context.Context, argv []string) (*Outcome, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command line")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("running %s: %w", argv[0], err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &Outcome{
		Stdout:   decodeText(stdout.Bytes()),
		Stderr:   decodeText(stderr.Bytes()),
		ExitCode: exitCode,
	}, nil
}

// decodeText treats output as UTF-8. Invalid sequences become U+FFFD so the
// text survives JSON encoding; line structure is untouched.
func decodeText(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
