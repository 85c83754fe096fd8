package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/michaelbrown/pyexec/internal/runner"
)

// fakeExecutor returns canned outcomes in order and records every call.
type fakeExecutor struct {
	mu       sync.Mutex
	outcomes []*Outcome
	err      error
	calls    [][]string
}

func (f *fakeExecutor) Exec(_ context.Context, argv []string) (*Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, argv)
	if f.err != nil {
		return nil, f.err
	}
	out := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	copied := *out
	return &copied, nil
}

func testInvoker(t *testing.T, ex Executor) *Invoker {
	t.Helper()
	inv, err := New(Config{
		NsjailPath:          "/usr/bin/nsjail",
		IsolationConfigPath: "/etc/nsjail.cfg",
		InterpreterPath:     "/usr/local/bin/python3",
		RunnerPath:          "/app/executor.py",
		Executor:            ex,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return inv
}

func TestNewRequiresPaths(t *testing.T) {
	if _, err := New(Config{InterpreterPath: "p", RunnerPath: "r"}); err == nil {
		t.Error("expected error without isolation config")
	}
	if _, err := New(Config{IsolationConfigPath: "c", RunnerPath: "r"}); err == nil {
		t.Error("expected error without interpreter")
	}
	if _, err := New(Config{IsolationConfigPath: "c", InterpreterPath: "p"}); err == nil {
		t.Error("expected error without runner")
	}
}

func TestRunIsolated(t *testing.T) {
	fake := &fakeExecutor{outcomes: []*Outcome{{Stdout: "ok\n", ExitCode: 0}}}
	inv := testInvoker(t, fake)

	out, err := inv.Run(context.Background(), "/sandbox/user_script_1.py")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Degraded {
		t.Error("isolated run must not be degraded")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("got %d invocations, want 1", len(fake.calls))
	}

	want := []string{
		"/usr/bin/nsjail", "--config", "/etc/nsjail.cfg", "--",
		"/usr/local/bin/python3", "/app/executor.py", "/sandbox/user_script_1.py",
	}
	if !reflect.DeepEqual(fake.calls[0], want) {
		t.Errorf("argv = %q, want %q", fake.calls[0], want)
	}
}

func TestRunFallsBackWhenIsolationUnsupported(t *testing.T) {
	fake := &fakeExecutor{outcomes: []*Outcome{
		{Stderr: "[E] prctl(PR_SET_SECUREBITS): Operation not permitted\n", ExitCode: 255},
		{Stdout: "fallback\n", Stderr: "", ExitCode: 0},
	}}
	inv := testInvoker(t, fake)

	out, err := inv.Run(context.Background(), "/sandbox/s.py")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("got %d invocations, want 2", len(fake.calls))
	}

	wantDirect := []string{"/usr/local/bin/python3", "/app/executor.py", "/sandbox/s.py"}
	if !reflect.DeepEqual(fake.calls[1], wantDirect) {
		t.Errorf("fallback argv = %q, want %q", fake.calls[1], wantDirect)
	}
	if out.Stdout != "fallback\n" || out.ExitCode != 0 {
		t.Errorf("fallback outcome not authoritative: %+v", out)
	}
	if !out.Degraded {
		t.Error("fallback outcome must be marked degraded")
	}
}

func TestRunFallbackOutcomeIsFinal(t *testing.T) {
	// Even if the direct run fails the same way, there is no third attempt.
	unsupported := &Outcome{Stderr: "PR_SET_SECUREBITS", ExitCode: 255}
	fake := &fakeExecutor{outcomes: []*Outcome{unsupported, unsupported}}
	inv := testInvoker(t, fake)

	out, err := inv.Run(context.Background(), "/sandbox/s.py")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("got %d invocations, want 2", len(fake.calls))
	}
	if out.ExitCode != 255 || !out.Degraded {
		t.Errorf("outcome = %+v", out)
	}
}

func TestRunNoFallbackOnOtherFailures(t *testing.T) {
	cases := map[string]*Outcome{
		"exit 255 without diagnostic": {Stderr: "some other nsjail error", ExitCode: 255},
		"diagnostic with exit 1":      {Stderr: "PR_SET_SECUREBITS", ExitCode: 1},
		"script failure":              {Stderr: "Traceback", ExitCode: 1},
		"killed":                      {ExitCode: -1},
	}

	for name, primary := range cases {
		t.Run(name, func(t *testing.T) {
			fake := &fakeExecutor{outcomes: []*Outcome{primary}}
			inv := testInvoker(t, fake)

			out, err := inv.Run(context.Background(), "/sandbox/s.py")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(fake.calls) != 1 {
				t.Fatalf("got %d invocations, want 1", len(fake.calls))
			}
			if out.ExitCode != primary.ExitCode || out.Degraded {
				t.Errorf("outcome = %+v", out)
			}
		})
	}
}

func TestRunStartFailure(t *testing.T) {
	fake := &fakeExecutor{err: errors.New("exec: \"nsjail\": executable file not found")}
	inv := testInvoker(t, fake)

	if _, err := inv.Run(context.Background(), "/sandbox/s.py"); err == nil {
		t.Fatal("expected error when nsjail cannot start")
	}
	if len(fake.calls) != 1 {
		t.Errorf("got %d invocations, want 1", len(fake.calls))
	}
}

func TestIsolationUnsupported(t *testing.T) {
	if IsolationUnsupported(nil) {
		t.Error("nil outcome")
	}
	if !IsolationUnsupported(&Outcome{ExitCode: 255, Stderr: "x PR_SET_SECUREBITS y"}) {
		t.Error("exact combination should match")
	}
	if IsolationUnsupported(&Outcome{ExitCode: 255, Stderr: "pr_set_securebits"}) {
		t.Error("match must be case-sensitive")
	}
}

// --- Real process tests ---

func skipIfNoShell(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not found on PATH")
	}
	return path
}

func TestProcessExecutorCapturesStreams(t *testing.T) {
	sh := skipIfNoShell(t)

	out, err := ProcessExecutor{}.Exec(context.Background(),
		[]string{sh, "-c", `echo out1; echo err1 >&2; echo out2; exit 3`})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if out.Stdout != "out1\nout2\n" {
		t.Errorf("stdout = %q", out.Stdout)
	}
	if out.Stderr != "err1\n" {
		t.Errorf("stderr = %q", out.Stderr)
	}
	if out.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", out.ExitCode)
	}
}

func TestProcessExecutorLargeOutputOnBothStreams(t *testing.T) {
	sh := skipIfNoShell(t)

	// Well past a pipe buffer on each stream.
	script := `i=0; while [ $i -lt 20000 ]; do echo "line $i"; echo "err $i" >&2; i=$((i+1)); done`
	out, err := ProcessExecutor{}.Exec(context.Background(), []string{sh, "-c", script})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got := strings.Count(out.Stdout, "\n"); got != 20000 {
		t.Errorf("stdout lines = %d, want 20000", got)
	}
	if got := strings.Count(out.Stderr, "\n"); got != 20000 {
		t.Errorf("stderr lines = %d, want 20000", got)
	}
}

func TestProcessExecutorInvalidUTF8(t *testing.T) {
	sh := skipIfNoShell(t)

	out, err := ProcessExecutor{}.Exec(context.Background(), []string{sh, "-c", `printf 'a\377b\n'`})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if out.Stdout != "a\uFFFDb\n" {
		t.Errorf("stdout = %q", out.Stdout)
	}
}

func TestProcessExecutorMissingBinary(t *testing.T) {
	_, err := ProcessExecutor{}.Exec(context.Background(), []string{"/nonexistent/nsjail"})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if _, err := (ProcessExecutor{}).Exec(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func writeExecutable(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestInvokerFallbackWithProcesses(t *testing.T) {
	sh := skipIfNoShell(t)
	dir := t.TempDir()

	// An nsjail that always reports the securebits failure.
	nsjail := filepath.Join(dir, "nsjail")
	writeExecutable(t, nsjail, "#!"+sh+"\necho '[F] prctl(PR_SET_SECUREBITS): Operation not permitted' >&2\nexit 255\n")

	// The "runner" is a shell script run by sh; it echoes its argument.
	runnerPath := filepath.Join(dir, "runner.sh")
	writeExecutable(t, runnerPath, "echo \"ran $1\"\n")

	inv, err := New(Config{
		NsjailPath:          nsjail,
		IsolationConfigPath: filepath.Join(dir, "nsjail.cfg"),
		InterpreterPath:     sh,
		RunnerPath:          runnerPath,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := inv.Run(context.Background(), "/sandbox/s.py")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Stdout != "ran /sandbox/s.py\n" {
		t.Errorf("stdout = %q", out.Stdout)
	}
	if out.ExitCode != 0 || !out.Degraded {
		t.Errorf("outcome = %+v", out)
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	interp := filepath.Join(dir, "python3")
	writeExecutable(t, interp, "")
	runnerPath := filepath.Join(dir, "executor.py")
	if err := os.WriteFile(runnerPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	results := Check(Config{
		NsjailPath:          filepath.Join(dir, "no-nsjail"),
		IsolationConfigPath: filepath.Join(dir, "missing.cfg"),
		InterpreterPath:     interp,
		RunnerPath:          runnerPath,
	})

	byName := make(map[string]CheckResult)
	for _, r := range results {
		byName[r.Name] = r
	}
	if r := byName["nsjail"]; r.Passed || r.Warning {
		t.Errorf("nsjail check = %+v, want failure", r)
	}
	if r := byName["isolation config"]; r.Passed {
		t.Errorf("missing config should fail: %+v", r)
	}
	if r := byName["interpreter"]; !r.Passed {
		t.Errorf("interpreter check = %+v", r)
	}
	if r := byName["runner"]; r.Passed || !r.Warning {
		t.Errorf("stale runner check = %+v, want warning", r)
	}
	if !Failed(results) {
		t.Error("Failed should report the missing config")
	}
}

func TestCheckCurrentRunner(t *testing.T) {
	dir := t.TempDir()
	runnerPath := filepath.Join(dir, "executor.py")
	if err := runner.Install(runnerPath); err != nil {
		t.Fatal(err)
	}

	results := Check(Config{RunnerPath: runnerPath})
	for _, r := range results {
		if r.Name == "runner" && !r.Passed {
			t.Errorf("runner check = %+v, want pass", r)
		}
	}

	onlyWarnings := []CheckResult{{Name: "runner", Warning: true}, {Name: "nsjail", Passed: true}}
	if Failed(onlyWarnings) {
		t.Error("Failed() = true for warnings only")
	}
}
