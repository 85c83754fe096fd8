package sandbox

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/michaelbrown/pyexec/internal/runner"
)

// CheckResult is the outcome of one pre-flight check.
type CheckResult struct {
	Name    string
	Passed  bool
	Message string
	Warning bool // failed, but execution can still proceed
}

// Check verifies that the binaries and files in cfg are usable. A runner
// that differs from the embedded copy is only a warning.
func Check(cfg Config) []CheckResult {
	var results []CheckResult

	nsjail := cfg.NsjailPath
	if nsjail == "" {
		nsjail = "nsjail"
	}
	if path, err := exec.LookPath(nsjail); err != nil {
		results = append(results, CheckResult{
			Name:    "nsjail",
			Message: fmt.Sprintf("%s not found: %v", nsjail, err),
		})
	} else {
		results = append(results, CheckResult{Name: "nsjail", Passed: true, Message: path})
	}

	results = append(results, checkFile("isolation config", cfg.IsolationConfigPath, false))
	results = append(results, checkFile("interpreter", cfg.InterpreterPath, true))
	results = append(results, checkRunner(cfg.RunnerPath))
	return results
}

// Failed reports whether any non-warning check failed.
func Failed(results []CheckResult) bool {
	for _, r := range results {
		if !r.Passed && !r.Warning {
			return true
		}
	}
	return false
}

func checkFile(name, path string, executable bool) CheckResult {
	if path == "" {
		return CheckResult{Name: name, Message: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return CheckResult{Name: name, Message: err.Error()}
	}
	if info.IsDir() {
		return CheckResult{Name: name, Message: path + " is a directory"}
	}
	if executable && info.Mode().Perm()&0o111 == 0 {
		return CheckResult{Name: name, Message: path + " is not executable"}
	}
	return CheckResult{Name: name, Passed: true, Message: path}
}

func checkRunner(path string) CheckResult {
	r := checkFile("runner", path, false)
	if !r.Passed {
		return r
	}
	current, err := runner.Installed(path)
	if err != nil {
		return CheckResult{Name: "runner", Message: err.Error()}
	}
	if !current {
		return CheckResult{
			Name:    "runner",
			Message: path + " differs from the built-in runner; run `pyexec runner install`",
			Warning: true,
		}
	}
	return r
}
