package sandbox

import "strings"

// nsjail exits with UnsupportedExitCode and names UnsupportedDiagnostic on
// stderr when the host kernel refuses the securebits prctl it needs, e.g.
// inside an already-restricted container.
const (
	UnsupportedExitCode   = 255
	UnsupportedDiagnostic = "PR_SET_SECUREBITS"
)

// IsolationUnsupported reports whether o is nsjail failing because the host
// cannot support it. This is the only condition that disables isolation:
// both the exit code and the diagnostic must match.
func IsolationUnsupported(o *Outcome) bool {
	return o != nil &&
		o.ExitCode == UnsupportedExitCode &&
		strings.Contains(o.Stderr, UnsupportedDiagnostic)
}
