// Package result separates the runner's result line from the user's own
// stdout.
package result

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/michaelbrown/pyexec/internal/runner"
)

var (
	// ErrResultMissing means stdout held no marker line.
	ErrResultMissing = errors.New("result marker not found")

	// ErrResultNotJSON means the last marker line did not carry valid JSON.
	ErrResultNotJSON = errors.New("result is not valid JSON")
)

// Extracted is the parsed form of a runner's stdout.
type Extracted struct {
	Value   json.RawMessage // payload of the last marker line
	Stdout  string          // non-marker lines joined by "\n"
	Markers int             // number of marker lines seen
}

// Extract scans stdout line by line. Lines starting with runner.Marker are
// result candidates and the last one wins; every other line is user output
// and is kept in order.
func Extract(stdout string) (*Extracted, error) {
	var (
		candidate string
		markers   int
		user      []string
	)

	for _, line := range SplitLines(stdout) {
		if payload, ok := strings.CutPrefix(line, runner.Marker); ok {
			candidate = payload
			markers++
			continue
		}
		user = append(user, line)
	}

	ex := &Extracted{
		Stdout:  strings.Join(user, "\n"),
		Markers: markers,
	}
	if markers == 0 {
		return ex, ErrResultMissing
	}
	if !json.Valid([]byte(candidate)) {
		return ex, ErrResultNotJSON
	}
	ex.Value = json.RawMessage(candidate)
	return ex, nil
}

// SplitLines splits s the way the interpreter reads text-mode output:
// "\r\n", "\r" and "\n" end a line, as do the other Unicode line
// boundaries (\v, \f, \x1c-\x1e, U+0085, U+2028, U+2029). A trailing
// boundary does not produce an empty final line.
func SplitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); {
		r, size := rune(s[i]), 1
		if r >= 0x80 {
			r, size = utf8.DecodeRuneInString(s[i:])
		}
		if !isLineBoundary(r) {
			i += size
			continue
		}
		lines = append(lines, s[start:i])
		i += size
		if r == '\r' && i < len(s) && s[i] == '\n' {
			i++
		}
		start = i
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func isLineBoundary(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', 0x1c, 0x1d, 0x1e, 0x85, 0x2028, 0x2029:
		return true
	}
	return false
}
