// Package runner ships the program that runs inside the isolation boundary.
//
// The runner loads a user script in a fresh namespace, calls its main()
// and prints the JSON-encoded return value on a single stdout line that
// starts with Marker. Everything else the script prints is ordinary output.
package runner

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Marker prefixes the one stdout line that carries the result.
const Marker = "___RESULT_JSON___:"

//go:embed runner.py
var source []byte

// Source returns a copy of the embedded runner program.
func Source() []byte {
	return bytes.Clone(source)
}

// Installed reports whether path holds the current runner program.
func Installed(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading runner %s: %w", path, err)
	}
	return bytes.Equal(data, source), nil
}

// Install writes the embedded runner to path. The file is replaced
// atomically so a concurrently starting execution never sees a partial file.
func Install(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating runner directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".runner-*.py")
	if err != nil {
		return fmt.Errorf("creating temp runner: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(source); err != nil {
		tmp.Close()
		return fmt.Errorf("writing runner: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("setting runner permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing runner: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("installing runner to %s: %w", path, err)
	}
	return nil
}

// EnsureInstalled installs the runner unless path already holds it.
// It reports whether a write happened.
func EnsureInstalled(path string) (bool, error) {
	ok, err := Installed(path)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	return true, Install(path)
}
