// Package staging writes submitted scripts to uniquely named files so the
// isolation mechanism can read them.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Script is a submission persisted on disk. It is owned by the request
// that staged it.
type Script struct {
	ID       string
	Path     string
	Contents string
}

// Remove deletes the staged file. Removing an already-removed script is
// not an error.
func (s *Script) Remove() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing staged script: %w", err)
	}
	return nil
}

// Stager places scripts under a root directory.
type Stager struct {
	Root string
}

// New creates a Stager rooted at root. The directory is created on demand.
func New(root string) *Stager {
	return &Stager{Root: root}
}

// Stage writes contents verbatim to <root>/user_script_<uuid>.py.
func (st *Stager) Stage(contents string) (*Script, error) {
	if err := os.MkdirAll(st.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	id := uuid.New().String()
	path := filepath.Join(st.Root, "user_script_"+id+".py")

	// O_EXCL: a collision fails loudly instead of overwriting another request's file.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating staged script: %w", err)
	}

	if _, err := f.WriteString(contents); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing staged script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("closing staged script: %w", err)
	}

	return &Script{ID: id, Path: path, Contents: contents}, nil
}
