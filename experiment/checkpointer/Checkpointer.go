// Package checkpointer implements periodic, immutable checkpoints of
// learned parameters and the single best model slot of a run.
package checkpointer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var (
	// ErrExists is returned when a checkpoint would overwrite an
	// existing file
	ErrExists = errors.New("checkpoint already exists")

	// ErrNotFound is returned when a requested checkpoint or best model
	// does not exist
	ErrNotFound = errors.New("checkpoint not found")
)

// Serializable is an object whose parameters can be saved
type Serializable interface {
	Save(w io.Writer) error
}

// writeAtomic writes a file in dir through a temporary file which is
// renamed to path once completely written, so that readers never see a
// partially written file
func writeAtomic(path string, write func(io.Writer) error) error {
	tmpName, err := stage(path, write)
	if err != nil {
		return fmt.Errorf("writeAtomic: %w", err)
	}
	defer os.Remove(tmpName)

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("writeAtomic: %w", err)
	}
	return nil
}

// stage writes a synced temporary file next to path and returns its
// name. The caller owns the file and must rename or remove it.
func stage(path string, write func(io.Writer) error) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path),
		"."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("stage: %w", err)
	}
	tmpName := tmp.Name()

	err = write(tmp)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("stage: %w", err)
	}
	return tmpName, nil
}
