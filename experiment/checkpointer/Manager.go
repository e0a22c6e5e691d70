package checkpointer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

const (
	prefix    = "Checkpoint_"
	suffix    = "_steps"
	Extension = ".gob"
)

var checkpointName = regexp.MustCompile(`^` + prefix + `(\d+)` + suffix +
	regexp.QuoteMeta(Extension) + `$`)

// Manager writes a checkpoint every frequency steps. Checkpoints are
// named by the step index they were written at and are never
// overwritten, so a Manager only writes at strictly increasing steps.
type Manager struct {
	dir       string
	frequency int
	last      int
}

// NewManager returns a new Manager writing checkpoints into dir every
// frequency steps. The directory is created if needed.
func NewManager(dir string, frequency int) (*Manager, error) {
	if frequency <= 0 {
		return nil, fmt.Errorf("newManager: frequency must be positive, "+
			"got %v", frequency)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("newManager: %w", err)
	}

	return &Manager{dir: dir, frequency: frequency, last: -1}, nil
}

// Path returns the path of the checkpoint at step
func (m *Manager) Path(step int) string {
	return Path(m.dir, step)
}

// Path returns the path of the checkpoint at step in dir
func Path(dir string, step int) string {
	name := fmt.Sprintf("%v%d%v%v", prefix, step, suffix, Extension)
	return filepath.Join(dir, name)
}

// OnStep writes a checkpoint of s if step is a multiple of the
// checkpoint frequency. It returns the path written and whether a
// checkpoint was written.
func (m *Manager) OnStep(step int, s Serializable) (string, bool, error) {
	if step <= 0 || step%m.frequency != 0 {
		return "", false, nil
	}
	if step <= m.last {
		return "", false, fmt.Errorf("onStep: step %v is not after the "+
			"last checkpoint at step %v", step, m.last)
	}

	path := m.Path(step)
	if _, err := os.Stat(path); err == nil {
		return "", false, fmt.Errorf("onStep: %w: %v", ErrExists, path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", false, fmt.Errorf("onStep: %w", err)
	}

	if err := writeAtomic(path, s.Save); err != nil {
		return "", false, fmt.Errorf("onStep: %w", err)
	}
	m.last = step
	return path, true, nil
}

// Last returns the step of the last checkpoint written, or -1 if no
// checkpoint has been written
func (m *Manager) Last() int {
	return m.last
}

// Dir returns the directory checkpoints are written to
func (m *Manager) Dir() string {
	return m.dir
}

// Checkpoints returns the steps of all checkpoints in dir, in
// increasing order
func Checkpoints(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("checkpoints: %w", err)
	}

	var steps []int
	for _, entry := range entries {
		match := checkpointName.FindStringSubmatch(entry.Name())
		if entry.IsDir() || match == nil {
			continue
		}
		step, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps, nil
}

// Open opens the checkpoint at step in dir for reading. A negative
// step opens the best model instead.
func Open(dir string, step int) (io.ReadCloser, error) {
	path := Path(dir, step)
	if step < 0 {
		path = filepath.Join(dir, BestModel+Extension)
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("open: %w: %v", ErrNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return f, nil
}
