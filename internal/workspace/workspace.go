// Package workspace manages rappel's per-user workspace directory: the
// optional config.toml read at startup, and a flock-guarded history file
// written once at session end.
package workspace

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/talismancer/rappel/internal/options"
)

const (
	dirPerm     = 0o700
	filePerm    = 0o600
	historyName = "history"
	lockName    = ".lock"
)

// Workspace owns the on-disk directory, its session lock, and the
// in-memory history accumulated so far this session.
type Workspace struct {
	dir     string
	lock    *flock.Flock
	history []string
}

// Open creates dir if needed (owner-only permissions) and acquires the
// session lock, so two rappel invocations against the same workspace
// never interleave history writes.
func Open(dir string) (*Workspace, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, errors.Wrapf(err, "creating workspace %s", dir)
	}

	lk := flock.New(filepath.Join(dir, lockName))
	locked, err := lk.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "locking workspace")
	}
	if !locked {
		return nil, errors.Errorf("workspace %s is already in use by another rappel session", dir)
	}

	return &Workspace{dir: dir, lock: lk}, nil
}

// LoadConfig layers <dir>/config.toml over base and returns the merged
// configuration.
func (w *Workspace) LoadConfig(base options.Options) (options.Options, error) {
	return options.LoadWorkspaceConfig(base, w.dir)
}

// Record appends a line to the in-memory session history, flushed to disk
// by Close.
func (w *Workspace) Record(line string) {
	w.history = append(w.history, line)
}

// Close writes the session's accumulated history (truncating any prior
// contents, per the "written only at session end" resource rule in
// to avoid concurrent-writer pathologies across sessions) and releases
// the session lock.
func (w *Workspace) Close() error {
	defer w.lock.Unlock()

	path := filepath.Join(w.dir, historyName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return errors.Wrapf(err, "opening history file %s", path)
	}
	defer f.Close()

	for _, line := range w.history {
		if _, err := f.WriteString(line + "\n"); err != nil {
			return errors.Wrap(err, "writing history")
		}
	}
	return nil
}

// ClearHistory discards the in-memory history, used by .reset per
// on an explicit reset.
func (w *Workspace) ClearHistory() {
	w.history = nil
}

// History returns the accumulated session history lines, in order.
func (w *Workspace) History() []string {
	return append([]string(nil), w.history...)
}
