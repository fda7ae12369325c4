package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/inkwell-ai/docgate/internal/errors"
)

// DirLock guards a data directory against concurrent gateway processes.
// The Bleve backend needs this because BoltDB allows a single process;
// the SQLite backend relies on WAL mode instead.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates a lock for the given data directory. The lock file
// is created at <dir>/.docgate.lock.
func NewDirLock(dir string) *DirLock {
	lockPath := filepath.Join(dir, ".docgate.lock")
	return &DirLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Acquire takes the lock without blocking. It fails if another process
// already holds the data directory.
func (l *DirLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return errors.New(errors.ErrCodeDataDirLocked,
			fmt.Sprintf("data directory is locked by another process (lock file %s)", l.path), nil)
	}

	l.locked = true
	return nil
}

// Release drops the lock. Safe to call on an unlocked DirLock.
func (l *DirLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
