package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrDataDirLocked is returned by AcquireLock when another process already
// holds the exclusive lock on a data directory.
var ErrDataDirLocked = errors.New("data directory is locked by another process")

// DataDirLock is a cross-process exclusive lock over a data directory,
// held for the lifetime of an open Engine so two instances never write the
// same Store and VectorIndex concurrently.
type DataDirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// AcquireLock creates (if needed) and exclusively locks <dataDir>/.cascade.lock.
// It does not block: if another process already holds the lock, it returns
// ErrDataDirLocked rather than waiting.
func AcquireLock(dataDir string) (*DataDirLock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, ".cascade.lock")
	l := &DataDirLock{path: path, flock: flock.New(path)}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire data directory lock: %w", err)
	}
	if !acquired {
		return nil, ErrDataDirLocked
	}

	l.locked = true
	return l, nil
}

// Release releases the lock. Safe to call multiple times.
func (l *DataDirLock) Release() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release data directory lock: %w", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file's path.
func (l *DataDirLock) Path() string {
	return l.path
}
