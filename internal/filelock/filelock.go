// Package filelock guards against two loop instances running against the
// same project at once.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is a process-level lock backed by a lock file.
type Lock struct {
	flock *flock.Flock
	path  string
}

// ForProject returns the lock guarding the given project directory. The lock
// file lives inside the project's .autoloop directory.
func ForProject(dir string) (*Lock, error) {
	lockDir := filepath.Join(dir, ".autoloop")
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	path := filepath.Join(lockDir, "loop.lock")
	return &Lock{flock: flock.New(path), path: path}, nil
}

// TryAcquire attempts to take the lock without blocking. It returns false
// when another loop instance already holds it.
func (l *Lock) TryAcquire() (bool, error) {
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	return acquired, nil
}

// Release releases the lock.
func (l *Lock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file location, for error messages.
func (l *Lock) Path() string {
	return l.path
}
