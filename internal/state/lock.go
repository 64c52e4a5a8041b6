package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// staleLockAge is how old a lock file must be before it is presumed
// abandoned by a crashed process.
const staleLockAge = 10 * time.Minute

// LockError reports that another process holds the state lock. It is
// surfaced to the caller immediately rather than retried.
type LockError struct {
	Path   string
	Holder string
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("state is locked by another process (lock file: %s)", e.Path)
	if e.Holder != "" {
		msg += fmt.Sprintf(", held by %s", e.Holder)
	}
	return msg + ". If the holder is gone, remove the lock file manually"
}

// Lock acquires the file lock guarding the state against concurrent
// modification. A held lock returns *LockError.
func (m *Manager) Lock() error {
	lockPath := m.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if info, err := os.Stat(lockPath); err == nil {
		if time.Since(info.ModTime()) > staleLockAge {
			os.Remove(lockPath)
		} else {
			holder := ""
			if raw, rerr := os.ReadFile(lockPath); rerr == nil {
				holder = strings.TrimSpace(string(raw))
			}
			return &LockError{Path: lockPath, Holder: holder}
		}
	}

	content := fmt.Sprintf("pid=%d time=%s", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	return nil
}

// Unlock releases the state lock.
func (m *Manager) Unlock() error {
	if err := os.Remove(m.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (m *Manager) lockPath() string {
	return m.path + ".lock"
}
