package state

import (
	"context"
	"fmt"

	"github.com/stackdock-io/stackdock/internal/ir"
)

// Backend is the interface state storage backends implement.
type Backend interface {
	// Read loads the state snapshot.
	Read(ctx context.Context) (*ir.State, error)

	// Write persists the state snapshot.
	Write(ctx context.Context, state *ir.State) error

	// Lock acquires the exclusive write lock. A lock held elsewhere is a
	// *LockError.
	Lock() error

	// Unlock releases the write lock.
	Unlock() error
}

// NewBackend builds a backend from a declaration's backend block. A nil or
// "local" configuration falls back to the local file at localPath.
func NewBackend(cfg *ir.BackendConfig, localPath string) (Backend, error) {
	if cfg == nil {
		return NewManager(localPath), nil
	}
	switch cfg.Type {
	case "local", "":
		if p := cfg.Config["path"]; p != "" {
			return NewManager(p), nil
		}
		return NewManager(localPath), nil
	case "s3":
		return newS3Backend(cfg.Config)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
