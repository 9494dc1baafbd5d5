// Package state persists per-type resource snapshots for both accounts and
// maintains the run-scoped identifier correlation table.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotExist is returned by a backend when a snapshot has never been written.
var ErrNotExist = errors.New("state object does not exist")

// Backend abstracts where snapshot files live. Names are slash-separated
// relative paths such as "source/monitors.json". Lock guards a whole run
// against concurrent processes sharing the same state.
type Backend interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// BackendConfig selects and configures a snapshot backend.
type BackendConfig struct {
	Type      string // "local" or "s3"
	Dir       string // local: root directory
	Bucket    string // s3: bucket name
	Prefix    string // s3: key prefix
	Region    string // s3: region
	LockTable string // s3: DynamoDB table for run locking
}

// NewBackend creates a snapshot backend from configuration.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch cfg.Type {
	case "local", "":
		dir := cfg.Dir
		if dir == "" {
			dir = "resources"
		}
		return &localBackend{dir: dir}, nil
	case "s3":
		return newS3Backend(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown state backend type: %s", cfg.Type)
	}
}

// localBackend stores snapshots as files under a root directory.
type localBackend struct {
	dir string
}

func (b *localBackend) Read(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.dir, filepath.FromSlash(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("failed to read state file %s: %w", name, err)
	}
	return data, nil
}

func (b *localBackend) Write(_ context.Context, name string, data []byte) error {
	path := filepath.Join(b.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", name, err)
	}
	return nil
}

// staleLockAge is how old a lock file must be before another process may
// break it.
const staleLockAge = 10 * time.Minute

func (b *localBackend) lockPath() string {
	return filepath.Join(b.dir, ".lock")
}

// Lock acquires a file lock on the state to prevent concurrent runs.
func (b *localBackend) Lock(_ context.Context) error {
	lockPath := b.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if info, err := os.Stat(lockPath); err == nil {
		if time.Since(info.ModTime()) > staleLockAge {
			os.Remove(lockPath)
		} else {
			return fmt.Errorf("state is locked by another process (lock file: %s). "+
				"If this is an error, remove the lock file manually", lockPath)
		}
	}

	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	return nil
}

// Unlock releases the state lock.
func (b *localBackend) Unlock(_ context.Context) error {
	if err := os.Remove(b.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}
