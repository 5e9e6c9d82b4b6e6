package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// VaultLock provides cross-process locking for a vault's state directory.
// It prevents two daemons from managing the same vault, which would race
// on the database and on debounced file writes. Works on all platforms.
type VaultLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewVaultLock creates a lock for the given state directory. The lock file
// lives at <dir>/.vault.lock.
func NewVaultLock(dir string) *VaultLock {
	lockPath := filepath.Join(dir, ".vault.lock")
	return &VaultLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking. Returns true if
// acquired, false if another process holds it.
func (l *VaultLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire vault lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked VaultLock.
func (l *VaultLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release vault lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *VaultLock) Path() string {
	return l.path
}

// IsLocked reports whether this process holds the lock.
func (l *VaultLock) IsLocked() bool {
	return l.locked
}
