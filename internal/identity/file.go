package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/gofrs/flock"
)

const (
	// identityFileName is the name of the identity file inside the data directory
	identityFileName = "identity.json"

	// appDataDir is the application directory below the XDG data home
	appDataDir = "toolhive-wallet-sync"

	// lockRetryDelay is how often a busy lock is retried
	lockRetryDelay = 50 * time.Millisecond
)

// storedIdentity is the on-disk representation of an identity
type storedIdentity struct {
	Token string `json:"token"`
}

// FileLoader loads the identity token from a JSON file. Reads take a shared
// lock and writes an exclusive one, so a login in another process never
// exposes a half-written file.
type FileLoader struct {
	path string
	now  func() time.Time
}

// DefaultIdentityPath returns the identity file path below the XDG data home
func DefaultIdentityPath() string {
	return filepath.Join(xdg.DataHome, appDataDir, identityFileName)
}

// NewFileLoader creates a loader for path, or for DefaultIdentityPath when
// path is empty
func NewFileLoader(path string) *FileLoader {
	if path == "" {
		path = DefaultIdentityPath()
	}
	return &FileLoader{
		path: filepath.Clean(path),
		now:  time.Now,
	}
}

// Path returns the identity file path
func (l *FileLoader) Path() string {
	return l.path
}

// LoadIdentity reads and decodes the identity file
func (l *FileLoader) LoadIdentity(ctx context.Context) (*Identity, error) {
	lock := flock.New(l.lockPath())
	locked, err := lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock identity file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock identity file %s", l.path)
	}
	defer func() { _ = lock.Unlock() }()

	// #nosec G304 -- path is configured by the operator
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read identity file: %w", err)
	}

	var stored storedIdentity
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	ident, err := FromToken(stored.Token)
	if err != nil {
		return nil, err
	}
	return checkUsable(ident, l.now())
}

// Store writes token to the identity file
func (l *FileLoader) Store(ctx context.Context, token string) error {
	if _, err := FromToken(token); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0750); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}

	return l.withWriteLock(ctx, func() error {
		data, err := json.MarshalIndent(storedIdentity{Token: token}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal identity: %w", err)
		}

		// Write to temporary file first for atomic operation
		tempPath := l.path + ".tmp"
		if err := os.WriteFile(tempPath, data, 0600); err != nil {
			return fmt.Errorf("failed to write temporary identity file: %w", err)
		}
		if err := os.Rename(tempPath, l.path); err != nil {
			_ = os.Remove(tempPath)
			return fmt.Errorf("failed to rename identity file: %w", err)
		}
		return nil
	})
}

// Delete removes the identity file. Deleting a missing file is not an error.
func (l *FileLoader) Delete(ctx context.Context) error {
	if _, err := os.Stat(filepath.Dir(l.path)); os.IsNotExist(err) {
		return nil
	}
	return l.withWriteLock(ctx, func() error {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete identity file: %w", err)
		}
		return nil
	})
}

func (l *FileLoader) withWriteLock(ctx context.Context, fn func() error) error {
	lock := flock.New(l.lockPath())
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock identity file: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to lock identity file %s", l.path)
	}
	defer func() { _ = lock.Unlock() }()

	return fn()
}

func (l *FileLoader) lockPath() string {
	return l.path + ".lock"
}
