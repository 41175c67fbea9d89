// Package status provides scheduler status tracking for tracked wallets, with
// optional persistence so operators can inspect the last known state after a
// restart.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stacklok/toolhive-wallet-sync/internal/message"
	"github.com/stacklok/toolhive-wallet-sync/internal/versions"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

const (
	// StatusFileName is the name of the status file
	StatusFileName = "status.json"
)

// StatusPersistence defines the interface for scheduler status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the status of a tracked wallet
	SaveStatus(ctx context.Context, target message.Target, status *SchedulerStatus) error

	// LoadStatus loads the status of a tracked wallet.
	// Returns an empty SchedulerStatus if the file doesn't exist (first run)
	LoadStatus(ctx context.Context, target message.Target) (*SchedulerStatus, error)
}

// fileStatusPersistence implements StatusPersistence using local filesystem
type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence creates a new file-based status persistence.
// Status files are stored at basePath/<family>/<wallet>/status.json.
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{
		basePath: basePath,
	}
}

// SaveStatus writes the status atomically as JSON, stamped with the
// running version
func (f *fileStatusPersistence) SaveStatus(_ context.Context, target message.Target, status *SchedulerStatus) error {
	dir := f.targetDir(target)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create status directory for %s: %w", target, err)
	}

	filePath := filepath.Join(dir, StatusFileName)

	stamped := *status
	stamped.WrittenBy = versions.Version

	data, err := json.MarshalIndent(&stamped, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status for %s: %w", target, err)
	}

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file for %s: %w", target, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file for %s: %w", target, err)
	}

	return nil
}

// LoadStatus reads the status of target, or an empty one if none was saved
func (f *fileStatusPersistence) LoadStatus(_ context.Context, target message.Target) (*SchedulerStatus, error) {
	filePath := filepath.Join(f.targetDir(target), StatusFileName)

	// #nosec G304 -- filePath is built from basePath and validated wallet names
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &SchedulerStatus{}, nil
		}
		return nil, fmt.Errorf("failed to read status file for %s: %w", target, err)
	}

	var status SchedulerStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status for %s: %w", target, err)
	}

	return &status, nil
}

func (f *fileStatusPersistence) targetDir(target message.Target) string {
	return filepath.Join(f.basePath, string(target.Family), target.Wallet)
}
