package status

import "time"

// Phase represents the scheduler phase of a tracked wallet
type Phase string

const (
	// PhaseStopped means no timer is scheduled
	PhaseStopped Phase = "Stopped"

	// PhaseStarting means the worker is resolving credentials
	PhaseStarting Phase = "Starting"

	// PhaseRunning means the timer is ticking
	PhaseRunning Phase = "Running"
)

// SchedulerStatus represents the current state of a wallet's sync scheduler
type SchedulerStatus struct {
	// Phase represents the current scheduler phase
	Phase Phase `json:"phase"`

	// Message provides additional information about the status
	Message string `json:"message,omitempty"`

	// WorkerID identifies the live worker instance, empty when stopped
	WorkerID string `json:"workerId,omitempty"`

	// LastAttempt is the timestamp of the last sync attempt
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of failed sync attempts since last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastSyncTime is the timestamp of the last successful sync
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`

	// LastError is the last sync error, cleared on success
	LastError string `json:"lastError,omitempty"`

	// Alert is the last error the user must be told about, cleared on success
	Alert string `json:"alert,omitempty"`

	// SyncInterval is the configured polling interval (e.g., "30s", "5m")
	SyncInterval string `json:"syncInterval,omitempty"`

	// WrittenBy is the version of the binary that last saved the status
	WrittenBy string `json:"writtenBy,omitempty"`
}

// RecordSuccess marks a successful sync at t
func (s *SchedulerStatus) RecordSuccess(t time.Time) {
	s.LastAttempt = &t
	s.LastSyncTime = &t
	s.AttemptCount = 0
	s.LastError = ""
	s.Alert = ""
}

// RecordFailure marks a failed sync at t
func (s *SchedulerStatus) RecordFailure(t time.Time, err string) {
	s.LastAttempt = &t
	s.AttemptCount++
	s.LastError = err
}
