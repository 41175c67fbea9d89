package worker

import (
	"errors"
	"fmt"

	"github.com/stacklok/toolhive-wallet-sync/internal/identity"
	"github.com/stacklok/toolhive-wallet-sync/internal/job"
	"github.com/stacklok/toolhive-wallet-sync/internal/ledger"
	"github.com/stacklok/toolhive-wallet-sync/internal/message"
)

// SyncError is a failed wallet sync, classified for the bridge
type SyncError struct {
	Kind message.ErrorKind
	// Resource is the read that failed, empty when the failure is not tied
	// to a single read (identity resolution, panics)
	Resource message.Resource
	// Certified is set when the failed read was trust-bearing
	Certified bool
	Err       error
}

func (e *SyncError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s read failed: %v", e.Resource, e.Err)
	}
	return e.Err.Error()
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the worker must stop polling
func (e *SyncError) Fatal() bool {
	return e.Kind == message.ErrorKindCredential
}

// Payload converts the error into its message form
func (e *SyncError) Payload() *message.ErrorPayload {
	return &message.ErrorPayload{
		Kind:      e.Kind,
		Message:   e.Error(),
		Resource:  e.Resource,
		Certified: e.Certified,
		Fatal:     e.Fatal(),
	}
}

// readError wraps the failure of a single ledger read
func readError(err error, resource message.Resource, certified bool) *SyncError {
	return &SyncError{
		Kind:      classify(err),
		Resource:  resource,
		Certified: certified,
		Err:       err,
	}
}

// asSyncError returns err as a SyncError, classifying plain errors
func asSyncError(err error) *SyncError {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr
	}
	return &SyncError{Kind: classify(err), Err: err}
}

func classify(err error) message.ErrorKind {
	var panicErr *job.PanicError
	switch {
	case identity.IsCredentialError(err):
		return message.ErrorKindCredential
	case errors.Is(err, ledger.ErrNoData):
		return message.ErrorKindNoData
	case errors.As(err, &panicErr):
		return message.ErrorKindInternal
	default:
		return message.ErrorKindTransient
	}
}
