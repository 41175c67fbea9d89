package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stacklok/toolhive-wallet-sync/internal/message"
	"github.com/stacklok/toolhive-wallet-sync/internal/versions"
)

// ErrUnknownTarget is returned for wallets that were never registered
var ErrUnknownTarget = errors.New("unknown wallet")

// Registration describes a tracked wallet known at startup
type Registration struct {
	Target   message.Target
	Interval time.Duration
}

// Service provides methods for inspecting and updating scheduler status
type Service interface {
	// Initialize populates the service with the tracked wallets. Statuses
	// left behind by a previous process are loaded but always start Stopped.
	Initialize(ctx context.Context, registrations []Registration) error
	// List returns a copy of every status
	List(ctx context.Context) (map[message.Target]*SchedulerStatus, error)
	// Get returns a copy of the status of target
	Get(ctx context.Context, target message.Target) (*SchedulerStatus, error)
	// UpdateAtomically applies testAndUpdateFn to the status of target under
	// the service lock and stores the result when the function reports a change.
	UpdateAtomically(
		ctx context.Context,
		target message.Target,
		testAndUpdateFn func(status *SchedulerStatus) bool,
	) (bool, error)
}

type memoryService struct {
	// persistence is optional
	persistence StatusPersistence
	version     string

	mu       sync.RWMutex
	statuses map[message.Target]*SchedulerStatus
}

// NewService creates an in-memory status service. When persistence is not
// nil every change is also saved through it.
func NewService(persistence StatusPersistence) Service {
	return &memoryService{
		persistence: persistence,
		version:     versions.Version,
		statuses:    make(map[message.Target]*SchedulerStatus),
	}
}

func (s *memoryService) Initialize(ctx context.Context, registrations []Registration) error {
	statuses := make(map[message.Target]*SchedulerStatus, len(registrations))
	for _, reg := range registrations {
		statuses[reg.Target] = s.loadOrInitialize(ctx, reg)
	}

	s.mu.Lock()
	s.statuses = statuses
	s.mu.Unlock()
	return nil
}

func (s *memoryService) List(_ context.Context) (map[message.Target]*SchedulerStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return copies to prevent external modification
	result := make(map[message.Target]*SchedulerStatus, len(s.statuses))
	for target, st := range s.statuses {
		statusCopy := *st
		result[target] = &statusCopy
	}
	return result, nil
}

func (s *memoryService) Get(_ context.Context, target message.Target) (*SchedulerStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.statuses[target]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
	statusCopy := *st
	return &statusCopy, nil
}

func (s *memoryService) UpdateAtomically(
	ctx context.Context,
	target message.Target,
	testAndUpdateFn func(status *SchedulerStatus) bool,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.statuses[target]
	if !exists {
		return false, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}

	// Work on a copy so a failed save leaves the cached status untouched
	updated := *current
	if !testAndUpdateFn(&updated) {
		return false, nil
	}
	if s.persistence != nil {
		if err := s.persistence.SaveStatus(ctx, target, &updated); err != nil {
			return false, err
		}
	}
	s.statuses[target] = &updated
	return true, nil
}

func (s *memoryService) loadOrInitialize(ctx context.Context, reg Registration) *SchedulerStatus {
	st := &SchedulerStatus{}
	if s.persistence != nil {
		loaded, err := s.persistence.LoadStatus(ctx, reg.Target)
		if err != nil {
			slog.Warn("Failed to load scheduler status, initializing with defaults",
				"wallet", reg.Target.String(), "error", err)
		} else if versions.IsNewerVersion(loaded.WrittenBy, s.version) {
			slog.Warn("Scheduler status was written by a newer version, initializing with defaults",
				"wallet", reg.Target.String(), "written_by", loaded.WrittenBy, "version", s.version)
		} else {
			st = loaded
		}
	}

	switch st.Phase {
	case "":
		st.Phase = PhaseStopped
		st.Message = "Not started"
	case PhaseStopped:
	default:
		// A previous process exited while the wallet was scheduled
		slog.Warn("Previous scheduler run was interrupted, resetting to Stopped",
			"wallet", reg.Target.String(), "phase", st.Phase)
		st.Phase = PhaseStopped
		st.Message = "Previous run was interrupted"
	}
	st.WorkerID = ""
	st.SyncInterval = reg.Interval.String()

	if s.persistence != nil {
		if err := s.persistence.SaveStatus(ctx, reg.Target, st); err != nil {
			slog.Warn("Failed to persist scheduler status", "wallet", reg.Target.String(), "error", err)
		}
	}
	return st
}
