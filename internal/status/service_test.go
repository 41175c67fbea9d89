package status

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-wallet-sync/internal/message"
	"github.com/stacklok/toolhive-wallet-sync/internal/versions"
)

type failingPersistence struct {
	StatusPersistence
}

func (failingPersistence) SaveStatus(context.Context, message.Target, *SchedulerStatus) error {
	return errors.New("disk full")
}

func TestService_Initialize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	eth := message.Target{Family: message.FamilyETH, Wallet: "main"}

	t.Run("in memory", func(t *testing.T) {
		t.Parallel()

		svc := NewService(nil)
		require.NoError(t, svc.Initialize(ctx, []Registration{
			{Target: testTarget, Interval: 30 * time.Second},
			{Target: eth, Interval: time.Minute},
		}))

		statuses, err := svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, statuses, 2)
		assert.Equal(t, PhaseStopped, statuses[testTarget].Phase)
		assert.Equal(t, "Not started", statuses[testTarget].Message)
		assert.Equal(t, "30s", statuses[testTarget].SyncInterval)
		assert.Equal(t, "1m0s", statuses[eth].SyncInterval)
	})

	t.Run("interrupted run resets to stopped", func(t *testing.T) {
		t.Parallel()

		persistence := NewFileStatusPersistence(t.TempDir())
		lastSync := time.Now().Add(-time.Hour)
		require.NoError(t, persistence.SaveStatus(ctx, testTarget, &SchedulerStatus{
			Phase:        PhaseRunning,
			WorkerID:     "old-worker",
			LastSyncTime: &lastSync,
		}))

		svc := NewService(persistence)
		require.NoError(t, svc.Initialize(ctx, []Registration{{Target: testTarget, Interval: time.Minute}}))

		st, err := svc.Get(ctx, testTarget)
		require.NoError(t, err)
		assert.Equal(t, PhaseStopped, st.Phase)
		assert.Equal(t, "Previous run was interrupted", st.Message)
		assert.Empty(t, st.WorkerID)
		require.NotNil(t, st.LastSyncTime)
		assert.True(t, lastSync.Equal(*st.LastSyncTime))

		saved, err := persistence.LoadStatus(ctx, testTarget)
		require.NoError(t, err)
		assert.Equal(t, PhaseStopped, saved.Phase)
		assert.Equal(t, versions.Version, saved.WrittenBy)
	})

	t.Run("status of a newer version is ignored", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		statusDir := filepath.Join(dir, "btc", "main")
		require.NoError(t, os.MkdirAll(statusDir, 0750))
		require.NoError(t, os.WriteFile(filepath.Join(statusDir, StatusFileName),
			[]byte(`{"phase":"Stopped","lastError":"from the future","writtenBy":"2.0.0"}`), 0600))

		svc := NewService(NewFileStatusPersistence(dir)).(*memoryService)
		svc.version = "1.4.0"
		require.NoError(t, svc.Initialize(ctx, []Registration{{Target: testTarget, Interval: time.Minute}}))

		st, err := svc.Get(ctx, testTarget)
		require.NoError(t, err)
		assert.Equal(t, "Not started", st.Message)
		assert.Empty(t, st.LastError)
	})
}

func TestService_Get(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := NewService(nil)
	require.NoError(t, svc.Initialize(ctx, []Registration{{Target: testTarget, Interval: time.Minute}}))

	_, err := svc.Get(ctx, message.Target{Family: message.FamilySOL, Wallet: "x"})
	require.ErrorIs(t, err, ErrUnknownTarget)

	st, err := svc.Get(ctx, testTarget)
	require.NoError(t, err)
	st.Phase = PhaseRunning

	again, err := svc.Get(ctx, testTarget)
	require.NoError(t, err)
	assert.Equal(t, PhaseStopped, again.Phase, "Get must return a copy")
}

func TestService_UpdateAtomically(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("applies changes", func(t *testing.T) {
		t.Parallel()

		svc := NewService(nil)
		require.NoError(t, svc.Initialize(ctx, []Registration{{Target: testTarget, Interval: time.Minute}}))

		updated, err := svc.UpdateAtomically(ctx, testTarget, func(st *SchedulerStatus) bool {
			st.Phase = PhaseRunning
			return true
		})
		require.NoError(t, err)
		assert.True(t, updated)

		updated, err = svc.UpdateAtomically(ctx, testTarget, func(st *SchedulerStatus) bool {
			st.Phase = PhaseStopped
			return false
		})
		require.NoError(t, err)
		assert.False(t, updated)

		st, err := svc.Get(ctx, testTarget)
		require.NoError(t, err)
		assert.Equal(t, PhaseRunning, st.Phase)
	})

	t.Run("unknown target", func(t *testing.T) {
		t.Parallel()

		svc := NewService(nil)
		_, err := svc.UpdateAtomically(ctx, testTarget, func(*SchedulerStatus) bool { return true })
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})

	t.Run("save failure keeps previous status", func(t *testing.T) {
		t.Parallel()

		svc := NewService(nil)
		require.NoError(t, svc.Initialize(ctx, []Registration{{Target: testTarget, Interval: time.Minute}}))
		svc.(*memoryService).persistence = failingPersistence{}

		_, err := svc.UpdateAtomically(ctx, testTarget, func(st *SchedulerStatus) bool {
			st.Phase = PhaseRunning
			return true
		})
		require.Error(t, err)

		st, err := svc.Get(ctx, testTarget)
		require.NoError(t, err)
		assert.Equal(t, PhaseStopped, st.Phase)
	})

	t.Run("concurrent failures are counted", func(t *testing.T) {
		t.Parallel()

		svc := NewService(nil)
		require.NoError(t, svc.Initialize(ctx, []Registration{{Target: testTarget, Interval: time.Minute}}))

		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = svc.UpdateAtomically(ctx, testTarget, func(st *SchedulerStatus) bool {
					st.RecordFailure(time.Now(), "transient")
					return true
				})
			}()
		}
		wg.Wait()

		st, err := svc.Get(ctx, testTarget)
		require.NoError(t, err)
		assert.Equal(t, 50, st.AttemptCount)
		assert.Equal(t, "transient", st.LastError)
	})
}

func TestSchedulerStatus_Record(t *testing.T) {
	t.Parallel()

	st := &SchedulerStatus{}
	now := time.Now()

	st.RecordFailure(now, "first")
	st.RecordFailure(now, "second")
	st.Alert = "second"
	assert.Equal(t, 2, st.AttemptCount)
	assert.Equal(t, "second", st.LastError)
	assert.Nil(t, st.LastSyncTime)

	st.RecordSuccess(now)
	assert.Equal(t, 0, st.AttemptCount)
	assert.Empty(t, st.LastError)
	assert.Empty(t, st.Alert)
	require.NotNil(t, st.LastSyncTime)
	assert.True(t, now.Equal(*st.LastSyncTime))
}
