package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsJobs(t *testing.T) {
	s := New(nil)
	var runs atomic.Int64
	require.NoError(t, s.Add(Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func() error {
			runs.Add(1)
			return nil
		},
	}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_SkipsDisabledJobs(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add(Job{Name: "off", Interval: 0, Run: func() error { return nil }}))
	assert.Empty(t, s.cron.Entries())
}

func TestScheduler_IsolatesPanics(t *testing.T) {
	s := New(nil)
	var after atomic.Bool
	require.NoError(t, s.Add(Job{
		Name:     "panicky",
		Interval: 10 * time.Millisecond,
		Run:      func() error { panic("boom") },
	}))
	require.NoError(t, s.Add(Job{
		Name:     "healthy",
		Interval: 10 * time.Millisecond,
		Run: func() error {
			after.Store(true)
			return nil
		},
	}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, after.Load, 2*time.Second, 5*time.Millisecond)
}

// fakeRefresher returns a scripted delta.
type fakeRefresher struct {
	delta int
	err   error
}

func (f *fakeRefresher) Refresh(context.Context) (int, error) { return f.delta, f.err }

func TestMaintenanceJobs_IndexRefreshDelta(t *testing.T) {
	var cleared, discarded bool
	deps := MaintenanceDeps{
		Index:        &fakeRefresher{delta: 6},
		ClearQueue:   func() { cleared = true },
		DiscardState: func() { discarded = true },
		CleanTemp:    func() error { return nil },
		SaveState:    func() error { return nil },
	}

	jobs := MaintenanceJobs(deps, time.Minute, time.Minute, time.Minute, nil)
	require.Len(t, jobs, 3)

	require.NoError(t, jobs[0].Run())
	assert.True(t, cleared)
	assert.True(t, discarded)
}

func TestMaintenanceJobs_SmallDeltaKeepsQueue(t *testing.T) {
	var cleared bool
	deps := MaintenanceDeps{
		Index:        &fakeRefresher{delta: 5},
		ClearQueue:   func() { cleared = true },
		DiscardState: func() {},
	}

	jobs := MaintenanceJobs(deps, time.Minute, 0, 0, nil)
	require.NoError(t, jobs[0].Run())
	assert.False(t, cleared)
}

func TestMaintenanceJobs_RefreshErrorPropagates(t *testing.T) {
	deps := MaintenanceDeps{Index: &fakeRefresher{err: errors.New("scan failed")}}
	jobs := MaintenanceJobs(deps, time.Minute, 0, 0, nil)
	assert.Error(t, jobs[0].Run())
}
