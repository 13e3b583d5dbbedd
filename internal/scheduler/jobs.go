package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// indexDeltaThreshold is how many added or removed videos invalidate the
// preprocessed queue and the saved snapshot.
const indexDeltaThreshold = 5

// Refresher rescans the video index and reports the path-set delta.
type Refresher interface {
	Refresh(ctx context.Context) (delta int, err error)
}

// MaintenanceDeps are the components the periodic jobs operate on.
type MaintenanceDeps struct {
	Index        Refresher
	ClearQueue   func()
	DiscardState func()
	CleanTemp    func() error
	SaveState    func() error
}

// MaintenanceJobs builds the three periodic jobs from their intervals.
func MaintenanceJobs(deps MaintenanceDeps, indexInterval, cleanupInterval, saveInterval time.Duration, logger *slog.Logger) []Job {
	if logger == nil {
		logger = slog.Default()
	}
	return []Job{
		{
			Name:     "index-refresh",
			Interval: indexInterval,
			Run: func() error {
				delta, err := deps.Index.Refresh(context.Background())
				if err != nil {
					return err
				}
				if delta > indexDeltaThreshold {
					logger.Info("index changed significantly, resetting queue",
						slog.Int("delta", delta))
					deps.ClearQueue()
					deps.DiscardState()
				}
				return nil
			},
		},
		{
			Name:     "temp-cleanup",
			Interval: cleanupInterval,
			Run:      deps.CleanTemp,
		},
		{
			Name:     "state-save",
			Interval: saveInterval,
			Run:      deps.SaveState,
		},
	}
}
