package queue

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tvjuke/tvjuke/internal/index"
	"github.com/tvjuke/tvjuke/internal/metrics"
	"github.com/tvjuke/tvjuke/internal/models"
)

// getNextRetries bounds how many dead entries one GetNext call will evict.
const getNextRetries = 10

// criticalThreshold is the queue depth below which the critical monitor
// forces a refill.
const criticalThreshold = 5

// VideoSource selects candidate videos, excluding already-queued paths.
type VideoSource interface {
	Random(excludePaths []string) *index.VideoEntry
}

// ProgressFunc reports fill progress as processed count against the target.
type ProgressFunc func(processed, target int)

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Current        int   `json:"current"`
	Target         int   `json:"target"`
	IsProcessing   bool  `json:"isProcessing"`
	ProcessedCount int64 `json:"processedCount"`
	ErrorCount     int64 `json:"errorCount"`
	EvictedCount   int64 `json:"evictedCount"`
}

// Queue is the bounded, randomly ordered cache of processed artifacts.
// Refills run on a single background worker; callers trigger them without
// blocking.
type Queue struct {
	mu           sync.Mutex
	items        []*Artifact
	target       int
	isProcessing bool

	processed int64
	errors    int64
	evicted   int64

	source    VideoSource
	processor Processor
	logger    *slog.Logger

	fillCh chan struct{}

	randIntN   func(int) int
	fileExists func(string) bool
}

// New creates a queue that fills to target using the given source and
// processor.
func New(target int, source VideoSource, processor Processor, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		target:     target,
		source:     source,
		processor:  processor,
		logger:     logger.With(slog.String("component", "queue")),
		fillCh:     make(chan struct{}, 1),
		randIntN:   rand.Intn,
		fileExists: fileExists,
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Size returns the current queue depth.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Target returns the configured fill target.
func (q *Queue) Target() int {
	return q.target
}

// GetNext pops a random artifact whose file still exists. Dead entries are
// evicted, up to a bounded number of retries. A refill is scheduled whenever
// the queue drops below target or no live artifact was found.
func (q *Queue) GetNext() (*Artifact, error) {
	q.mu.Lock()

	var picked *Artifact
	for attempt := 0; attempt < getNextRetries && len(q.items) > 0; attempt++ {
		i := q.randIntN(len(q.items))
		candidate := q.items[i]
		q.items = append(q.items[:i], q.items[i+1:]...)

		if q.fileExists(candidate.ProcessedPath) {
			picked = candidate
			break
		}
		q.evicted++
		metrics.QueueEvictionsTotal.Inc()
		q.logger.Warn("evicting queue entry with missing artifact",
			slog.String("original_path", candidate.OriginalPath),
			slog.String("processed_path", candidate.ProcessedPath))
	}

	below := len(q.items) < q.target
	metrics.QueueDepth.Set(float64(len(q.items)))
	q.mu.Unlock()

	if picked == nil {
		q.TriggerRefill()
		return nil, models.ErrQueueEmpty
	}
	if below {
		q.TriggerRefill()
	}
	return picked, nil
}

// Push appends an artifact. Used by Fill and by state restoration.
func (q *Queue) Push(art *Artifact) {
	q.mu.Lock()
	q.items = append(q.items, art)
	metrics.QueueDepth.Set(float64(len(q.items)))
	q.mu.Unlock()
}

// Snapshot returns a copy of the queued artifacts in order.
func (q *Queue) Snapshot() []*Artifact {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Artifact, len(q.items))
	copy(out, q.items)
	return out
}

// queuedPaths returns the original paths currently queued.
func (q *Queue) queuedPaths() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	paths := make([]string, 0, len(q.items))
	for _, it := range q.items {
		paths = append(paths, it.OriginalPath)
	}
	return paths
}

// Fill processes videos until the queue reaches target. Only one fill runs
// at a time; a second caller gets ErrFillInProgress. Per-video failures are
// counted and skipped, never fatal.
func (q *Queue) Fill(ctx context.Context, target int, onProgress ProgressFunc) error {
	q.mu.Lock()
	if q.isProcessing {
		q.mu.Unlock()
		return models.ErrFillInProgress
	}
	q.isProcessing = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.isProcessing = false
		q.mu.Unlock()
	}()

	if target <= 0 {
		target = q.target
	}
	metrics.QueueFillsTotal.Inc()
	opID := ulid.Make().String()
	log := q.logger.With(slog.String("fill_op", opID))
	log.Info("queue fill started", slog.Int("current", q.Size()), slog.Int("target", target))

	// Paths that failed during this fill are excluded so one bad file
	// cannot stall the loop.
	failed := make([]string, 0)

	for q.Size() < target {
		if err := ctx.Err(); err != nil {
			return err
		}

		exclude := append(q.queuedPaths(), failed...)
		entry := q.source.Random(exclude)
		if entry == nil {
			log.Warn("no more candidate videos", slog.Int("size", q.Size()))
			break
		}

		if !q.fileExists(entry.OriginalPath) {
			log.Warn("skipping missing source file", slog.String("path", entry.OriginalPath))
			failed = append(failed, entry.OriginalPath)
			continue
		}

		art, err := q.processor.Process(ctx, *entry)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.mu.Lock()
			q.errors++
			q.mu.Unlock()
			log.Error("processing failed",
				slog.String("path", entry.OriginalPath),
				slog.String("error", err.Error()))
			failed = append(failed, entry.OriginalPath)
			continue
		}

		q.Push(art)
		q.mu.Lock()
		q.processed++
		q.mu.Unlock()
		if onProgress != nil {
			onProgress(q.Size(), target)
		}
		log.Debug("artifact queued",
			slog.String("path", entry.OriginalPath),
			slog.String("video_id", art.VideoID),
			slog.Int("size", q.Size()))
	}

	log.Info("queue fill finished", slog.Int("size", q.Size()))
	return nil
}

// Clear deletes every artifact file and empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	items := q.items
	q.items = nil
	metrics.QueueDepth.Set(0)
	q.mu.Unlock()

	for _, it := range items {
		if err := os.Remove(it.ProcessedPath); err != nil && !os.IsNotExist(err) {
			q.logger.Warn("removing artifact file",
				slog.String("path", it.ProcessedPath),
				slog.String("error", err.Error()))
		}
	}
}

// Validate drops entries whose artifact file disappeared and schedules a
// refill when the queue is below target.
func (q *Queue) Validate() {
	q.mu.Lock()
	kept := q.items[:0]
	for _, it := range q.items {
		if q.fileExists(it.ProcessedPath) {
			kept = append(kept, it)
			continue
		}
		q.evicted++
		metrics.QueueEvictionsTotal.Inc()
		q.logger.Warn("dropping invalid queue entry",
			slog.String("original_path", it.OriginalPath),
			slog.String("processed_path", it.ProcessedPath))
	}
	q.items = kept
	below := len(q.items) < q.target
	metrics.QueueDepth.Set(float64(len(q.items)))
	q.mu.Unlock()

	if below {
		q.TriggerRefill()
	}
}

// TriggerRefill asks the background worker for a fill without blocking.
func (q *Queue) TriggerRefill() {
	select {
	case q.fillCh <- struct{}{}:
	default:
	}
}

// Start runs the fill worker until the context is cancelled.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.fillCh:
				if err := q.Fill(ctx, q.target, nil); err != nil && err != models.ErrFillInProgress && ctx.Err() == nil {
					q.logger.Error("background fill failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// StartMonitoring runs the periodic validate/refill tickers until the
// context is cancelled.
func (q *Queue) StartMonitoring(ctx context.Context, monitorInterval, criticalInterval time.Duration) {
	go func() {
		monitor := time.NewTicker(monitorInterval)
		critical := time.NewTicker(criticalInterval)
		defer monitor.Stop()
		defer critical.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-monitor.C:
				q.Validate()
				if q.Size() < q.target {
					q.TriggerRefill()
				}
			case <-critical.C:
				if q.Size() < criticalThreshold {
					q.logger.Warn("queue critically low", slog.Int("size", q.Size()))
					q.TriggerRefill()
				}
			}
		}
	}()
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Current:        len(q.items),
		Target:         q.target,
		IsProcessing:   q.isProcessing,
		ProcessedCount: q.processed,
		ErrorCount:     q.errors,
		EvictedCount:   q.evicted,
	}
}
