package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tvjuke/tvjuke/internal/queue"
	"github.com/tvjuke/tvjuke/internal/startup"
	"github.com/tvjuke/tvjuke/internal/state"
)

// QueueStatser exposes queue fill state to the API.
type QueueStatser interface {
	Stats() queue.Stats
}

// InitStater exposes the current initialization state.
type InitStater interface {
	State() startup.State
}

// StatsProvider assembles the shared counter block.
type StatsProvider func() state.Stats

// HistoryCounter exposes history sizes to the stats endpoints.
type HistoryCounter interface {
	PlaybackSize() int
	PersistedSize() int
}

// StatusHandler serves the initialization and statistics endpoints.
type StatusHandler struct {
	queue          QueueStatser
	init           InitStater
	stats          StatsProvider
	history        HistoryCounter
	updateInterval time.Duration
	now            func() time.Time
}

// NewStatusHandler creates the status endpoints handler. updateInterval is
// the index refresh cadence used for the next-update ETA.
func NewStatusHandler(q QueueStatser, init InitStater, stats StatsProvider, history HistoryCounter, updateInterval time.Duration) *StatusHandler {
	return &StatusHandler{
		queue:          q,
		init:           init,
		stats:          stats,
		history:        history,
		updateInterval: updateInterval,
		now:            time.Now,
	}
}

// InitStatusOutput wraps the current initialization state.
type InitStatusOutput struct {
	Body startup.State
}

// QueueStatusOutput is the queue-status response.
type QueueStatusOutput struct {
	Body struct {
		PreprocessedQueue struct {
			Current int `json:"current"`
			Target  int `json:"target"`
		} `json:"preprocessedQueue"`
		IsPreprocessing     bool          `json:"isPreprocessing"`
		TotalVideos         int           `json:"totalVideos"`
		InitializationState startup.State `json:"initializationState"`
	}
}

// DetailedStatsOutput is the detailed-stats response.
type DetailedStatsOutput struct {
	Body struct {
		state.Stats
		EvictedCount         int64         `json:"evictedCount"`
		PlaybackHistoryCount int           `json:"playbackHistoryCount"`
		PersistedHistorySize int           `json:"persistedHistorySize"`
		QueueTarget          int           `json:"queueTarget"`
		NextIndexUpdate      *time.Time    `json:"nextIndexUpdate,omitempty"`
		InitializationState  startup.State `json:"initializationState"`
	}
}

// Register registers the status routes with the API.
func (h *StatusHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getInitializationStatus",
		Method:      http.MethodGet,
		Path:        "/api/initialization-status",
		Summary:     "Get startup initialization state",
		Tags:        []string{"Status"},
	}, h.GetInitializationStatus)

	huma.Register(api, huma.Operation{
		OperationID: "getQueueStatus",
		Method:      http.MethodGet,
		Path:        "/api/queue-status",
		Summary:     "Get preprocessed queue fill state",
		Tags:        []string{"Status"},
	}, h.GetQueueStatus)

	huma.Register(api, huma.Operation{
		OperationID: "getDetailedStats",
		Method:      http.MethodGet,
		Path:        "/api/detailed-stats",
		Summary:     "Get extended playback and maintenance statistics",
		Tags:        []string{"Status"},
	}, h.GetDetailedStats)
}

// GetInitializationStatus returns the current startup stage.
func (h *StatusHandler) GetInitializationStatus(ctx context.Context, _ *struct{}) (*InitStatusOutput, error) {
	return &InitStatusOutput{Body: h.init.State()}, nil
}

// GetQueueStatus returns the queue fill level plus initialization state.
func (h *StatusHandler) GetQueueStatus(ctx context.Context, _ *struct{}) (*QueueStatusOutput, error) {
	qs := h.queue.Stats()
	stats := h.stats()

	out := &QueueStatusOutput{}
	out.Body.PreprocessedQueue.Current = qs.Current
	out.Body.PreprocessedQueue.Target = qs.Target
	out.Body.IsPreprocessing = qs.IsProcessing
	out.Body.TotalVideos = stats.TotalVideos
	out.Body.InitializationState = h.init.State()
	return out, nil
}

// GetDetailedStats returns the counter block with history sizes and the next
// index refresh ETA.
func (h *StatusHandler) GetDetailedStats(ctx context.Context, _ *struct{}) (*DetailedStatsOutput, error) {
	qs := h.queue.Stats()

	out := &DetailedStatsOutput{}
	out.Body.Stats = h.stats()
	out.Body.EvictedCount = qs.EvictedCount
	out.Body.PlaybackHistoryCount = h.history.PlaybackSize()
	out.Body.PersistedHistorySize = h.history.PersistedSize()
	out.Body.QueueTarget = qs.Target
	out.Body.InitializationState = h.init.State()

	if h.updateInterval > 0 && !out.Body.Stats.LastIndexUpdate.IsZero() {
		next := out.Body.Stats.LastIndexUpdate.Add(h.updateInterval)
		out.Body.NextIndexUpdate = &next
	}
	return out, nil
}
