package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tvjuke/tvjuke/internal/history"
	"github.com/tvjuke/tvjuke/internal/metrics"
	"github.com/tvjuke/tvjuke/internal/models"
	"github.com/tvjuke/tvjuke/internal/queue"
	"github.com/tvjuke/tvjuke/internal/state"
)

// nextVideoAttempts bounds how many queue pops one request will try.
const nextVideoAttempts = 5

// ArtifactQueue is the slice of the preprocessed queue the API needs.
type ArtifactQueue interface {
	GetNext() (*queue.Artifact, error)
	TriggerRefill()
}

// HistoryStore is the slice of the history manager the API needs.
type HistoryStore interface {
	Add(art *queue.Artifact)
	Previous() *history.Entry
}

// Reprocessor regenerates artifacts whose processed file was lost.
type Reprocessor interface {
	Ensure(ctx context.Context, art *queue.Artifact) (*queue.Artifact, error)
}

// VideoHandler serves the playback flow endpoints.
type VideoHandler struct {
	queue     ArtifactQueue
	history   HistoryStore
	reprocess Reprocessor
	counters  *state.SessionCounters
	logger    *slog.Logger

	fileExists func(string) bool
}

// NewVideoHandler creates the playback endpoints handler.
func NewVideoHandler(q ArtifactQueue, h HistoryStore, r Reprocessor, counters *state.SessionCounters, logger *slog.Logger) *VideoHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoHandler{
		queue:     q,
		history:   h,
		reprocess: r,
		counters:  counters,
		logger:    logger.With(slog.String("component", "api")),
		fileExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

// NextVideoOutput is the next-video response.
type NextVideoOutput struct {
	Body VideoResponse
}

// PreviousVideoOutput is the previous-video response. Body is null when no
// history remains.
type PreviousVideoOutput struct {
	Body *VideoResponse
}

// ArtifactInput carries a client-reported artifact.
type ArtifactInput struct {
	Body queue.Artifact
}

// VideoErrorInput reports a client-side playback failure.
type VideoErrorInput struct {
	Body struct {
		VideoID      string `json:"videoId,omitempty"`
		OriginalPath string `json:"originalPath,omitempty"`
		ErrorMessage string `json:"errorMessage"`
	}
}

// AckOutput is the generic acknowledgement response.
type AckOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

func ack() *AckOutput {
	out := &AckOutput{}
	out.Body.Success = true
	return out
}

// Register registers the playback routes with the API.
func (h *VideoHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getNextVideo",
		Method:      http.MethodGet,
		Path:        "/api/next-video",
		Summary:     "Pop the next preprocessed video",
		Tags:        []string{"Playback"},
	}, h.GetNextVideo)

	huma.Register(api, huma.Operation{
		OperationID: "getPreviousVideo",
		Method:      http.MethodGet,
		Path:        "/api/previous-video",
		Summary:     "Step back through playback history",
		Tags:        []string{"Playback"},
	}, h.GetPreviousVideo)

	huma.Register(api, huma.Operation{
		OperationID: "postVideoEnded",
		Method:      http.MethodPost,
		Path:        "/api/video-ended",
		Summary:     "Record a finished video in history",
		Tags:        []string{"Playback"},
	}, h.PostVideoEnded)

	huma.Register(api, huma.Operation{
		OperationID: "postAddToHistory",
		Method:      http.MethodPost,
		Path:        "/api/add-to-history",
		Summary:     "Add a video to playback history",
		Tags:        []string{"Playback"},
	}, h.PostVideoEnded)

	huma.Register(api, huma.Operation{
		OperationID: "postVideoError",
		Method:      http.MethodPost,
		Path:        "/api/video-error",
		Summary:     "Report a client playback error",
		Tags:        []string{"Playback"},
	}, h.PostVideoError)

	huma.Register(api, huma.Operation{
		OperationID: "postVideoSkippedManual",
		Method:      http.MethodPost,
		Path:        "/api/video-skipped-manual",
		Summary:     "Record a manual skip",
		Tags:        []string{"Playback"},
	}, h.PostVideoSkipped)

	huma.Register(api, huma.Operation{
		OperationID: "postVideoReturnedToPrevious",
		Method:      http.MethodPost,
		Path:        "/api/video-returned-to-previous",
		Summary:     "Record a return to the previous video",
		Tags:        []string{"Playback"},
	}, h.PostVideoReturned)

	huma.Register(api, huma.Operation{
		OperationID: "postEnsureVideoProcessed",
		Method:      http.MethodPost,
		Path:        "/api/ensure-video-processed",
		Summary:     "Ensure an artifact's processed file exists, reprocessing if needed",
		Tags:        []string{"Playback"},
	}, h.PostEnsureProcessed)
}

// GetNextVideo pops a live artifact from the queue, skipping entries whose
// file vanished. Exhaustion is a 404 and triggers a refill.
func (h *VideoHandler) GetNextVideo(ctx context.Context, _ *struct{}) (*NextVideoOutput, error) {
	for attempt := 0; attempt < nextVideoAttempts; attempt++ {
		art, err := h.queue.GetNext()
		if err != nil {
			if errors.Is(err, models.ErrQueueEmpty) {
				break
			}
			return nil, huma.Error500InternalServerError("getting next video", err)
		}
		if !h.fileExists(art.ProcessedPath) {
			h.logger.Warn("skipping artifact with missing file", slog.String("path", art.ProcessedPath))
			continue
		}

		h.counters.VideoPlayed()
		metrics.VideosServedTotal.Inc()
		return &NextVideoOutput{Body: *newVideoResponse(art)}, nil
	}

	h.queue.TriggerRefill()
	return nil, huma.Error404NotFound("no processed videos available")
}

// GetPreviousVideo pops the most recent history entry. A null body means
// there is no history.
func (h *VideoHandler) GetPreviousVideo(ctx context.Context, _ *struct{}) (*PreviousVideoOutput, error) {
	entry := h.history.Previous()
	if entry == nil {
		return &PreviousVideoOutput{Body: nil}, nil
	}
	return &PreviousVideoOutput{Body: newVideoResponse(&entry.Artifact)}, nil
}

// PostVideoEnded records the reported artifact in history.
func (h *VideoHandler) PostVideoEnded(ctx context.Context, input *ArtifactInput) (*AckOutput, error) {
	art := input.Body
	h.history.Add(&art)
	return ack(), nil
}

// PostVideoError counts and logs a client playback failure.
func (h *VideoHandler) PostVideoError(ctx context.Context, input *VideoErrorInput) (*AckOutput, error) {
	h.counters.PlaybackError()
	h.logger.Error("client reported playback error",
		slog.String("video_id", input.Body.VideoID),
		slog.String("path", input.Body.OriginalPath),
		slog.String("error", input.Body.ErrorMessage))
	return ack(), nil
}

// PostVideoSkipped increments the manual-skip counter.
func (h *VideoHandler) PostVideoSkipped(ctx context.Context, _ *struct{}) (*AckOutput, error) {
	h.counters.ManualSkip()
	return ack(), nil
}

// PostVideoReturned increments the return counter.
func (h *VideoHandler) PostVideoReturned(ctx context.Context, _ *struct{}) (*AckOutput, error) {
	h.counters.Return()
	return ack(), nil
}

// PostEnsureProcessed validates or regenerates the reported artifact.
func (h *VideoHandler) PostEnsureProcessed(ctx context.Context, input *ArtifactInput) (*PreviousVideoOutput, error) {
	art := input.Body
	ensured, err := h.reprocess.Ensure(ctx, &art)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, huma.Error404NotFound("source video no longer exists")
		}
		return nil, huma.Error500InternalServerError("reprocessing video", err)
	}
	return &PreviousVideoOutput{Body: newVideoResponse(ensured)}, nil
}
