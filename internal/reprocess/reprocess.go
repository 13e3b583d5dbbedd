// Package reprocess regenerates processed artifacts whose temp files were
// garbage-collected or lost while the client still references them.
package reprocess

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/singleflight"

	"github.com/tvjuke/tvjuke/internal/models"
	"github.com/tvjuke/tvjuke/internal/queue"
)

// Handler reprocesses artifacts on demand. Concurrent requests for the same
// source file are coalesced into one transcode.
type Handler struct {
	processor queue.Processor
	logger    *slog.Logger
	group     singleflight.Group
}

// New creates a reprocess handler.
func New(processor queue.Processor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		processor: processor,
		logger:    logger.With(slog.String("component", "reprocess")),
	}
}

// Ensure returns an artifact whose processed file exists. An intact artifact
// comes back unchanged; otherwise the source is re-transcoded and the fresh
// output merged onto the prior entry. A missing source is ErrNotFound.
func (h *Handler) Ensure(ctx context.Context, art *queue.Artifact) (*queue.Artifact, error) {
	if _, err := os.Stat(art.OriginalPath); err != nil {
		return nil, fmt.Errorf("source %s: %w", art.OriginalPath, models.ErrNotFound)
	}

	if _, err := os.Stat(art.ProcessedPath); err == nil {
		return art, nil
	}

	v, err, shared := h.group.Do(art.OriginalPath, func() (any, error) {
		h.logger.Info("reprocessing lost artifact",
			slog.String("path", art.OriginalPath),
			slog.String("missing", art.ProcessedPath))
		fresh, err := h.processor.Process(ctx, art.VideoEntry)
		if err != nil {
			return nil, fmt.Errorf("reprocessing %s: %w", art.OriginalPath, err)
		}
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		h.logger.Debug("reprocess request coalesced", slog.String("path", art.OriginalPath))
	}

	fresh := v.(*queue.Artifact)
	merged := *art
	merged.ProcessedPath = fresh.ProcessedPath
	merged.VideoID = fresh.VideoID
	merged.ProcessedAt = fresh.ProcessedAt
	merged.OutputAudioChannels = fresh.OutputAudioChannels
	merged.OutputChannelLayout = fresh.OutputChannelLayout
	merged.AudioProcessing = fresh.AudioProcessing
	merged.Reprocessed = true
	if merged.Crossfade == nil {
		merged.Crossfade = queue.ComputeCrossfade(merged.Metadata.DurationSeconds())
	}
	return &merged, nil
}
