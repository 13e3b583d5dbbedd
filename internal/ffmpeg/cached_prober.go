package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tvjuke/tvjuke/internal/metrics"
	"github.com/tvjuke/tvjuke/internal/models"
	"github.com/tvjuke/tvjuke/internal/repository"
)

// MetadataProber resolves a video file to its stream metadata.
type MetadataProber interface {
	ProbeMetadata(ctx context.Context, path string) (*Metadata, error)
}

// CachedProber consults the probe cache before running ffprobe. Records are
// invalidated when the file size or mtime no longer match. Cache failures
// degrade to a direct probe.
type CachedProber struct {
	prober MetadataProber
	repo   repository.ProbeRecordRepository
	logger *slog.Logger
}

// NewCachedProber wraps a prober with the given cache repository. A nil repo
// disables caching.
func NewCachedProber(prober MetadataProber, repo repository.ProbeRecordRepository, logger *slog.Logger) *CachedProber {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProber{prober: prober, repo: repo, logger: logger}
}

// ProbeMetadata returns cached metadata when the file is unchanged,
// otherwise probes and refreshes the cache.
func (c *CachedProber) ProbeMetadata(ctx context.Context, path string) (*Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if c.repo != nil {
		rec, err := c.repo.GetByPath(ctx, path)
		if err != nil {
			c.logger.Warn("probe cache lookup failed", slog.String("path", path), slog.String("error", err.Error()))
		} else if rec != nil && rec.Matches(info.Size(), info.ModTime()) {
			metrics.ProbeCacheHitsTotal.Inc()
			return recordToMetadata(rec), nil
		}
	}

	metrics.ProbeCacheMissesTotal.Inc()
	md, err := c.prober.ProbeMetadata(ctx, path)
	if err != nil {
		return nil, err
	}

	if c.repo != nil {
		if err := c.repo.Upsert(ctx, metadataToRecord(path, info, md)); err != nil {
			c.logger.Warn("probe cache write failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	return md, nil
}

func recordToMetadata(rec *models.ProbeRecord) *Metadata {
	md := &Metadata{
		Width:            rec.Width,
		Height:           rec.Height,
		FPS:              rec.FPS,
		VideoCodec:       rec.VideoCodec,
		HasAudio:         rec.HasAudio,
		AudioChannels:    rec.AudioChannels,
		ChannelLayout:    rec.ChannelLayout,
		AudioCodec:       rec.AudioCodec,
		SampleRate:       rec.SampleRate,
		AudioBitrate:     rec.AudioBitrate,
		FileSize:         rec.Size,
		ContainerBitrate: rec.ContainerBitrate,
	}
	if rec.Duration > 0 {
		d := rec.Duration
		md.Duration = &d
	}
	return md
}

func metadataToRecord(path string, info os.FileInfo, md *Metadata) *models.ProbeRecord {
	return &models.ProbeRecord{
		Path:             path,
		Size:             info.Size(),
		ModTime:          info.ModTime(),
		Duration:         md.DurationSeconds(),
		Width:            md.Width,
		Height:           md.Height,
		FPS:              md.FPS,
		VideoCodec:       md.VideoCodec,
		HasAudio:         md.HasAudio,
		AudioChannels:    md.AudioChannels,
		ChannelLayout:    md.ChannelLayout,
		AudioCodec:       md.AudioCodec,
		SampleRate:       md.SampleRate,
		AudioBitrate:     md.AudioBitrate,
		ContainerBitrate: md.ContainerBitrate,
	}
}
