// Package transcode turns source videos into playback-ready MP4 artifacts.
// Video streams are copied; audio is re-encoded through a channel-aware
// filter chain with loudness normalization and optional 5.1 upmixing.
package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tvjuke/tvjuke/internal/config"
	"github.com/tvjuke/tvjuke/internal/ffmpeg"
	"github.com/tvjuke/tvjuke/internal/index"
	"github.com/tvjuke/tvjuke/internal/metrics"
	"github.com/tvjuke/tvjuke/internal/models"
	"github.com/tvjuke/tvjuke/internal/queue"
	"github.com/tvjuke/tvjuke/pkg/format"
)

// minOutputSize is the smallest plausible transcode product. Anything under
// it is a truncated write.
const minOutputSize = 1024

// Transcoder processes one video at a time. Callers serialize jobs; the
// struct itself holds no queue.
type Transcoder struct {
	audio       config.AudioConfig
	limits      resourceLimits
	timeout     time.Duration
	ffmpegPath  string
	tempDir     string
	prober      ffmpeg.MetadataProber
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
	newVideoID  func() string
}

// New creates a transcoder writing artifacts into tempDir.
func New(cfg *config.Config, ffmpegPath string, prober ffmpeg.MetadataProber, logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcoder{
		audio:      cfg.Audio,
		limits:     resolveLimits(cfg.Performance),
		timeout:    cfg.Timeouts.Transcode,
		ffmpegPath: ffmpegPath,
		tempDir:    cfg.Storage.TempPath(),
		prober:     prober,
		logger:     logger.With(slog.String("component", "transcode")),
		sleep:      sleepCtx,
		newVideoID: uuid.NewString,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Process probes and transcodes one source video, returning the finished
// artifact. On any failure no output file is left behind.
func (t *Transcoder) Process(ctx context.Context, entry index.VideoEntry) (*queue.Artifact, error) {
	metrics.TranscodeJobsTotal.Inc()
	started := time.Now()

	if err := t.sleep(ctx, t.limits.ProcessingDelay); err != nil {
		return nil, err
	}

	if _, err := os.Stat(entry.OriginalPath); err != nil {
		return nil, fmt.Errorf("source %s: %w", entry.OriginalPath, models.ErrSourceMissing)
	}

	md, err := t.prober.ProbeMetadata(ctx, entry.OriginalPath)
	if err != nil {
		metrics.TranscodeFailuresTotal.Inc()
		return nil, fmt.Errorf("probing %s: %w", entry.OriginalPath, err)
	}

	fallback := wantsStereoFallback(t.audio)
	art, err := t.transcodeOnce(ctx, entry, md, fallback)
	if shouldRetryStereo(t.audio, fallback, err) {
		metrics.TranscodeStereoFallbacksTotal.Inc()
		t.logger.Warn("audio chain failed, retrying in stereo compatibility mode",
			slog.String("path", entry.OriginalPath),
			slog.String("error", err.Error()))
		art, err = t.transcodeOnce(ctx, entry, md, true)
	}
	if err != nil {
		metrics.TranscodeFailuresTotal.Inc()
		if isAudioError(err) {
			return nil, fmt.Errorf("%w: %v", models.ErrIncompatibleAudio, err)
		}
		return nil, err
	}

	metrics.TranscodeDuration.Observe(time.Since(started).Seconds())
	return art, nil
}

func (t *Transcoder) transcodeOnce(ctx context.Context, entry index.VideoEntry, md *ffmpeg.Metadata, stereoFallback bool) (*queue.Artifact, error) {
	var plan audioPlan
	if stereoFallback && md.HasAudio {
		plan = stereoFallbackPlan(t.audio)
	} else {
		plan = planAudioFilter(md, t.audio)
		if plan.Processing != ProcessingNone {
			t.selectAudioCodec(&plan, t.audio)
		}
	}
	t.logger.Debug("audio chain planned",
		slog.String("path", entry.OriginalPath),
		slog.Int("input_channels", md.AudioChannels),
		slog.String("filter", plan.Filter),
		slog.String("codec", plan.Codec),
		slog.String("processing", plan.Processing))

	videoID := t.newVideoID()
	output := filepath.Join(t.tempDir, "processed_"+videoID+".mp4")

	b := ffmpeg.NewCommandBuilder(t.ffmpegPath).
		HideBanner().
		Overwrite().
		ThreadQueueSize(t.limits.ThreadQueueSize).
		Input(entry.OriginalPath).
		VideoCodec("copy")

	if plan.Processing == ProcessingNone {
		b.AudioCodec("copy")
	} else {
		b.AudioCodec(plan.Codec).
			AudioBitrate(plan.Bitrate).
			AudioChannels(plan.OutputChannels).
			AudioFilter(plan.Filter)
	}

	b.Threads(t.limits.MaxThreads).Preset("medium")
	if t.limits.MaxThreads == 1 {
		b.OutputArgs("-cpu-used", "1")
	}
	cmd := b.MP4FaststartArgs().Output(output).Build()

	runCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if err := cmd.Run(runCtx); err != nil {
		removeQuiet(output)
		return nil, fmt.Errorf("transcoding %s: %w", entry.OriginalPath, err)
	}
	if stats := cmd.PeakStats(); stats != nil {
		t.logger.Debug("transcode finished",
			slog.String("path", entry.OriginalPath),
			slog.Duration("elapsed", cmd.Duration()),
			slog.Float64("peak_cpu_percent", stats.CPUPercent),
			slog.Uint64("peak_rss_bytes", stats.MemoryRSSBytes))
	}

	info, err := os.Stat(output)
	if err != nil {
		removeQuiet(output)
		return nil, fmt.Errorf("validating output for %s: %w", entry.OriginalPath, models.ErrArtifactMissing)
	}
	if info.Size() <= minOutputSize {
		removeQuiet(output)
		return nil, fmt.Errorf("output for %s is %d bytes: %w", entry.OriginalPath, info.Size(), models.ErrArtifactTooSmall)
	}

	t.logger.Info("artifact ready",
		slog.String("path", entry.OriginalPath),
		slog.String("size", format.Bytes(info.Size())),
		slog.String("runtime", format.Runtime(md.DurationSeconds())),
		slog.String("audio_processing", plan.Processing))

	return &queue.Artifact{
		VideoEntry:          entry,
		Metadata:            *md,
		VideoID:             videoID,
		ProcessedPath:       output,
		ProcessedAt:         time.Now(),
		Crossfade:           queue.ComputeCrossfade(md.DurationSeconds()),
		OutputAudioChannels: plan.OutputChannels,
		OutputChannelLayout: plan.OutputLayout,
		AudioProcessing:     plan.Processing,
	}, nil
}

func removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("removing partial output", slog.String("path", path), slog.String("error", err.Error()))
	}
}
