package reprocess

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvjuke/tvjuke/internal/ffmpeg"
	"github.com/tvjuke/tvjuke/internal/index"
	"github.com/tvjuke/tvjuke/internal/models"
	"github.com/tvjuke/tvjuke/internal/queue"
)

// countingProcessor counts Process calls and writes real output files.
type countingProcessor struct {
	dir   string
	calls atomic.Int64
	delay time.Duration
}

func (p *countingProcessor) Process(_ context.Context, entry index.VideoEntry) (*queue.Artifact, error) {
	n := p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	out := filepath.Join(p.dir, fmt.Sprintf("processed_fresh%d.mp4", n))
	if err := os.WriteFile(out, []byte("artifact"), 0o644); err != nil {
		return nil, err
	}
	return &queue.Artifact{
		VideoEntry:          entry,
		VideoID:             fmt.Sprintf("fresh-%d", n),
		ProcessedPath:       out,
		ProcessedAt:         time.Now(),
		OutputAudioChannels: 6,
		OutputChannelLayout: "5.1",
		AudioProcessing:     "5.1-upmix",
	}, nil
}

func setup(t *testing.T) (*Handler, *countingProcessor, *queue.Artifact) {
	t.Helper()
	dir := t.TempDir()

	src := filepath.Join(dir, "video.mp4")
	require.NoError(t, os.WriteFile(src, []byte("source"), 0o644))

	duration := 45.0
	art := &queue.Artifact{
		VideoEntry:    index.VideoEntry{OriginalPath: src, Filename: "video.mp4"},
		Metadata:      ffmpeg.Metadata{Duration: &duration},
		VideoID:       "old-id",
		ProcessedPath: filepath.Join(dir, "processed_old.mp4"),
		ProcessedAt:   time.Now().Add(-time.Hour),
	}

	proc := &countingProcessor{dir: dir}
	return New(proc, nil), proc, art
}

func TestEnsure_IntactArtifactUnchanged(t *testing.T) {
	h, proc, art := setup(t)
	require.NoError(t, os.WriteFile(art.ProcessedPath, []byte("artifact"), 0o644))

	got, err := h.Ensure(context.Background(), art)
	require.NoError(t, err)
	assert.Same(t, art, got)
	assert.Equal(t, int64(0), proc.calls.Load())
}

func TestEnsure_MissingSource(t *testing.T) {
	h, _, art := setup(t)
	require.NoError(t, os.Remove(art.OriginalPath))

	got, err := h.Ensure(context.Background(), art)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEnsure_ReprocessesAndMerges(t *testing.T) {
	h, proc, art := setup(t)

	got, err := h.Ensure(context.Background(), art)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), proc.calls.Load())

	assert.Equal(t, "fresh-1", got.VideoID)
	assert.True(t, got.Reprocessed)
	assert.Equal(t, art.OriginalPath, got.OriginalPath)
	assert.NotEqual(t, art.ProcessedPath, got.ProcessedPath)

	// Crossfade recomputed from the probed duration.
	require.NotNil(t, got.Crossfade)
	assert.InDelta(t, 3.0, got.Crossfade.Duration, 1e-9)

	// The original reference is untouched.
	assert.Equal(t, "old-id", art.VideoID)
	assert.False(t, art.Reprocessed)
}

func TestEnsure_PreservesExistingCrossfade(t *testing.T) {
	h, _, art := setup(t)
	art.Crossfade = &queue.CrossfadeTiming{Duration: 2.5, StartTime: 40}

	got, err := h.Ensure(context.Background(), art)
	require.NoError(t, err)
	assert.Equal(t, 2.5, got.Crossfade.Duration)
	assert.Equal(t, 40.0, got.Crossfade.StartTime)
}

func TestEnsure_CoalescesConcurrentRequests(t *testing.T) {
	h, proc, art := setup(t)
	proc.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	results := make([]*queue.Artifact, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := h.Ensure(context.Background(), art)
			require.NoError(t, err)
			results[i] = got
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), proc.calls.Load())
	for _, got := range results {
		assert.Equal(t, results[0].VideoID, got.VideoID)
	}
}
