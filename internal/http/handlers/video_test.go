package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvjuke/tvjuke/internal/history"
	"github.com/tvjuke/tvjuke/internal/index"
	"github.com/tvjuke/tvjuke/internal/models"
	"github.com/tvjuke/tvjuke/internal/queue"
	"github.com/tvjuke/tvjuke/internal/state"
)

type fakeQueue struct {
	items     []*queue.Artifact
	err       error
	refilled  int
	popsCount int
}

func (f *fakeQueue) GetNext() (*queue.Artifact, error) {
	f.popsCount++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.items) == 0 {
		return nil, models.ErrQueueEmpty
	}
	art := f.items[0]
	f.items = f.items[1:]
	return art, nil
}

func (f *fakeQueue) TriggerRefill() { f.refilled++ }

type fakeHistory struct {
	added []*queue.Artifact
	prev  *history.Entry
}

func (f *fakeHistory) Add(art *queue.Artifact) { f.added = append(f.added, art) }
func (f *fakeHistory) Previous() *history.Entry { return f.prev }

type fakeReprocessor struct {
	result *queue.Artifact
	err    error
	calls  int
}

func (f *fakeReprocessor) Ensure(_ context.Context, art *queue.Artifact) (*queue.Artifact, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return art, nil
}

func testArtifact(path string) *queue.Artifact {
	return &queue.Artifact{
		VideoEntry:    index.VideoEntry{OriginalPath: "/videos/" + path},
		VideoID:       "vid-" + path,
		ProcessedPath: "/tmp/processed_" + path + ".mp4",
		ProcessedAt:   time.Now(),
	}
}

func newTestVideoHandler(q ArtifactQueue, h HistoryStore, r Reprocessor) (*VideoHandler, *state.SessionCounters) {
	counters := &state.SessionCounters{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewVideoHandler(q, h, r, counters, logger)
	return handler, counters
}

func TestGetNextVideo_ReturnsArtifact(t *testing.T) {
	art := testArtifact("a")
	q := &fakeQueue{items: []*queue.Artifact{art}}
	handler, counters := newTestVideoHandler(q, &fakeHistory{}, &fakeReprocessor{})
	handler.fileExists = func(string) bool { return true }

	out, err := handler.GetNextVideo(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, art.VideoID, out.Body.VideoID)
	assert.Equal(t, "/videos?filename=processed_a.mp4", out.Body.ServerURL)

	played, _, _, _ := counters.Values()
	assert.Equal(t, int64(1), played)
}

func TestGetNextVideo_SkipsMissingFiles(t *testing.T) {
	dead := testArtifact("dead")
	live := testArtifact("live")
	q := &fakeQueue{items: []*queue.Artifact{dead, live}}
	handler, _ := newTestVideoHandler(q, &fakeHistory{}, &fakeReprocessor{})
	handler.fileExists = func(path string) bool { return path == live.ProcessedPath }

	out, err := handler.GetNextVideo(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, live.VideoID, out.Body.VideoID)
	assert.Equal(t, 2, q.popsCount)
}

func TestGetNextVideo_EmptyQueueTriggersRefill(t *testing.T) {
	q := &fakeQueue{}
	handler, counters := newTestVideoHandler(q, &fakeHistory{}, &fakeReprocessor{})

	_, err := handler.GetNextVideo(context.Background(), nil)
	require.Error(t, err)

	var statusErr interface{ GetStatus() int }
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 404, statusErr.GetStatus())
	assert.Equal(t, 1, q.refilled)

	played, _, _, _ := counters.Values()
	assert.Zero(t, played)
}

func TestGetNextVideo_AllDeadExhaustsAttempts(t *testing.T) {
	q := &fakeQueue{}
	for i := 0; i < 10; i++ {
		q.items = append(q.items, testArtifact("dead"))
	}
	handler, _ := newTestVideoHandler(q, &fakeHistory{}, &fakeReprocessor{})
	handler.fileExists = func(string) bool { return false }

	_, err := handler.GetNextVideo(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, nextVideoAttempts, q.popsCount)
	assert.Equal(t, 1, q.refilled)
}

func TestGetPreviousVideo(t *testing.T) {
	t.Run("returns decorated entry", func(t *testing.T) {
		art := testArtifact("prev")
		h := &fakeHistory{prev: &history.Entry{Artifact: *art}}
		handler, _ := newTestVideoHandler(&fakeQueue{}, h, &fakeReprocessor{})

		out, err := handler.GetPreviousVideo(context.Background(), nil)
		require.NoError(t, err)
		require.NotNil(t, out.Body)
		assert.Equal(t, art.VideoID, out.Body.VideoID)
		assert.Equal(t, "/videos?filename=processed_prev.mp4", out.Body.ServerURL)
	})

	t.Run("null body when no history", func(t *testing.T) {
		handler, _ := newTestVideoHandler(&fakeQueue{}, &fakeHistory{}, &fakeReprocessor{})

		out, err := handler.GetPreviousVideo(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, out.Body)
	})
}

func TestPostVideoEnded_AddsToHistory(t *testing.T) {
	h := &fakeHistory{}
	handler, _ := newTestVideoHandler(&fakeQueue{}, h, &fakeReprocessor{})

	input := &ArtifactInput{Body: *testArtifact("done")}
	out, err := handler.PostVideoEnded(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, out.Body.Success)
	require.Len(t, h.added, 1)
	assert.Equal(t, "vid-done", h.added[0].VideoID)
}

func TestPostVideoSkipped_CountsSkip(t *testing.T) {
	handler, counters := newTestVideoHandler(&fakeQueue{}, &fakeHistory{}, &fakeReprocessor{})

	_, err := handler.PostVideoSkipped(context.Background(), nil)
	require.NoError(t, err)

	_, skips, _, _ := counters.Values()
	assert.Equal(t, int64(1), skips)
}

func TestPostVideoReturned_CountsReturn(t *testing.T) {
	handler, counters := newTestVideoHandler(&fakeQueue{}, &fakeHistory{}, &fakeReprocessor{})

	_, err := handler.PostVideoReturned(context.Background(), nil)
	require.NoError(t, err)

	_, _, returns, _ := counters.Values()
	assert.Equal(t, int64(1), returns)
}

func TestPostVideoError_CountsError(t *testing.T) {
	handler, counters := newTestVideoHandler(&fakeQueue{}, &fakeHistory{}, &fakeReprocessor{})

	input := &VideoErrorInput{}
	input.Body.VideoID = "vid-1"
	input.Body.ErrorMessage = "decode failed"

	out, err := handler.PostVideoError(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, out.Body.Success)

	_, _, _, playbackErrors := counters.Values()
	assert.Equal(t, int64(1), playbackErrors)
}

func TestPostEnsureProcessed(t *testing.T) {
	t.Run("returns ensured artifact", func(t *testing.T) {
		ensured := testArtifact("fresh")
		r := &fakeReprocessor{result: ensured}
		handler, _ := newTestVideoHandler(&fakeQueue{}, &fakeHistory{}, r)

		input := &ArtifactInput{Body: *testArtifact("stale")}
		out, err := handler.PostEnsureProcessed(context.Background(), input)
		require.NoError(t, err)
		require.NotNil(t, out.Body)
		assert.Equal(t, ensured.VideoID, out.Body.VideoID)
		assert.Equal(t, 1, r.calls)
	})

	t.Run("missing source maps to 404", func(t *testing.T) {
		r := &fakeReprocessor{err: models.ErrNotFound}
		handler, _ := newTestVideoHandler(&fakeQueue{}, &fakeHistory{}, r)

		input := &ArtifactInput{Body: *testArtifact("gone")}
		_, err := handler.PostEnsureProcessed(context.Background(), input)
		require.Error(t, err)

		var statusErr interface{ GetStatus() int }
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, 404, statusErr.GetStatus())
	})

	t.Run("other errors map to 500", func(t *testing.T) {
		r := &fakeReprocessor{err: errors.New("boom")}
		handler, _ := newTestVideoHandler(&fakeQueue{}, &fakeHistory{}, r)

		input := &ArtifactInput{Body: *testArtifact("bad")}
		_, err := handler.PostEnsureProcessed(context.Background(), input)
		require.Error(t, err)

		var statusErr interface{ GetStatus() int }
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, 500, statusErr.GetStatus())
	})
}
