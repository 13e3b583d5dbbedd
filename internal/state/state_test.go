package state

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvjuke/tvjuke/internal/ffmpeg"
	"github.com/tvjuke/tvjuke/internal/history"
	"github.com/tvjuke/tvjuke/internal/index"
	"github.com/tvjuke/tvjuke/internal/models"
	"github.com/tvjuke/tvjuke/internal/queue"
)

type fixture struct {
	store    *Store
	tempDir  string
	srcDir   string
	snapshot string
}

func newFixture(t *testing.T, hash string) *fixture {
	t.Helper()
	root := t.TempDir()
	tempDir := filepath.Join(root, "tmp")
	require.NoError(t, os.MkdirAll(tempDir, 0o755))
	srcDir := filepath.Join(root, "videos")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	path := filepath.Join(root, "queue-state.json")
	return &fixture{
		store:    NewStore(path, tempDir, hash, nil),
		tempDir:  tempDir,
		srcDir:   srcDir,
		snapshot: path,
	}
}

// liveArtifact creates source and processed files so the artifact survives
// restoration.
func (f *fixture) liveArtifact(t *testing.T, n int) queue.Artifact {
	t.Helper()
	src := filepath.Join(f.srcDir, fmt.Sprintf("video%d.mp4", n))
	require.NoError(t, os.WriteFile(src, []byte("source"), 0o644))
	processed := filepath.Join(f.tempDir, fmt.Sprintf("processed_%d.mp4", n))
	require.NoError(t, os.WriteFile(processed, []byte("artifact"), 0o644))

	duration := 60.0
	return queue.Artifact{
		VideoEntry:    index.VideoEntry{OriginalPath: src, Filename: filepath.Base(src)},
		Metadata:      ffmpeg.Metadata{Duration: &duration},
		VideoID:       fmt.Sprintf("vid-%d", n),
		ProcessedPath: processed,
		ProcessedAt:   time.Now(),
		Crossfade:     queue.ComputeCrossfade(duration),
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	f := newFixture(t, "hash-a")
	a1 := f.liveArtifact(t, 1)
	a2 := f.liveArtifact(t, 2)

	stats := Stats{TotalVideos: 42, VideosPlayedThisSession: 7}
	require.NoError(t, f.store.Save([]queue.Artifact{a1}, []queue.Artifact{a2}, nil, stats))

	snap := f.store.Load()
	require.NotNil(t, snap)
	require.Len(t, snap.CombinedQueue, 2)
	assert.Equal(t, a1.VideoID, snap.CombinedQueue[0].VideoID)
	assert.Equal(t, a2.VideoID, snap.CombinedQueue[1].VideoID)
	assert.Equal(t, "hash-a", snap.ConfigHash)
	assert.Equal(t, 42, snap.Stats.TotalVideos)
}

func TestLoad_RejectsHashMismatch(t *testing.T) {
	f := newFixture(t, "hash-a")
	require.NoError(t, f.store.Save(nil, []queue.Artifact{f.liveArtifact(t, 1)}, nil, Stats{}))

	other := NewStore(f.snapshot, f.tempDir, "hash-b", nil)
	assert.Nil(t, other.Load())

	_, err := other.read()
	assert.ErrorIs(t, err, models.ErrSnapshotHashMismatch)
}

func TestLoad_MissingFile(t *testing.T) {
	f := newFixture(t, "hash-a")
	assert.Nil(t, f.store.Load())
}

func TestLoad_CorruptFile(t *testing.T) {
	f := newFixture(t, "hash-a")
	require.NoError(t, os.WriteFile(f.snapshot, []byte("{not json"), 0o644))
	assert.Nil(t, f.store.Load())
}

func TestLoad_FiltersDeadArtifacts(t *testing.T) {
	f := newFixture(t, "hash-a")
	alive := f.liveArtifact(t, 1)
	noSource := f.liveArtifact(t, 2)
	noProcessed := f.liveArtifact(t, 3)
	require.NoError(t, f.store.Save(nil, []queue.Artifact{alive, noSource, noProcessed}, nil, Stats{}))

	require.NoError(t, os.Remove(noSource.OriginalPath))
	require.NoError(t, os.Remove(noProcessed.ProcessedPath))

	snap := f.store.Load()
	require.NotNil(t, snap)
	require.Len(t, snap.CombinedQueue, 1)
	assert.Equal(t, alive.VideoID, snap.CombinedQueue[0].VideoID)

	// The orphaned processed file was deleted.
	_, err := os.Stat(noSource.ProcessedPath)
	assert.True(t, os.IsNotExist(err))
}

func TestLoad_RecomputesCrossfade(t *testing.T) {
	f := newFixture(t, "hash-a")
	art := f.liveArtifact(t, 1)
	art.Crossfade = nil
	require.NoError(t, f.store.Save(nil, []queue.Artifact{art}, nil, Stats{}))

	snap := f.store.Load()
	require.NotNil(t, snap)
	require.Len(t, snap.CombinedQueue, 1)
	cf := snap.CombinedQueue[0].Crossfade
	require.NotNil(t, cf)
	assert.InDelta(t, 3.0, cf.Duration, 1e-9)
	assert.InDelta(t, 56.0, cf.StartTime, 1e-9)
}

func TestDiscard(t *testing.T) {
	f := newFixture(t, "hash-a")
	require.NoError(t, f.store.Save(nil, []queue.Artifact{f.liveArtifact(t, 1)}, nil, Stats{}))

	f.store.Discard()
	assert.Nil(t, f.store.Load())
}

func TestCleanTemp_PreservesLiveSets(t *testing.T) {
	f := newFixture(t, "hash-a")

	queued := f.liveArtifact(t, 1)
	inHistory := f.liveArtifact(t, 2)
	inSnapshot := f.liveArtifact(t, 3)
	stale := f.liveArtifact(t, 4)

	require.NoError(t, f.store.Save(nil, []queue.Artifact{inSnapshot}, nil, Stats{}))

	playback := []history.Entry{{Artifact: inHistory, AddedToHistoryAt: time.Now()}}
	require.NoError(t, f.store.CleanTemp([]queue.Artifact{queued}, playback))

	for _, keep := range []string{queued.ProcessedPath, inHistory.ProcessedPath, inSnapshot.ProcessedPath} {
		_, err := os.Stat(keep)
		assert.NoError(t, err)
	}
	_, err := os.Stat(stale.ProcessedPath)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanTemp_AfterSaveDropsDequeuedArtifacts(t *testing.T) {
	f := newFixture(t, "hash-a")

	kept := f.liveArtifact(t, 1)
	dequeued := f.liveArtifact(t, 2)

	// First snapshot references both; the second drops one. Sweeping right
	// after the save must remove the dropped artifact's file.
	require.NoError(t, f.store.Save(nil, []queue.Artifact{kept, dequeued}, nil, Stats{}))
	require.NoError(t, f.store.Save(nil, []queue.Artifact{kept}, nil, Stats{}))
	require.NoError(t, f.store.CleanTemp([]queue.Artifact{kept}, nil))

	_, err := os.Stat(kept.ProcessedPath)
	assert.NoError(t, err)
	_, err = os.Stat(dequeued.ProcessedPath)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanTemp_IgnoresForeignFiles(t *testing.T) {
	f := newFixture(t, "hash-a")
	foreign := filepath.Join(f.tempDir, "notes.txt")
	require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0o644))

	require.NoError(t, f.store.CleanTemp(nil, nil))
	_, err := os.Stat(foreign)
	assert.NoError(t, err)
}

func TestCleanTemp_MissingTempDir(t *testing.T) {
	f := newFixture(t, "hash-a")
	require.NoError(t, os.RemoveAll(f.tempDir))
	assert.NoError(t, f.store.CleanTemp(nil, nil))
}

func TestSessionCounters(t *testing.T) {
	var c SessionCounters
	c.VideoPlayed()
	c.VideoPlayed()
	c.ManualSkip()
	c.Return()
	c.PlaybackError()

	played, skips, returns, playbackErrors := c.Values()
	assert.Equal(t, int64(2), played)
	assert.Equal(t, int64(1), skips)
	assert.Equal(t, int64(1), returns)
	assert.Equal(t, int64(1), playbackErrors)
}
