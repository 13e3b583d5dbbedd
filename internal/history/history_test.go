package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvjuke/tvjuke/internal/index"
	"github.com/tvjuke/tvjuke/internal/queue"
)

func artifact(n int) *queue.Artifact {
	return &queue.Artifact{
		VideoEntry: index.VideoEntry{
			OriginalPath: fmt.Sprintf("/videos/video%d.mp4", n),
			Filename:     fmt.Sprintf("video%d.mp4", n),
		},
		VideoID:       fmt.Sprintf("vid-%d", n),
		ProcessedPath: fmt.Sprintf("/tmp/processed_%d.mp4", n),
		ProcessedAt:   time.Now(),
	}
}

func newTestManager(t *testing.T, playbackCap, persistedCap int) *Manager {
	t.Helper()
	return New(playbackCap, persistedCap, filepath.Join(t.TempDir(), "persisted-history.json"), nil)
}

func TestAdd_LIFOOrder(t *testing.T) {
	m := newTestManager(t, 10, 100)

	m.Add(artifact(1))
	m.Add(artifact(2))
	m.Add(artifact(3))

	entries := m.PlaybackEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, "/videos/video3.mp4", entries[0].OriginalPath)
	assert.Equal(t, "/videos/video1.mp4", entries[2].OriginalPath)
	assert.Equal(t, 3, m.PersistedSize())
}

func TestAdd_SkipsFromHistory(t *testing.T) {
	m := newTestManager(t, 10, 100)

	art := artifact(1)
	art.FromHistory = true
	m.Add(art)

	assert.Equal(t, 0, m.PlaybackSize())
	assert.Equal(t, 0, m.PersistedSize())
}

func TestAdd_DedupesByPath(t *testing.T) {
	m := newTestManager(t, 10, 100)

	m.Add(artifact(1))
	m.Add(artifact(2))

	// Re-adding video1 moves it to the head instead of duplicating.
	m.Add(artifact(1))

	entries := m.PlaybackEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "/videos/video1.mp4", entries[0].OriginalPath)
	assert.Equal(t, 2, m.PersistedSize())
}

func TestAdd_ClampsToCapacity(t *testing.T) {
	m := newTestManager(t, 2, 3)

	for i := 1; i <= 5; i++ {
		m.Add(artifact(i))
	}

	assert.Equal(t, 2, m.PlaybackSize())
	assert.Equal(t, 3, m.PersistedSize())
	assert.Equal(t, "/videos/video5.mp4", m.PlaybackEntries()[0].OriginalPath)
}

func TestPrevious_PlaybackTierFirst(t *testing.T) {
	m := newTestManager(t, 10, 100)
	m.Add(artifact(1))
	m.Add(artifact(2))

	e := m.Previous()
	require.NotNil(t, e)
	assert.Equal(t, "/videos/video2.mp4", e.OriginalPath)
	assert.True(t, e.FromHistory)

	// The popped entry is purged from the persisted tier too.
	assert.Equal(t, 1, m.PlaybackSize())
	assert.Equal(t, 1, m.PersistedSize())
}

func TestPrevious_FallsBackToPersisted(t *testing.T) {
	m := newTestManager(t, 10, 100)
	m.Add(artifact(1))

	// Drain the playback tier.
	require.NotNil(t, m.Previous())
	assert.Equal(t, 0, m.PlaybackSize())
	assert.Equal(t, 0, m.PersistedSize())

	// Seed only the persisted tier, as after a restart.
	m.persisted = []Entry{{Artifact: *artifact(7), AddedToHistoryAt: time.Now()}}

	e := m.Previous()
	require.NotNil(t, e)
	assert.Equal(t, "/videos/video7.mp4", e.OriginalPath)
	assert.Nil(t, m.Previous())
}

func TestPrevious_Empty(t *testing.T) {
	m := newTestManager(t, 10, 100)
	assert.Nil(t, m.Previous())
}

func TestFlushAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persisted-history.json")
	m := New(10, 100, path, nil)
	m.Add(artifact(1))
	m.Add(artifact(2))
	require.NoError(t, m.Flush())

	reloaded := New(10, 100, path, nil)
	reloaded.Load()
	assert.Equal(t, 2, reloaded.PersistedSize())
	assert.Equal(t, 0, reloaded.PlaybackSize())

	e := reloaded.Previous()
	require.NotNil(t, e)
	assert.Equal(t, "/videos/video2.mp4", e.OriginalPath)
}

func TestLoad_MissingFileStartsEmpty(t *testing.T) {
	m := newTestManager(t, 10, 100)
	m.Load()
	assert.Equal(t, 0, m.PersistedSize())
}

func TestLoad_ClampsOversizedSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persisted-history.json")
	big := New(10, 100, path, nil)
	for i := 0; i < 10; i++ {
		big.Add(artifact(i))
	}
	require.NoError(t, big.Flush())

	small := New(10, 4, path, nil)
	small.Load()
	assert.Equal(t, 4, small.PersistedSize())
}
