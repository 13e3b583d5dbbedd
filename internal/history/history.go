// Package history tracks what has played. Two LIFO tiers back the client's
// "previous" button: a small in-memory playback tier and a large persisted
// tier that survives restarts.
package history

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/tvjuke/tvjuke/internal/queue"
	"github.com/tvjuke/tvjuke/internal/util"
)

// Entry is one played video with the moment it entered history.
type Entry struct {
	queue.Artifact
	AddedToHistoryAt time.Time `json:"addedToHistoryAt"`
}

// snapshot is the on-disk form of the persisted tier.
type snapshot struct {
	SavedAt          time.Time `json:"savedAt"`
	PersistedHistory []Entry   `json:"persistedHistory"`
}

// Manager holds both history tiers. Safe for concurrent use; persistence is
// flushed by a single background goroutine so callers never block on disk.
type Manager struct {
	mu        sync.Mutex
	playback  []Entry
	persisted []Entry

	playbackCap  int
	persistedCap int
	path         string
	logger       *slog.Logger

	flushCh chan struct{}
	now     func() time.Time
}

// New creates a history manager persisting to path.
func New(playbackCap, persistedCap int, path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		playbackCap:  playbackCap,
		persistedCap: persistedCap,
		path:         path,
		logger:       logger.With(slog.String("component", "history")),
		flushCh:      make(chan struct{}, 1),
		now:          time.Now,
	}
}

// Load restores the persisted tier. A missing or unreadable snapshot starts
// empty; that is never an error.
func (m *Manager) Load() {
	var snap snapshot
	if err := util.ReadJSON(m.path, &snap); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("discarding unreadable history snapshot", slog.String("error", err.Error()))
		}
		return
	}

	m.mu.Lock()
	m.persisted = snap.PersistedHistory
	if len(m.persisted) > m.persistedCap {
		m.persisted = m.persisted[:m.persistedCap]
	}
	m.mu.Unlock()
	m.logger.Info("history loaded", slog.Int("entries", len(snap.PersistedHistory)))
}

// Add records a played video at the head of both tiers. Videos served from
// history are not re-added. Existing entries for the same original path are
// removed first so each path appears at most once per tier.
func (m *Manager) Add(art *queue.Artifact) {
	if art == nil || art.FromHistory {
		return
	}

	entry := Entry{Artifact: *art, AddedToHistoryAt: m.now()}

	m.mu.Lock()
	m.playback = unshift(dropPath(m.playback, art.OriginalPath), entry, m.playbackCap)
	m.persisted = unshift(dropPath(m.persisted, art.OriginalPath), entry, m.persistedCap)
	m.mu.Unlock()

	m.triggerFlush()
}

// Previous pops the most recent entry. Playback-tier entries are also purged
// from the persisted tier so they cannot be returned twice.
func (m *Manager) Previous() *Entry {
	m.mu.Lock()
	var entry *Entry
	if len(m.playback) > 0 {
		e := m.playback[0]
		m.playback = m.playback[1:]
		m.persisted = dropPath(m.persisted, e.OriginalPath)
		entry = &e
	} else if len(m.persisted) > 0 {
		e := m.persisted[0]
		m.persisted = m.persisted[1:]
		entry = &e
	}
	m.mu.Unlock()

	if entry != nil {
		m.triggerFlush()
		entry.FromHistory = true
	}
	return entry
}

// PlaybackSize returns the playback tier depth.
func (m *Manager) PlaybackSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.playback)
}

// PersistedSize returns the persisted tier depth.
func (m *Manager) PersistedSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.persisted)
}

// PlaybackEntries returns a copy of the playback tier, newest first.
func (m *Manager) PlaybackEntries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.playback))
	copy(out, m.playback)
	return out
}

// Start runs the flush goroutine until the context is cancelled. A final
// flush happens on shutdown.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				m.flush()
				return
			case <-m.flushCh:
				m.flush()
			}
		}
	}()
}

// Flush writes the persisted tier synchronously. Used at shutdown and by
// tests.
func (m *Manager) Flush() error {
	return m.flush()
}

func (m *Manager) triggerFlush() {
	select {
	case m.flushCh <- struct{}{}:
	default:
	}
}

func (m *Manager) flush() error {
	m.mu.Lock()
	snap := snapshot{SavedAt: m.now(), PersistedHistory: make([]Entry, len(m.persisted))}
	copy(snap.PersistedHistory, m.persisted)
	m.mu.Unlock()

	if err := util.WriteJSONAtomic(m.path, snap); err != nil {
		m.logger.Error("persisting history", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// dropPath removes every entry with the given original path.
func dropPath(entries []Entry, path string) []Entry {
	out := entries[:0]
	for _, e := range entries {
		if e.OriginalPath != path {
			out = append(out, e)
		}
	}
	return out
}

// unshift prepends and clamps to capacity.
func unshift(entries []Entry, e Entry, capacity int) []Entry {
	entries = append([]Entry{e}, entries...)
	if capacity > 0 && len(entries) > capacity {
		entries = entries[:capacity]
	}
	return entries
}
