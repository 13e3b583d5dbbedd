// Package state persists the server's playback state across restarts and
// garbage-collects the temp directory.
package state

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tvjuke/tvjuke/internal/history"
	"github.com/tvjuke/tvjuke/internal/models"
	"github.com/tvjuke/tvjuke/internal/queue"
	"github.com/tvjuke/tvjuke/internal/util"
)

// Snapshot is the on-disk queue-state document. CombinedQueue is the client's
// reported playback queue followed by the server's preprocessed queue.
type Snapshot struct {
	SavedAt         time.Time        `json:"savedAt"`
	ConfigHash      string           `json:"configHash"`
	CombinedQueue   []queue.Artifact `json:"combinedQueue"`
	PlaybackHistory []history.Entry  `json:"playbackHistory"`
	Stats           Stats            `json:"stats"`
}

// Store reads and writes the queue-state snapshot and owns temp GC.
type Store struct {
	path       string
	tempDir    string
	configHash string
	logger     *slog.Logger
	now        func() time.Time
}

// NewStore creates a store bound to one snapshot path, temp directory, and
// config hash.
func NewStore(path, tempDir, configHash string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:       path,
		tempDir:    tempDir,
		configHash: configHash,
		logger:     logger.With(slog.String("component", "state")),
		now:        time.Now,
	}
}

// Save writes the snapshot atomically, stamping time and config hash.
func (s *Store) Save(clientQueue, serverQueue []queue.Artifact, playback []history.Entry, stats Stats) error {
	snap := Snapshot{
		SavedAt:         s.now(),
		ConfigHash:      s.configHash,
		CombinedQueue:   append(append([]queue.Artifact{}, clientQueue...), serverQueue...),
		PlaybackHistory: playback,
		Stats:           stats,
	}
	if err := util.WriteJSONAtomic(s.path, snap); err != nil {
		return err
	}
	s.logger.Debug("state saved",
		slog.Int("queue_entries", len(snap.CombinedQueue)),
		slog.Int("history_entries", len(playback)))
	return nil
}

// Load restores the snapshot. A missing, unreadable, or hash-mismatched
// snapshot means no prior state and returns nil. Restored artifacts are
// filtered to those whose source and processed files both still exist;
// processed files whose source vanished are deleted, and missing crossfade
// timings are recomputed from the probed duration.
func (s *Store) Load() *Snapshot {
	snap, err := s.read()
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case errors.Is(err, models.ErrSnapshotHashMismatch):
			s.logger.Info("configuration changed since last run, discarding saved state")
		default:
			s.logger.Warn("discarding unreadable state snapshot", slog.String("error", err.Error()))
		}
		return nil
	}

	restored := make([]queue.Artifact, 0, len(snap.CombinedQueue))
	for _, art := range snap.CombinedQueue {
		if !pathExists(art.OriginalPath) {
			// Source gone; its processed file is an orphan.
			if pathExists(art.ProcessedPath) {
				s.removeQuiet(art.ProcessedPath)
			}
			s.logger.Warn("dropping artifact with missing source", slog.String("path", art.OriginalPath))
			continue
		}
		if !pathExists(art.ProcessedPath) {
			s.logger.Warn("dropping artifact with missing processed file", slog.String("path", art.ProcessedPath))
			continue
		}
		if art.Crossfade == nil {
			art.Crossfade = queue.ComputeCrossfade(art.Metadata.DurationSeconds())
		}
		restored = append(restored, art)
	}
	snap.CombinedQueue = restored

	s.logger.Info("state restored",
		slog.Int("queue_entries", len(restored)),
		slog.Time("saved_at", snap.SavedAt))
	return snap
}

// read parses the snapshot file and checks it was written under the current
// configuration hash.
func (s *Store) read() (*Snapshot, error) {
	var snap Snapshot
	if err := util.ReadJSON(s.path, &snap); err != nil {
		return nil, err
	}
	if snap.ConfigHash != s.configHash {
		return nil, models.ErrSnapshotHashMismatch
	}
	return &snap, nil
}

// Discard removes the snapshot file. Used when the index changes enough that
// saved artifacts are no longer representative.
func (s *Store) Discard() {
	s.removeQuiet(s.path)
}

// CleanTemp removes stale processed files from the temp directory. The
// preserve set is every processed basename in the live queue, the playback
// history, and the last snapshot. Missing or busy files are non-errors.
func (s *Store) CleanTemp(liveQueue []queue.Artifact, playback []history.Entry) error {
	preserve := make(map[string]bool)
	add := func(processedPath string) {
		if processedPath != "" {
			preserve[filepath.Base(processedPath)] = true
		}
	}
	for _, art := range liveQueue {
		add(art.ProcessedPath)
	}
	for _, e := range playback {
		add(e.ProcessedPath)
	}

	var snap Snapshot
	if err := util.ReadJSON(s.path, &snap); err == nil {
		for _, art := range snap.CombinedQueue {
			add(art.ProcessedPath)
		}
		for _, e := range snap.PlaybackHistory {
			add(e.ProcessedPath)
		}
	}

	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	removed := 0
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !isProcessedFile(name) || preserve[name] {
			continue
		}
		s.removeQuiet(filepath.Join(s.tempDir, name))
		removed++
	}
	if removed > 0 {
		s.logger.Info("temp cleanup removed stale artifacts", slog.Int("removed", removed))
	}
	return nil
}

// isProcessedFile matches the transcoder's output naming.
func isProcessedFile(name string) bool {
	return strings.HasPrefix(name, "processed_") && strings.HasSuffix(name, ".mp4")
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Store) removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("removing file", slog.String("path", path), slog.String("error", err.Error()))
	}
}
