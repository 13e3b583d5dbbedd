// Package startup runs the initialization pipeline: pre-init temp sweep,
// staged startup with retries, and the published initialization state.
package startup

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// processedPrefix and processedSuffix match the transcoder's output naming.
const (
	processedPrefix = "processed_"
	processedSuffix = ".mp4"
)

// SweepTempFiles removes processed files from the temp directory that are
// not in the preserve set of basenames. It runs before initialization so a
// crashed run's leftovers do not accumulate. Returns how many files were
// removed.
func SweepTempFiles(logger *slog.Logger, tempDir string, preserve map[string]bool) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("temp directory does not exist, skipping sweep", slog.String("path", tempDir))
			return 0, nil
		}
		return 0, err
	}

	var removed int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, processedPrefix) || !strings.HasSuffix(name, processedSuffix) {
			continue
		}
		if preserve[name] {
			continue
		}

		path := filepath.Join(tempDir, name)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to remove stale artifact",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("startup sweep removed stale artifacts",
			slog.String("path", tempDir),
			slog.Int("removed", removed))
	}
	return removed, nil
}
