package index

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ScanProgress is one progress event emitted while scanning.
type ScanProgress struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// ProgressFunc receives scan progress events. May be nil.
type ProgressFunc func(ScanProgress)

// Scanner walks directories collecting video files.
type Scanner struct {
	extensions map[string]bool
	logger     *slog.Logger
	now        func() time.Time
}

// NewScanner creates a scanner recognizing the given extensions.
func NewScanner(extensions []string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		extensions: ExtensionSet(extensions),
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the timestamp source. Used by tests.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// ScanDirectories walks each configured directory and collects video entries.
// Missing directories are skipped; per-directory walk errors are logged and
// do not abort the remaining directories. Paths are not deduplicated across
// directories. Progress is reported once per directory step.
func (s *Scanner) ScanDirectories(directories []string, onProgress ProgressFunc) []VideoEntry {
	var entries []VideoEntry

	for i, dir := range directories {
		if onProgress != nil {
			percent := 0
			if len(directories) > 0 {
				percent = i * 100 / len(directories)
			}
			onProgress(ScanProgress{Percent: percent, Message: "scanning " + dir})
		}

		found, err := s.scanDirectory(dir)
		if err != nil {
			s.logger.Warn("directory scan failed, skipping",
				slog.String("directory", dir),
				slog.String("error", err.Error()))
			continue
		}
		entries = append(entries, found...)

		s.logger.Debug("directory scanned",
			slog.String("directory", dir),
			slog.Int("videos", len(found)))
	}

	if onProgress != nil {
		onProgress(ScanProgress{Percent: 100, Message: "scan complete"})
	}
	return entries
}

// ScanSeasonal walks one seasonal directory, tagging every entry with it.
func (s *Scanner) ScanSeasonal(seasonalDir string) []VideoEntry {
	entries, err := s.scanDirectory(seasonalDir)
	if err != nil {
		s.logger.Warn("seasonal directory scan failed, skipping",
			slog.String("directory", seasonalDir),
			slog.String("error", err.Error()))
		return nil
	}
	for i := range entries {
		entries[i].SeasonalDirectory = seasonalDir
	}
	return entries
}

func (s *Scanner) scanDirectory(dir string) ([]VideoEntry, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}

	var entries []VideoEntry
	addedAt := s.now()

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: log and keep walking the rest.
			s.logger.Debug("walk error, skipping subtree",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !IsVideoFile(path, s.extensions) {
			return nil
		}
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			abs = path
		}
		entries = append(entries, NewVideoEntry(abs, addedAt))
		return nil
	})
	if err != nil {
		return entries, err
	}
	return entries, nil
}
