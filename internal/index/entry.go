// Package index maintains the durable catalog of playable video files: a
// regular index built from the configured directories and a seasonal index
// keyed by seasonal subdirectory, both backed by JSON snapshots in the cache
// directory.
package index

import (
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// VideoEntry is one video file known to exist on disk. OriginalPath is unique
// within one index table.
type VideoEntry struct {
	OriginalPath string    `json:"originalPath"`
	Filename     string    `json:"filename"`
	Directory    string    `json:"directory"`
	AddedAt      time.Time `json:"addedAt"`
	// SeasonalDirectory tags entries collected from a seasonal directory with
	// the directory they came from. Empty for regular entries.
	SeasonalDirectory string `json:"seasonalDirectory,omitempty"`
}

// NewVideoEntry builds an entry for an absolute file path.
func NewVideoEntry(path string, addedAt time.Time) VideoEntry {
	return VideoEntry{
		OriginalPath: path,
		Filename:     filepath.Base(path),
		Directory:    filepath.Dir(path),
		AddedAt:      addedAt,
	}
}

// IsVideoFile reports whether path looks like a video: either its extension
// is in the configured list, or its MIME type (by extension) is video/*.
func IsVideoFile(path string, extensions map[string]bool) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	if extensions[ext] {
		return true
	}
	mimeType := mime.TypeByExtension(ext)
	return strings.HasPrefix(mimeType, "video/")
}

// ExtensionSet normalizes a configured extension list into a lookup set.
// Entries gain a leading dot when missing and compare case-insensitively.
func ExtensionSet(extensions []string) map[string]bool {
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}
