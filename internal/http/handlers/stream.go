package handlers

import (
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// StreamHandler serves processed artifacts from the temp directory with
// native byte-range support.
type StreamHandler struct {
	tempDir string
	logger  *slog.Logger
}

// NewStreamHandler creates a new stream handler rooted at tempDir.
func NewStreamHandler(tempDir string, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		tempDir: tempDir,
		logger:  logger.With(slog.String("component", "stream")),
	}
}

// ServeHTTP serves GET /videos?filename=<basename>. Only bare file names
// inside the temp directory are served.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Range")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		http.Error(w, "missing filename parameter", http.StatusBadRequest)
		return
	}

	// Reject anything that is not a bare file name.
	if strings.ContainsAny(filename, `/\`) || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		http.Error(w, "invalid filename", http.StatusBadRequest)
		return
	}

	path := filepath.Join(h.tempDir, filename)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "video not found", http.StatusNotFound)
			return
		}
		h.logger.Error("opening video file", slog.String("path", path), slog.Any("error", err))
		http.Error(w, "failed to open video", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "video not found", http.StatusNotFound)
		return
	}

	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "video/mp4")
	}

	http.ServeContent(w, r, filename, info.ModTime(), f)
}
