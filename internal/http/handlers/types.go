// Package handlers provides the HTTP API handlers for tvjuke.
package handlers

import (
	"net/url"
	"path/filepath"

	"github.com/tvjuke/tvjuke/internal/queue"
)

// VideoResponse is a processed artifact decorated with the URL the client
// streams it from.
type VideoResponse struct {
	queue.Artifact
	ServerURL string `json:"serverUrl"`
}

// newVideoResponse builds the client payload for one artifact.
func newVideoResponse(art *queue.Artifact) *VideoResponse {
	return &VideoResponse{
		Artifact:  *art,
		ServerURL: "/videos?filename=" + url.QueryEscape(filepath.Base(art.ProcessedPath)),
	}
}
