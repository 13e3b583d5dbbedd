package state

import (
	"sync"
	"time"
)

// Stats is the serializable counter block saved with each snapshot and
// exposed on the stats endpoints.
type Stats struct {
	TotalVideos             int       `json:"totalVideos"`
	PreprocessedCount       int       `json:"preprocessedCount"`
	ErrorCount              int64     `json:"errorCount"`
	VideosPlayedThisSession int64     `json:"videosPlayedThisSession"`
	ManualSkipsThisSession  int64     `json:"manualSkipsThisSession"`
	ReturnsThisSession      int64     `json:"returnsThisSession"`
	LastIndexUpdate         time.Time `json:"lastIndexUpdate"`
}

// SessionCounters tracks per-session playback counters. Safe for concurrent
// use.
type SessionCounters struct {
	mu             sync.Mutex
	videosPlayed   int64
	manualSkips    int64
	returns        int64
	playbackErrors int64
}

// VideoPlayed records one served video.
func (c *SessionCounters) VideoPlayed() {
	c.mu.Lock()
	c.videosPlayed++
	c.mu.Unlock()
}

// ManualSkip records one user-initiated skip.
func (c *SessionCounters) ManualSkip() {
	c.mu.Lock()
	c.manualSkips++
	c.mu.Unlock()
}

// Return records one "previous video" request.
func (c *SessionCounters) Return() {
	c.mu.Lock()
	c.returns++
	c.mu.Unlock()
}

// PlaybackError records one client-reported playback failure.
func (c *SessionCounters) PlaybackError() {
	c.mu.Lock()
	c.playbackErrors++
	c.mu.Unlock()
}

// Values returns the current counter values.
func (c *SessionCounters) Values() (videosPlayed, manualSkips, returns, playbackErrors int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videosPlayed, c.manualSkips, c.returns, c.playbackErrors
}
