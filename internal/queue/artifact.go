// Package queue maintains the preprocessed artifact queue: a bounded,
// randomly ordered cache of transcoded videos ready for immediate playback.
package queue

import (
	"context"
	"time"

	"github.com/tvjuke/tvjuke/internal/ffmpeg"
	"github.com/tvjuke/tvjuke/internal/index"
)

// CrossfadeTiming tells the client when to start blending into the next
// video. StartTime is an offset into the video, in seconds.
type CrossfadeTiming struct {
	Duration  float64 `json:"duration"`
	StartTime float64 `json:"startTime"`
}

// minCrossfadeSource is the shortest video that gets a crossfade.
const minCrossfadeSource = 10.0

// ComputeCrossfade derives crossfade timing from a video duration in
// seconds. Videos under ten seconds play without one.
func ComputeCrossfade(duration float64) *CrossfadeTiming {
	if duration < minCrossfadeSource {
		return nil
	}
	cd := 0.1 * duration
	if cd > 3 {
		cd = 3
	}
	start := duration - cd - 1
	if start < 0 {
		start = 0
	}
	return &CrossfadeTiming{Duration: cd, StartTime: start}
}

// Artifact is one fully processed video: the source entry, its probed
// metadata, and the transcoded MP4 sitting in the temp directory. The file
// at ProcessedPath exists exactly as long as the artifact is live.
type Artifact struct {
	index.VideoEntry
	Metadata ffmpeg.Metadata `json:"metadata"`

	VideoID       string    `json:"videoId"`
	ProcessedPath string    `json:"processedPath"`
	ProcessedAt   time.Time `json:"processedAt"`

	Crossfade           *CrossfadeTiming `json:"crossfadeTiming,omitempty"`
	OutputAudioChannels int              `json:"outputAudioChannels"`
	OutputChannelLayout string           `json:"outputChannelLayout"`
	AudioProcessing     string           `json:"audioProcessingApplied"`

	FromHistory bool `json:"_fromHistory,omitempty"`
	Reprocessed bool `json:"reprocessed,omitempty"`
}

// Processor turns a source video into an Artifact. Implemented by the
// transcoder.
type Processor interface {
	Process(ctx context.Context, entry index.VideoEntry) (*Artifact, error)
}
