package ffmpeg

import "fmt"

// Metadata is the reduced description of one video file used for transcode
// planning. A nil *Metadata means the probe failed; within a successful
// probe, Duration may still be absent for broken containers.
type Metadata struct {
	Duration         *float64 `json:"duration,omitempty"`
	Width            int      `json:"width,omitempty"`
	Height           int      `json:"height,omitempty"`
	FPS              float64  `json:"fps,omitempty"`
	VideoCodec       string   `json:"videoCodec,omitempty"`
	HasAudio         bool     `json:"hasAudio"`
	AudioChannels    int      `json:"audioChannels,omitempty"`
	ChannelLayout    string   `json:"channelLayout,omitempty"`
	AudioCodec       string   `json:"audioCodec,omitempty"`
	SampleRate       int      `json:"sampleRate,omitempty"`
	AudioBitrate     int      `json:"audioBitrate,omitempty"`
	FileSize         int64    `json:"fileSize,omitempty"`
	ContainerBitrate int64    `json:"containerBitrate,omitempty"`
}

// DurationSeconds returns the duration, or 0 when unknown.
func (m *Metadata) DurationSeconds() float64 {
	if m == nil || m.Duration == nil {
		return 0
	}
	return *m.Duration
}

// EffectiveChannelLayout returns the probed layout, deriving one from the
// channel count when the container does not carry it.
func (m *Metadata) EffectiveChannelLayout() string {
	if m == nil {
		return ""
	}
	if m.ChannelLayout != "" {
		return m.ChannelLayout
	}
	return DeriveChannelLayout(m.AudioChannels)
}

// DeriveChannelLayout maps a channel count to the conventional layout name.
func DeriveChannelLayout(channels int) string {
	switch channels {
	case 0:
		return ""
	case 1:
		return "mono"
	case 2:
		return "stereo"
	case 3:
		return "2.1"
	case 4:
		return "quad"
	case 5:
		return "5.0"
	case 6:
		return "5.1"
	case 8:
		return "7.1"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}
