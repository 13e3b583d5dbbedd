package models

import (
	"time"
)

// ProbeRecord caches the result of probing one video file. Records are keyed
// by absolute path; Size and ModTime stamp the file state the probe saw, so a
// changed file invalidates its record on lookup.
type ProbeRecord struct {
	BaseModel
	Path    string    `gorm:"uniqueIndex;not null" json:"path"`
	Size    int64     `gorm:"not null" json:"size"`
	ModTime time.Time `gorm:"not null" json:"mod_time"`

	// Probed stream facts. Duration in seconds.
	Duration         float64 `json:"duration"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	FPS              float64 `json:"fps"`
	VideoCodec       string  `json:"video_codec"`
	HasAudio         bool    `json:"has_audio"`
	AudioChannels    int     `json:"audio_channels"`
	ChannelLayout    string  `json:"channel_layout"`
	AudioCodec       string  `json:"audio_codec"`
	SampleRate       int     `json:"sample_rate"`
	AudioBitrate     int     `json:"audio_bitrate"`
	ContainerBitrate int64   `json:"container_bitrate"`
}

// TableName overrides the default table name.
func (ProbeRecord) TableName() string {
	return "probe_records"
}

// Validate checks required fields.
func (p *ProbeRecord) Validate() error {
	if p.Path == "" {
		return ErrValidation{Field: "path", Message: "path is required"}
	}
	return nil
}

// Matches reports whether the record still describes a file with the given
// size and modification time.
func (p *ProbeRecord) Matches(size int64, modTime time.Time) bool {
	return p.Size == size && p.ModTime.Equal(modTime)
}
