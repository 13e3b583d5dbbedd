package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tvjuke/tvjuke/internal/models"
)

// ProbeResult contains the parsed ffprobe output for one file.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	NumStreams int    `json:"nb_streams"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeStream contains per-stream information.
type ProbeStream struct {
	Index         int    `json:"index"`
	CodecName     string `json:"codec_name"`
	CodecType     string `json:"codec_type"` // video, audio, subtitle, data
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	PixFmt        string `json:"pix_fmt,omitempty"`
	SampleRate    string `json:"sample_rate,omitempty"`
	Channels      int    `json:"channels,omitempty"`
	ChannelLayout string `json:"channel_layout,omitempty"`
	RFrameRate    string `json:"r_frame_rate,omitempty"`
	AvgFrameRate  string `json:"avg_frame_rate,omitempty"`
	Duration      string `json:"duration,omitempty"`
	BitRate       string `json:"bit_rate,omitempty"`
}

// Prober runs ffprobe against local video files.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a prober using the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe runs ffprobe on path and returns the parsed result.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: timeout after %v", models.ErrProbeFailed, p.timeout)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrProbeFailed, err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("%w: parsing output: %v", models.ErrProbeFailed, err)
	}
	return &result, nil
}

// ProbeMetadata probes path and reduces the result to the Metadata used for
// transcode planning. The file size comes from a stat rather than the
// container header.
func (p *Prober) ProbeMetadata(ctx context.Context, path string) (*Metadata, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	meta := result.Metadata()
	if info, statErr := os.Stat(path); statErr == nil {
		meta.FileSize = info.Size()
	}
	return meta, nil
}

// Metadata reduces a probe result to the transcode-planning view. Missing
// channel layouts are derived from the channel count.
func (r *ProbeResult) Metadata() *Metadata {
	meta := &Metadata{}

	if r.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(r.Format.Duration, 64); err == nil && dur > 0 {
			meta.Duration = &dur
		}
	}
	if r.Format.BitRate != "" {
		if br, err := strconv.ParseInt(r.Format.BitRate, 10, 64); err == nil {
			meta.ContainerBitrate = br
		}
	}

	if video := r.VideoStream(); video != nil {
		meta.VideoCodec = video.CodecName
		meta.Width = video.Width
		meta.Height = video.Height
		meta.FPS = video.Framerate()
	}

	if audio := r.AudioStream(); audio != nil {
		meta.HasAudio = true
		meta.AudioCodec = audio.CodecName
		meta.AudioChannels = audio.Channels
		if audio.ChannelLayout != "" {
			meta.ChannelLayout = audio.ChannelLayout
		} else {
			meta.ChannelLayout = DeriveChannelLayout(audio.Channels)
		}
		if audio.SampleRate != "" {
			if sr, err := strconv.Atoi(audio.SampleRate); err == nil {
				meta.SampleRate = sr
			}
		}
		if audio.BitRate != "" {
			if br, err := strconv.Atoi(audio.BitRate); err == nil {
				meta.AudioBitrate = br
			}
		}
	}

	return meta
}

// VideoStream returns the first video stream, or nil.
func (r *ProbeResult) VideoStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "video" {
			return &r.Streams[i]
		}
	}
	return nil
}

// AudioStream returns the first audio stream, or nil.
func (r *ProbeResult) AudioStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "audio" {
			return &r.Streams[i]
		}
	}
	return nil
}

// Framerate returns the stream frame rate, preferring the average rate.
func (s *ProbeStream) Framerate() float64 {
	if s.AvgFrameRate != "" {
		if f := parseFramerate(s.AvgFrameRate); f > 0 {
			return f
		}
	}
	if s.RFrameRate != "" {
		return parseFramerate(s.RFrameRate)
	}
	return 0
}

// parseFramerate parses a rational like "30000/1001" or a plain decimal.
func parseFramerate(fr string) float64 {
	parts := strings.Split(fr, "/")
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(fr, 64); err == nil {
			return f
		}
		return 0
	}

	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
