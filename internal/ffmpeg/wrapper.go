// Package ffmpeg provides FFmpeg/FFprobe binary detection, probing, and
// command execution for the transcoding pipeline.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// stderrTailLimit bounds how much captured stderr a failed run reports.
const stderrTailLimit = 4096

// Command is one FFmpeg invocation.
type Command struct {
	Binary string
	Args   []string
	Input  string
	Output string

	mu      sync.RWMutex
	cmd     *exec.Cmd
	started time.Time
	monitor *ProcessMonitor
}

// CommandBuilder builds FFmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	input      string
	outputArgs []string
	output     string
	logLevel   string
	overwrite  bool
}

// NewCommandBuilder creates a builder for the given ffmpeg binary.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// InputArgs adds arbitrary input arguments.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// ThreadQueueSize sets the input thread queue size.
func (b *CommandBuilder) ThreadQueueSize(size int) *CommandBuilder {
	if size > 0 {
		b.inputArgs = append(b.inputArgs, "-thread_queue_size", strconv.Itoa(size))
	}
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// AudioBitrate sets the audio bitrate.
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	if bitrate != "" {
		b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	}
	return b
}

// AudioChannels sets the number of output audio channels.
func (b *CommandBuilder) AudioChannels(channels int) *CommandBuilder {
	if channels > 0 {
		b.outputArgs = append(b.outputArgs, "-ac", strconv.Itoa(channels))
	}
	return b
}

// AudioFilter sets the audio filter chain.
func (b *CommandBuilder) AudioFilter(filter string) *CommandBuilder {
	if filter != "" {
		b.outputArgs = append(b.outputArgs, "-af", filter)
	}
	return b
}

// Threads limits the number of encoding threads.
func (b *CommandBuilder) Threads(threads int) *CommandBuilder {
	if threads > 0 {
		b.outputArgs = append(b.outputArgs, "-threads", strconv.Itoa(threads))
	}
	return b
}

// Preset sets the encoder preset.
func (b *CommandBuilder) Preset(preset string) *CommandBuilder {
	if preset != "" {
		b.outputArgs = append(b.outputArgs, "-preset", preset)
	}
	return b
}

// MP4FaststartArgs adds the MP4 container arguments for progressive playback:
// the moov atom is moved to the front so clients can start playing before the
// whole file arrives.
func (b *CommandBuilder) MP4FaststartArgs() *CommandBuilder {
	b.outputArgs = append(b.outputArgs,
		"-movflags", "+faststart",
		"-f", "mp4",
	)
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build assembles the command.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)
	if b.overwrite {
		args = append(args, "-y")
	}
	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)
	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary: b.binary,
		Args:   args,
		Input:  b.input,
		Output: b.output,
	}
}

// String returns the command line for logging.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Run executes the command and waits for completion. On failure the returned
// error carries the tail of FFmpeg's stderr, which callers inspect to decide
// whether a compatibility retry is worthwhile. Resource usage is sampled
// while the process runs; PeakStats reports it afterwards.
func (c *Command) Run(ctx context.Context) error {
	c.mu.Lock()
	c.cmd = exec.CommandContext(ctx, c.Binary, c.Args...)
	c.started = time.Now()
	cmd := c.cmd
	c.mu.Unlock()

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	c.mu.Lock()
	c.monitor = NewProcessMonitor(cmd.Process.Pid)
	c.monitor.Start()
	monitor := c.monitor
	c.mu.Unlock()

	err := cmd.Wait()
	monitor.Stop()

	if err != nil {
		tail := stderr.String()
		if len(tail) > stderrTailLimit {
			tail = tail[len(tail)-stderrTailLimit:]
		}
		return &RunError{Err: err, Stderr: strings.TrimSpace(tail)}
	}
	return nil
}

// Duration returns how long the command has been running.
func (c *Command) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// PeakStats returns the peak resource usage observed during Run, or nil when
// the command has not run.
func (c *Command) PeakStats() *ProcessStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.monitor == nil {
		return nil
	}
	stats := c.monitor.Peak()
	return &stats
}

// RunError is a failed FFmpeg run together with the captured stderr tail.
type RunError struct {
	Err    error
	Stderr string
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Stderr == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Stderr)
}

// Unwrap exposes the underlying process error.
func (e *RunError) Unwrap() error {
	return e.Err
}
