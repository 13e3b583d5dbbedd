package ffmpeg

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats is the peak resource usage observed for one FFmpeg process.
type ProcessStats struct {
	PID            int           `json:"pid"`
	CPUPercent     float64       `json:"cpu_percent"`
	MemoryRSSBytes uint64        `json:"memory_rss_bytes"`
	Samples        int           `json:"samples"`
	Duration       time.Duration `json:"duration"`
}

// ProcessMonitor samples CPU and memory usage of a running FFmpeg process and
// keeps the peak values. Sampling errors (the process exiting between samples)
// end the loop silently.
type ProcessMonitor struct {
	pid       int
	interval  time.Duration
	startedAt time.Time

	mu   sync.RWMutex
	peak ProcessStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a monitor for the given PID.
func NewProcessMonitor(pid int) *ProcessMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessMonitor{
		pid:       pid,
		interval:  time.Second,
		startedAt: time.Now(),
		peak:      ProcessStats{PID: pid},
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins sampling in the background.
func (pm *ProcessMonitor) Start() {
	pm.wg.Add(1)
	go pm.loop()
}

// Stop ends sampling and waits for the loop to exit.
func (pm *ProcessMonitor) Stop() {
	pm.cancel()
	pm.wg.Wait()
}

// Peak returns the peak usage observed so far.
func (pm *ProcessMonitor) Peak() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	stats := pm.peak
	stats.Duration = time.Since(pm.startedAt)
	return stats
}

func (pm *ProcessMonitor) loop() {
	defer pm.wg.Done()

	proc, err := process.NewProcess(int32(pm.pid))
	if err != nil {
		return
	}

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.sample(proc)
		}
	}
}

func (pm *ProcessMonitor) sample(proc *process.Process) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.peak.Samples++

	if cpu, err := proc.CPUPercent(); err == nil && cpu > pm.peak.CPUPercent {
		pm.peak.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil && mem.RSS > pm.peak.MemoryRSSBytes {
		pm.peak.MemoryRSSBytes = mem.RSS
	}
}
