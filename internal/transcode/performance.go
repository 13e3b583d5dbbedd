package transcode

import (
	"time"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/tvjuke/tvjuke/internal/config"
)

// resourceLimits is the resolved throttle configuration for transcode jobs.
type resourceLimits struct {
	MaxThreads      int
	ProcessingDelay time.Duration
	ThreadQueueSize int
}

// builtinPerformancePresets map mode names to default resource limits.
// MaxThreads 0 means all physical cores.
var builtinPerformancePresets = map[string]config.PerformancePreset{
	"quality":    {MaxThreads: 0, ProcessingDelay: 0, ThreadQueueSize: 1024},
	"balanced":   {MaxThreads: 2, ProcessingDelay: 500 * time.Millisecond, ThreadQueueSize: 512},
	"efficiency": {MaxThreads: 1, ProcessingDelay: 2 * time.Second, ThreadQueueSize: 256},
}

// resolveLimits expands the performance mode preset and applies cpu_limiting
// overrides, then clamps threads to the machine's physical core count.
func resolveLimits(cfg config.PerformanceConfig) resourceLimits {
	preset, ok := cfg.Presets[cfg.Mode]
	if !ok {
		preset, ok = builtinPerformancePresets[cfg.Mode]
		if !ok {
			preset = builtinPerformancePresets["balanced"]
		}
	}
	limits := resourceLimits{
		MaxThreads:      preset.MaxThreads,
		ProcessingDelay: preset.ProcessingDelay,
		ThreadQueueSize: preset.ThreadQueueSize,
	}

	if cfg.CPULimiting.Enabled {
		if cfg.CPULimiting.MaxThreads > 0 {
			limits.MaxThreads = cfg.CPULimiting.MaxThreads
		}
		if cfg.CPULimiting.ProcessingDelay > 0 {
			limits.ProcessingDelay = cfg.CPULimiting.ProcessingDelay
		}
		if cfg.CPULimiting.ThreadQueueSize > 0 {
			limits.ThreadQueueSize = cfg.CPULimiting.ThreadQueueSize
		}
	}

	cores := physicalCores()
	if limits.MaxThreads <= 0 || limits.MaxThreads > cores {
		limits.MaxThreads = cores
	}
	return limits
}

// physicalCores reports the physical core count, falling back to 1.
func physicalCores() int {
	n, err := cpu.Counts(false)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
