// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TranscodeJobsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tvjuke",
		Name:      "transcode_jobs_total",
		Help:      "Total number of transcode jobs started.",
	})

	TranscodeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tvjuke",
		Name:      "transcode_failures_total",
		Help:      "Total number of transcode jobs that failed after all retries.",
	})

	TranscodeStereoFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tvjuke",
		Name:      "transcode_stereo_fallbacks_total",
		Help:      "Total number of transcode jobs retried in stereo compatibility mode.",
	})

	TranscodeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tvjuke",
		Name:      "transcode_duration_seconds",
		Help:      "Duration of FFmpeg transcode jobs in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tvjuke",
		Name:      "queue_depth",
		Help:      "Current number of preprocessed artifacts in the queue.",
	})

	QueueFillsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tvjuke",
		Name:      "queue_fills_total",
		Help:      "Total number of queue fill operations.",
	})

	QueueEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tvjuke",
		Name:      "queue_evictions_total",
		Help:      "Total number of artifacts evicted because their file disappeared.",
	})

	IndexVideosTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tvjuke",
		Name:      "index_videos_total",
		Help:      "Current number of videos in the regular index.",
	})

	IndexSeasonalVideosTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tvjuke",
		Name:      "index_seasonal_videos_total",
		Help:      "Current number of videos in the seasonal index.",
	})

	VideosServedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tvjuke",
		Name:      "videos_served_total",
		Help:      "Total number of videos handed to clients via the next-video endpoint.",
	})

	ProbeCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tvjuke",
		Name:      "probe_cache_hits_total",
		Help:      "Total number of probe requests served from the cache.",
	})

	ProbeCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tvjuke",
		Name:      "probe_cache_misses_total",
		Help:      "Total number of probe requests that ran ffprobe.",
	})

	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tvjuke",
		Name:      "websocket_clients",
		Help:      "Number of currently connected WebSocket clients.",
	})
)

// Register registers all collectors on the given registerer.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		TranscodeJobsTotal,
		TranscodeFailuresTotal,
		TranscodeStereoFallbacksTotal,
		TranscodeDuration,
		QueueDepth,
		QueueFillsTotal,
		QueueEvictionsTotal,
		IndexVideosTotal,
		IndexSeasonalVideosTotal,
		VideosServedTotal,
		ProbeCacheHitsTotal,
		ProbeCacheMissesTotal,
		WebsocketClients,
	)
}
