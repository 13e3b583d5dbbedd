// Package config provides configuration management for tvjuke using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/tvjuke/tvjuke/internal/season"
)

// Default configuration values.
const (
	defaultServerHost             = "127.0.0.1"
	defaultServerPort             = 3000
	defaultPreprocessedQueueSize  = 3
	defaultPlaybackQueueSize      = 3
	defaultPlaybackQueueThreshold = 1
	defaultPlaybackHistorySize    = 10
	defaultPersistedHistorySize   = 5000
	defaultUpdateInterval         = 15 * time.Minute
	defaultInitTimeout            = 2 * time.Minute
	defaultProbeTimeout           = 30 * time.Second
	defaultTranscodeTimeout       = 10 * time.Minute
	defaultShutdownTimeout        = 10 * time.Second
	defaultInitAttempts           = 3
	defaultInitRetryDelay         = 5 * time.Second
	defaultQueueMonitorInterval   = 30 * time.Second
	defaultCriticalInterval       = 10 * time.Second
	defaultSaveInterval           = 5 * time.Minute
	defaultCleanupInterval        = time.Hour
	defaultMaxOpenConns           = 25
	defaultMaxIdleConns           = 10
	defaultConnMaxIdleTime        = 30 * time.Minute
)

// Config holds all configuration for the application.
type Config struct {
	Directories         []string            `mapstructure:"directories" json:"directories"`
	SeasonalDirectories []SeasonalDirectory `mapstructure:"seasonal_directories" json:"seasonalDirectories"`
	Video               VideoConfig         `mapstructure:"video" json:"video"`
	Audio               AudioConfig         `mapstructure:"audio" json:"audio"`
	Performance         PerformanceConfig   `mapstructure:"performance" json:"performance"`
	Timeouts            TimeoutConfig       `mapstructure:"timeouts" json:"timeouts"`
	Retries             RetryConfig         `mapstructure:"retries" json:"retries"`
	Files               FilesConfig         `mapstructure:"files" json:"files"`
	Network             NetworkConfig       `mapstructure:"network" json:"network"`
	Storage             StorageConfig       `mapstructure:"storage" json:"storage"`
	Database            DatabaseConfig      `mapstructure:"database" json:"database"`
	Logging             LoggingConfig       `mapstructure:"logging" json:"logging"`
	FFmpeg              FFmpegConfig        `mapstructure:"ffmpeg" json:"ffmpeg"`
	Schedules           ScheduleConfig      `mapstructure:"schedules" json:"schedules"`
}

// SeasonalDirectory describes one probability-gated video subdirectory.
type SeasonalDirectory struct {
	Directory string `mapstructure:"directory" json:"directory"`
	// Likelihood is the Bernoulli probability of picking from this directory
	// when its conditions hold. Clamped to [0,1] during validation.
	Likelihood float64           `mapstructure:"likelihood" json:"likelihood"`
	Conditions season.Conditions `mapstructure:"conditions" json:"conditions"`
}

// VideoConfig holds index and queue sizing configuration.
type VideoConfig struct {
	PreprocessedQueueSize                int           `mapstructure:"preprocessed_queue_size" json:"preprocessedQueueSize"`
	PlaybackQueueSize                    int           `mapstructure:"playback_queue_size" json:"playbackQueueSize"`
	PlaybackQueueInitializationThreshold int           `mapstructure:"playback_queue_initialization_threshold" json:"playbackQueueInitializationThreshold"`
	PlaybackHistorySize                  int           `mapstructure:"playback_history_size" json:"playbackHistorySize"`
	PersistedHistorySize                 int           `mapstructure:"persisted_history_size" json:"persistedHistorySize"`
	UpdateInterval                       time.Duration `mapstructure:"update_interval" json:"updateInterval"`
}

// AudioConfig holds audio processing configuration.
type AudioConfig struct {
	Enable51Processing bool `mapstructure:"enable_51_processing" json:"enabled51Processing"`
	// ForceOutputChannels overrides the output channel count (0 = automatic).
	ForceOutputChannels int                 `mapstructure:"force_output_channels" json:"forceOutputChannels"`
	Normalization       NormalizationConfig `mapstructure:"normalization" json:"normalization"`
	StereoUpmixing      UpmixConfig         `mapstructure:"stereo_upmixing" json:"stereoUpmixing"`
	CodecPreferences    CodecPreferences    `mapstructure:"codec_preferences" json:"codecPreferences"`
	Compatibility       CompatibilityConfig `mapstructure:"compatibility" json:"compatibility"`
}

// NormalizationConfig holds loudness normalization configuration.
// Strength selects a preset; explicit non-zero TargetLUFS/TruePeak/LRA
// override the preset per-field.
type NormalizationConfig struct {
	Enabled    bool                           `mapstructure:"enabled" json:"enabled"`
	Strength   string                         `mapstructure:"strength" json:"strength"` // light, standard, aggressive
	Presets    map[string]NormalizationPreset `mapstructure:"presets" json:"presets,omitempty"`
	TargetLUFS float64                        `mapstructure:"target_lufs" json:"targetLUFS,omitempty"`
	TruePeak   float64                        `mapstructure:"true_peak" json:"truePeak,omitempty"`
	LRA        float64                        `mapstructure:"lra" json:"LRA,omitempty"`
	DualMono   bool                           `mapstructure:"dual_mono" json:"dualMono"`
}

// NormalizationPreset is one named loudnorm parameter set.
type NormalizationPreset struct {
	TargetLUFS float64 `mapstructure:"target_lufs" json:"targetLUFS"`
	TruePeak   float64 `mapstructure:"true_peak" json:"truePeak"`
	LRA        float64 `mapstructure:"lra" json:"LRA"`
}

// UpmixConfig holds stereo-to-5.1 mixing levels.
type UpmixConfig struct {
	RearChannelLevel   float64 `mapstructure:"rear_channel_level" json:"rearChannelLevel"`
	CenterChannelLevel float64 `mapstructure:"center_channel_level" json:"centerChannelLevel"`
	LFEChannelLevel    float64 `mapstructure:"lfe_channel_level" json:"lfeChannelLevel"`
}

// CodecPreferences holds output audio codec selection.
type CodecPreferences struct {
	Stereo              string `mapstructure:"stereo" json:"stereo"`
	Multichannel        string `mapstructure:"multichannel" json:"multichannel"`
	StereoBitrate       string `mapstructure:"stereo_bitrate" json:"stereoBitrate"`
	MultichannelBitrate string `mapstructure:"multichannel_bitrate" json:"multichannelBitrate"`
}

// CompatibilityConfig holds audio compatibility behavior.
type CompatibilityConfig struct {
	ForceAAC                       bool   `mapstructure:"force_aac" json:"forceAAC"`
	PreserveOriginalIfMultichannel bool   `mapstructure:"preserve_original_if_multichannel" json:"preserveOriginalIfMultichannel"`
	CompatibilityMode              string `mapstructure:"compatibility_mode" json:"compatibilityMode"` // auto, stereo, full
	FallbackToStereo               bool   `mapstructure:"fallback_to_stereo" json:"fallbackToStereo"`
}

// PerformanceConfig holds transcoder resource configuration.
type PerformanceConfig struct {
	Mode        string                       `mapstructure:"mode" json:"mode"` // quality, balanced, efficiency
	Presets     map[string]PerformancePreset `mapstructure:"presets" json:"presets,omitempty"`
	CPULimiting CPULimitingConfig            `mapstructure:"cpu_limiting" json:"cpuLimiting"`
}

// PerformancePreset is one named resource profile.
type PerformancePreset struct {
	// MaxThreads of 0 resolves to the physical core count at runtime.
	MaxThreads      int           `mapstructure:"max_threads" json:"maxThreads"`
	ProcessingDelay time.Duration `mapstructure:"processing_delay" json:"processingDelay"`
	ThreadQueueSize int           `mapstructure:"thread_queue_size" json:"threadQueueSize"`
}

// CPULimitingConfig holds explicit per-field overrides of the active preset.
type CPULimitingConfig struct {
	Enabled         bool          `mapstructure:"enabled" json:"enabled"`
	MaxThreads      int           `mapstructure:"max_threads" json:"maxThreads"`
	ProcessingDelay time.Duration `mapstructure:"processing_delay" json:"processingDelay"`
	ThreadQueueSize int           `mapstructure:"thread_queue_size" json:"threadQueueSize"`
	Priority        string        `mapstructure:"priority" json:"priority"` // low, normal
}

// TimeoutConfig holds operation deadlines.
type TimeoutConfig struct {
	Initialization time.Duration `mapstructure:"initialization" json:"initialization"`
	Probe          time.Duration `mapstructure:"probe" json:"probe"`
	Transcode      time.Duration `mapstructure:"transcode" json:"transcode"`
	Shutdown       time.Duration `mapstructure:"shutdown" json:"shutdown"`
}

// RetryConfig holds retry behavior for initialization.
type RetryConfig struct {
	MaxInitializationAttempts int           `mapstructure:"max_initialization_attempts" json:"maxInitializationAttempts"`
	InitializationRetryDelay  time.Duration `mapstructure:"initialization_retry_delay" json:"initializationRetryDelay"`
}

// FilesConfig holds file discovery configuration.
type FilesConfig struct {
	SupportedVideoExtensions []string `mapstructure:"supported_video_extensions" json:"supportedVideoExtensions"`
}

// NetworkConfig holds the network surface configuration.
type NetworkConfig struct {
	Server ServerConfig `mapstructure:"server" json:"server"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
	// AutoOpenBrowser is consumed by desktop launchers; the server itself
	// only carries it through /api/config.
	AutoOpenBrowser bool `mapstructure:"auto_open_browser" json:"autoOpenBrowser"`
}

// StorageConfig holds cache and temp directory configuration.
type StorageConfig struct {
	// CacheDir holds index/history/state snapshots and the probe cache.
	CacheDir string `mapstructure:"cache_dir" json:"cacheDir"`
	// TempDir holds processed artifacts. Empty resolves to {cache_dir}/temp.
	TempDir string `mapstructure:"temp_dir" json:"tempDir"`
}

// DatabaseConfig holds the probe cache database configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" json:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn" json:"dsn"`       // empty = {cache_dir}/probe-cache.db (sqlite)
	MaxOpenConns    int           `mapstructure:"max_open_conns" json:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" json:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" json:"connMaxIdleTime"`
	LogLevel        string        `mapstructure:"log_level" json:"logLevel"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format     string `mapstructure:"format" json:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source" json:"addSource"`
	TimeFormat string `mapstructure:"time_format" json:"timeFormat"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path" json:"binaryPath"` // Path to ffmpeg binary (empty = auto-detect)
	ProbePath  string `mapstructure:"probe_path" json:"probePath"`   // Path to ffprobe binary (empty = auto-detect)
}

// ScheduleConfig holds periodic task intervals.
type ScheduleConfig struct {
	QueueMonitorInterval         time.Duration `mapstructure:"queue_monitor_interval" json:"queueMonitorInterval"`
	QueueCriticalMonitorInterval time.Duration `mapstructure:"queue_critical_monitor_interval" json:"queueCriticalMonitorInterval"`
	PeriodicSaveInterval         time.Duration `mapstructure:"periodic_save_interval" json:"periodicSaveInterval"`
	PeriodicCleanupInterval      time.Duration `mapstructure:"periodic_cleanup_interval" json:"periodicCleanupInterval"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with TVJUKE_ and use underscores for nesting.
// Example: TVJUKE_NETWORK_SERVER_PORT=3000.
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// newViper builds a viper instance with defaults, file resolution, and
// environment binding applied.
func newViper(configPath string) *viper.Viper {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tvjuke")
		v.AddConfigPath("$HOME/.tvjuke")
	}

	v.SetEnvPrefix("TVJUKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		intSetHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// intSetHookFunc lets season.IntSet fields accept a bare scalar in YAML,
// mirroring the JSON unmarshaling behavior.
func intSetHookFunc() mapstructure.DecodeHookFunc {
	intSetType := reflect.TypeOf(season.IntSet{})
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != intSetType {
			return data, nil
		}
		switch val := data.(type) {
		case int:
			return season.IntSet{val}, nil
		case int64:
			return season.IntSet{int(val)}, nil
		case float64:
			return season.IntSet{int(val)}, nil
		default:
			return data, nil
		}
	}
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Video defaults
	v.SetDefault("video.preprocessed_queue_size", defaultPreprocessedQueueSize)
	v.SetDefault("video.playback_queue_size", defaultPlaybackQueueSize)
	v.SetDefault("video.playback_queue_initialization_threshold", defaultPlaybackQueueThreshold)
	v.SetDefault("video.playback_history_size", defaultPlaybackHistorySize)
	v.SetDefault("video.persisted_history_size", defaultPersistedHistorySize)
	v.SetDefault("video.update_interval", defaultUpdateInterval)

	// Audio defaults
	v.SetDefault("audio.enable_51_processing", true)
	v.SetDefault("audio.force_output_channels", 0)
	v.SetDefault("audio.normalization.enabled", true)
	v.SetDefault("audio.normalization.strength", "standard")
	v.SetDefault("audio.normalization.dual_mono", true)
	v.SetDefault("audio.stereo_upmixing.rear_channel_level", 0.5)
	v.SetDefault("audio.stereo_upmixing.center_channel_level", 0.5)
	v.SetDefault("audio.stereo_upmixing.lfe_channel_level", 0.3)
	v.SetDefault("audio.codec_preferences.stereo", "aac")
	v.SetDefault("audio.codec_preferences.multichannel", "aac")
	v.SetDefault("audio.codec_preferences.stereo_bitrate", "192k")
	v.SetDefault("audio.codec_preferences.multichannel_bitrate", "384k")
	v.SetDefault("audio.compatibility.force_aac", false)
	v.SetDefault("audio.compatibility.preserve_original_if_multichannel", true)
	v.SetDefault("audio.compatibility.compatibility_mode", "auto")
	v.SetDefault("audio.compatibility.fallback_to_stereo", true)

	// Performance defaults
	v.SetDefault("performance.mode", "balanced")
	v.SetDefault("performance.cpu_limiting.enabled", true)
	v.SetDefault("performance.cpu_limiting.max_threads", 0)
	v.SetDefault("performance.cpu_limiting.processing_delay", time.Duration(0))
	v.SetDefault("performance.cpu_limiting.thread_queue_size", 0)
	v.SetDefault("performance.cpu_limiting.priority", "normal")

	// Timeout defaults
	v.SetDefault("timeouts.initialization", defaultInitTimeout)
	v.SetDefault("timeouts.probe", defaultProbeTimeout)
	v.SetDefault("timeouts.transcode", defaultTranscodeTimeout)
	v.SetDefault("timeouts.shutdown", defaultShutdownTimeout)

	// Retry defaults
	v.SetDefault("retries.max_initialization_attempts", defaultInitAttempts)
	v.SetDefault("retries.initialization_retry_delay", defaultInitRetryDelay)

	// File discovery defaults
	v.SetDefault("files.supported_video_extensions", []string{
		".mp4", ".mkv", ".avi", ".mov", ".webm", ".m4v", ".mpg", ".mpeg", ".wmv", ".flv", ".ts",
	})

	// Network defaults
	v.SetDefault("network.server.host", defaultServerHost)
	v.SetDefault("network.server.port", defaultServerPort)
	v.SetDefault("network.server.auto_open_browser", false)

	// Storage defaults
	v.SetDefault("storage.cache_dir", "./data")
	v.SetDefault("storage.temp_dir", "")

	// Database defaults (probe cache)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")

	// Schedule defaults
	v.SetDefault("schedules.queue_monitor_interval", defaultQueueMonitorInterval)
	v.SetDefault("schedules.queue_critical_monitor_interval", defaultCriticalInterval)
	v.SetDefault("schedules.periodic_save_interval", defaultSaveInterval)
	v.SetDefault("schedules.periodic_cleanup_interval", defaultCleanupInterval)
}

// Validate checks the configuration for errors and normalizes out-of-range
// values that have a safe interpretation. An empty directory list is allowed
// here; it surfaces as an initialization error once indexing finds nothing.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Network.Server.Port < 1 || c.Network.Server.Port > maxPort {
		return fmt.Errorf("network.server.port must be between 1 and %d", maxPort)
	}

	// Queue sizing: clamp rather than reject, a zero-size queue is never useful
	if c.Video.PreprocessedQueueSize < 1 {
		c.Video.PreprocessedQueueSize = 1
	}
	if c.Video.PlaybackQueueSize < 1 {
		c.Video.PlaybackQueueSize = 1
	}
	if c.Video.PlaybackQueueInitializationThreshold < 1 {
		c.Video.PlaybackQueueInitializationThreshold = 1
	}
	if c.Video.PlaybackHistorySize < 1 {
		c.Video.PlaybackHistorySize = 1
	}
	if c.Video.PersistedHistorySize < 1 {
		c.Video.PersistedHistorySize = 1
	}
	if c.Video.UpdateInterval <= 0 {
		c.Video.UpdateInterval = defaultUpdateInterval
	}

	// Seasonal likelihood clamping
	for i := range c.SeasonalDirectories {
		if c.SeasonalDirectories[i].Likelihood < 0 {
			c.SeasonalDirectories[i].Likelihood = 0
		}
		if c.SeasonalDirectories[i].Likelihood > 1 {
			c.SeasonalDirectories[i].Likelihood = 1
		}
	}

	// Performance mode coercion
	switch c.Performance.Mode {
	case "quality", "balanced", "efficiency":
	default:
		c.Performance.Mode = "balanced"
	}

	// Compatibility mode
	switch c.Audio.Compatibility.CompatibilityMode {
	case "auto", "stereo", "full":
	default:
		return fmt.Errorf("audio.compatibility.compatibility_mode must be one of: auto, stereo, full")
	}

	// Timeouts must be positive
	if c.Timeouts.Initialization <= 0 || c.Timeouts.Probe <= 0 || c.Timeouts.Transcode <= 0 {
		return fmt.Errorf("timeouts must be positive durations")
	}
	if c.Retries.MaxInitializationAttempts < 1 {
		return fmt.Errorf("retries.max_initialization_attempts must be at least 1")
	}
	if c.Retries.InitializationRetryDelay < 0 {
		return fmt.Errorf("retries.initialization_retry_delay must not be negative")
	}

	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}

	// Storage validation
	if c.Storage.CacheDir == "" {
		return fmt.Errorf("storage.cache_dir is required")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TempPath returns the directory holding processed artifacts.
func (c *StorageConfig) TempPath() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return filepath.Join(c.CacheDir, "temp")
}

// IndexPath returns the location of the regular video index snapshot.
func (c *StorageConfig) IndexPath() string {
	return filepath.Join(c.CacheDir, "video-index.json")
}

// SeasonalIndexPath returns the location of the seasonal index snapshot.
func (c *StorageConfig) SeasonalIndexPath() string {
	return filepath.Join(c.CacheDir, "seasonal-video-index.json")
}

// HistoryPath returns the location of the persisted history snapshot.
func (c *StorageConfig) HistoryPath() string {
	return filepath.Join(c.CacheDir, "persisted-history.json")
}

// QueueStatePath returns the location of the queue state snapshot.
func (c *StorageConfig) QueueStatePath() string {
	return filepath.Join(c.CacheDir, "queue-state.json")
}

// ResolvedDSN returns the DSN, defaulting sqlite databases into the cache dir.
func (c *DatabaseConfig) ResolvedDSN(cacheDir string) string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == "sqlite" {
		return filepath.Join(cacheDir, "probe-cache.db")
	}
	return c.DSN
}
