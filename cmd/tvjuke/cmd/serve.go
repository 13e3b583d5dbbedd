package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tvjuke/tvjuke/internal/config"
	"github.com/tvjuke/tvjuke/internal/database"
	"github.com/tvjuke/tvjuke/internal/ffmpeg"
	"github.com/tvjuke/tvjuke/internal/history"
	internalhttp "github.com/tvjuke/tvjuke/internal/http"
	"github.com/tvjuke/tvjuke/internal/http/handlers"
	"github.com/tvjuke/tvjuke/internal/index"
	"github.com/tvjuke/tvjuke/internal/metrics"
	"github.com/tvjuke/tvjuke/internal/queue"
	"github.com/tvjuke/tvjuke/internal/reprocess"
	"github.com/tvjuke/tvjuke/internal/repository"
	"github.com/tvjuke/tvjuke/internal/scheduler"
	"github.com/tvjuke/tvjuke/internal/service/logs"
	"github.com/tvjuke/tvjuke/internal/startup"
	"github.com/tvjuke/tvjuke/internal/state"
	"github.com/tvjuke/tvjuke/internal/transcode"
	"github.com/tvjuke/tvjuke/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tvjuke server",
	Long: `Start the tvjuke HTTP server and API.

The server provides:
- REST API for the playback flow (next/previous video, history, stats)
- Byte-range video streaming at /videos
- WebSocket push notifications at /ws
- Health check endpoint and Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().Int("port", 3000, "Port to listen on")
	serveCmd.Flags().StringSlice("directory", nil, "Video directory to index (repeatable)")

	mustBindPFlag("network.server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("network.server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("directories", serveCmd.Flags().Lookup("directory"))
}

func runServe(cmd *cobra.Command, args []string) error {
	// Tee all slog output into the in-memory log service so the API and
	// WebSocket stream can replay it.
	logsService := logs.New()
	slog.SetDefault(slog.New(logsService.WrapHandler(slog.Default().Handler())))
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	configHash := cfg.Hash()

	for _, dir := range []string{cfg.Storage.CacheDir, cfg.Storage.TempPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Probe cache database.
	dbCfg := cfg.Database
	dbCfg.DSN = dbCfg.ResolvedDSN(cfg.Storage.CacheDir)
	db, err := database.New(dbCfg, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	probeRepo := repository.NewProbeRecordRepository(db.DB)

	// FFmpeg binaries.
	detector := ffmpeg.NewBinaryDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	binaries, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detecting ffmpeg: %w", err)
	}
	logger.Info("ffmpeg detected",
		slog.String("path", binaries.FFmpegPath),
		slog.String("version", binaries.Version))

	prober := ffmpeg.NewProber(binaries.FFprobePath).WithTimeout(cfg.Timeouts.Probe)
	cachedProber := ffmpeg.NewCachedProber(prober, probeRepo, logger)

	transcoder := transcode.New(cfg, binaries.FFmpegPath, cachedProber, logger)

	idx := index.New(index.Options{
		Directories:         cfg.Directories,
		SeasonalDirectories: cfg.SeasonalDirectories,
		Extensions:          cfg.Files.SupportedVideoExtensions,
		IndexPath:           cfg.Storage.IndexPath(),
		SeasonalIndexPath:   cfg.Storage.SeasonalIndexPath(),
		ConfigHash:          configHash,
	}, logger)

	q := queue.New(cfg.Video.PreprocessedQueueSize, idx, transcoder, logger)

	historyMgr := history.New(
		cfg.Video.PlaybackHistorySize,
		cfg.Video.PersistedHistorySize,
		cfg.Storage.HistoryPath(),
		logger)
	historyMgr.Load()

	store := state.NewStore(cfg.Storage.QueueStatePath(), cfg.Storage.TempPath(), configHash, logger)

	// Restore the previous session's queue before sweeping so surviving
	// artifacts are preserved.
	snapshot := store.Load()
	preserve := make(map[string]bool)
	if snapshot != nil {
		for _, art := range snapshot.CombinedQueue {
			preserve[filepath.Base(art.ProcessedPath)] = true
		}
		for _, entry := range snapshot.PlaybackHistory {
			preserve[filepath.Base(entry.ProcessedPath)] = true
		}
	}
	for _, entry := range historyMgr.PlaybackEntries() {
		preserve[filepath.Base(entry.ProcessedPath)] = true
	}
	if removed, err := startup.SweepTempFiles(logger, cfg.Storage.TempPath(), preserve); err != nil {
		logger.Warn("temp sweep failed", slog.String("error", err.Error()))
	} else if removed > 0 {
		logger.Info("removed stale processed files on startup", slog.Int("removed_count", removed))
	}
	if snapshot != nil {
		for i := range snapshot.CombinedQueue {
			art := snapshot.CombinedQueue[i]
			q.Push(&art)
		}
		logger.Info("restored queue from saved state",
			slog.Int("artifacts", len(snapshot.CombinedQueue)))
	}

	reprocessor := reprocess.New(transcoder, logger)
	counters := &state.SessionCounters{}

	statsProvider := func() state.Stats {
		qs := q.Stats()
		played, skips, returns, playbackErrors := counters.Values()
		return state.Stats{
			TotalVideos:             idx.Count(),
			PreprocessedCount:       qs.Current,
			ErrorCount:              qs.ErrorCount + playbackErrors,
			VideosPlayedThisSession: played,
			ManualSkipsThisSession:  skips,
			ReturnsThisSession:      returns,
			LastIndexUpdate:         idx.LastUpdated(),
		}
	}
	saveState := func() error {
		liveQueue := artifactValues(q.Snapshot())
		playback := historyMgr.PlaybackEntries()
		if err := store.Save(nil, liveQueue, playback, statsProvider()); err != nil {
			return err
		}
		// A fresh snapshot shrinks the preserve set; sweep right away.
		return store.CleanTemp(liveQueue, playback)
	}

	// Initialization controller with WebSocket progress updates.
	var controller *startup.Controller
	hub := internalhttp.NewHub(func() startup.State {
		if controller == nil {
			return startup.State{Stage: startup.StageNotStarted}
		}
		return controller.State()
	}, logger)
	go hub.Run()
	defer hub.Close()
	go hub.StreamLogs(ctx, logsService)

	controller = startup.NewController(startup.Hooks{
		LoadConfig: func(ctx context.Context) error {
			return cfg.Validate()
		},
		BuildIndex: func(ctx context.Context, onProgress index.ProgressFunc) (int, error) {
			if err := idx.Load(ctx, onProgress); err != nil {
				return 0, err
			}
			return idx.Count(), nil
		},
		FillQueue: func(ctx context.Context, onProgress func(processed, target int)) error {
			return q.Fill(ctx, cfg.Video.PlaybackQueueInitializationThreshold, queue.ProgressFunc(onProgress))
		},
	}, hub,
		cfg.Retries.MaxInitializationAttempts,
		cfg.Retries.InitializationRetryDelay,
		cfg.Timeouts.Initialization,
		logger)

	// Background workers.
	q.Start(ctx)
	q.StartMonitoring(ctx, cfg.Schedules.QueueMonitorInterval, cfg.Schedules.QueueCriticalMonitorInterval)
	historyMgr.Start(ctx)

	go func() {
		if err := controller.Run(ctx); err != nil {
			logger.Error("initialization failed", slog.String("error", err.Error()))
			return
		}
		// Top up from the startup threshold to the full queue size.
		q.TriggerRefill()
	}()
	controller.StartCompleteGuard(ctx, cfg.Schedules.QueueMonitorInterval)

	// Periodic maintenance.
	sched := scheduler.New(logger)
	jobs := scheduler.MaintenanceJobs(scheduler.MaintenanceDeps{
		Index:        idx,
		ClearQueue:   q.Clear,
		DiscardState: store.Discard,
		CleanTemp: func() error {
			return store.CleanTemp(artifactValues(q.Snapshot()), historyMgr.PlaybackEntries())
		},
		SaveState: saveState,
	},
		cfg.Video.UpdateInterval,
		cfg.Schedules.PeriodicCleanupInterval,
		cfg.Schedules.PeriodicSaveInterval,
		logger)
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			return fmt.Errorf("scheduling maintenance: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// Config file changes take effect on restart. When the relevant hash
	// moved, the queue snapshot and index catalogs are stale; discard them
	// so the next start rebuilds instead of restoring against the old
	// directory set.
	if err := config.Watch(cfgFile, logger, func(newCfg *config.Config) {
		if newCfg.Hash() != configHash {
			logger.Warn("configuration changed on disk, discarding cached state; restart to apply")
			store.Discard()
			idx.DiscardSnapshots()
		}
	}); err != nil {
		logger.Warn("config watching disabled", slog.String("error", err.Error()))
	}

	// Metrics.
	metrics.Register(prometheus.DefaultRegisterer)

	// HTTP server.
	serverConfig := internalhttp.DefaultServerConfig()
	serverConfig.Host = cfg.Network.Server.Host
	serverConfig.Port = cfg.Network.Server.Port
	serverConfig.ShutdownTimeout = cfg.Timeouts.Shutdown
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	handlers.NewHealthHandler(version.Version).WithDB(db.DB).Register(server.API())
	handlers.NewConfigHandler(func() *config.Config { return cfg }).Register(server.API())
	handlers.NewStatusHandler(q, controller, statsProvider, historyMgr, cfg.Video.UpdateInterval).Register(server.API())
	handlers.NewVideoHandler(q, historyMgr, reprocessor, counters, logger).Register(server.API())
	handlers.NewLogsHandler(logsService).Register(server.API())

	streamHandler := handlers.NewStreamHandler(cfg.Storage.TempPath(), logger)
	server.Router().Handle("/videos", streamHandler)
	server.Router().Get("/ws", hub.HandleWS)
	server.Router().Handle("/metrics", promhttp.Handler())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting tvjuke server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version))

	err = server.ListenAndServe(ctx)

	// Persist session state so the next start can resume playback.
	if saveErr := saveState(); saveErr != nil {
		logger.Warn("saving state on shutdown failed", slog.String("error", saveErr.Error()))
	}
	if flushErr := historyMgr.Flush(); flushErr != nil {
		logger.Warn("flushing history on shutdown failed", slog.String("error", flushErr.Error()))
	}

	return err
}

func artifactValues(items []*queue.Artifact) []queue.Artifact {
	out := make([]queue.Artifact, 0, len(items))
	for _, art := range items {
		out = append(out, *art)
	}
	return out
}
