package index

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tvjuke/tvjuke/internal/config"
	"github.com/tvjuke/tvjuke/internal/metrics"
	"github.com/tvjuke/tvjuke/internal/util"
)

// seasonalSnapshot is the on-disk form of the seasonal index.
type seasonalSnapshot struct {
	SavedAt        time.Time               `json:"savedAt"`
	ConfigHash     string                  `json:"configHash,omitempty"`
	SeasonalVideos map[string][]VideoEntry `json:"seasonalVideos"`
}

// Options configures an Index.
type Options struct {
	Directories         []string
	SeasonalDirectories []config.SeasonalDirectory
	Extensions          []string
	IndexPath           string
	SeasonalIndexPath   string
	// ConfigHash fingerprints the index-relevant configuration. A cached
	// snapshot written under a different hash is rebuilt.
	ConfigHash string
}

// Index holds the regular and seasonal video catalogs and serves random
// selection. Safe for concurrent use.
type Index struct {
	opts    Options
	scanner *Scanner
	logger  *slog.Logger

	mu       sync.RWMutex
	regular  []VideoEntry
	seasonal map[string][]VideoEntry
	updated  time.Time

	now       func() time.Time
	randFloat func() float64
	randIntN  func(int) int
}

// New creates an Index. Call Load to populate it from the snapshots or a scan.
func New(opts Options, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		opts:      opts,
		scanner:   NewScanner(opts.Extensions, logger),
		logger:    logger,
		seasonal:  make(map[string][]VideoEntry),
		now:       time.Now,
		randFloat: rand.Float64,
		randIntN:  rand.Intn,
	}
}

// WithClock overrides the time source. Used by tests.
func (ix *Index) WithClock(now func() time.Time) *Index {
	ix.now = now
	ix.scanner.WithClock(now)
	return ix
}

// WithRand overrides the random sources. Used by tests.
func (ix *Index) WithRand(randFloat func() float64, randIntN func(int) int) *Index {
	ix.randFloat = randFloat
	ix.randIntN = randIntN
	return ix
}

// Load restores the index from its snapshots, rebuilding from a filesystem
// scan when any snapshot is missing, the config hash changed, or the seasonal
// directory set no longer matches the cached one.
func (ix *Index) Load(ctx context.Context, onProgress ProgressFunc) error {
	if ix.needsRebuild() {
		return ix.Rebuild(ctx, onProgress)
	}

	var regular []VideoEntry
	if err := util.ReadJSON(ix.opts.IndexPath, &regular); err != nil {
		ix.logger.Warn("video index snapshot unreadable, rebuilding",
			slog.String("error", err.Error()))
		return ix.Rebuild(ctx, onProgress)
	}

	var seasonal seasonalSnapshot
	if err := util.ReadJSON(ix.opts.SeasonalIndexPath, &seasonal); err != nil {
		ix.logger.Warn("seasonal index snapshot unreadable, rebuilding",
			slog.String("error", err.Error()))
		return ix.Rebuild(ctx, onProgress)
	}

	ix.mu.Lock()
	ix.regular = regular
	ix.seasonal = seasonal.SeasonalVideos
	if ix.seasonal == nil {
		ix.seasonal = make(map[string][]VideoEntry)
	}
	ix.updated = seasonal.SavedAt
	ix.mu.Unlock()

	metrics.IndexVideosTotal.Set(float64(len(regular)))
	metrics.IndexSeasonalVideosTotal.Set(float64(ix.SeasonalCount()))

	ix.logger.Info("video index loaded from snapshot",
		slog.Int("videos", len(regular)),
		slog.Int("seasonal_directories", len(seasonal.SeasonalVideos)))
	return nil
}

// Rebuild scans all configured directories and replaces both catalogs,
// persisting fresh snapshots.
func (ix *Index) Rebuild(ctx context.Context, onProgress ProgressFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	regular := ix.scanner.ScanDirectories(ix.opts.Directories, onProgress)

	seasonal := make(map[string][]VideoEntry, len(ix.opts.SeasonalDirectories))
	for _, sd := range ix.opts.SeasonalDirectories {
		if err := ctx.Err(); err != nil {
			return err
		}
		seasonal[sd.Directory] = ix.scanner.ScanSeasonal(sd.Directory)
	}

	now := ix.now()
	ix.mu.Lock()
	ix.regular = regular
	ix.seasonal = seasonal
	ix.updated = now
	ix.mu.Unlock()

	metrics.IndexVideosTotal.Set(float64(len(regular)))
	seasonalTotal := 0
	for _, entries := range seasonal {
		seasonalTotal += len(entries)
	}
	metrics.IndexSeasonalVideosTotal.Set(float64(seasonalTotal))

	ix.logger.Info("video index rebuilt",
		slog.Int("videos", len(regular)),
		slog.Int("seasonal_directories", len(seasonal)))

	return ix.save(now)
}

// Refresh rescans and reports how many entries were added or removed compared
// to the previous catalog, measured by path set difference.
func (ix *Index) Refresh(ctx context.Context) (delta int, err error) {
	ix.mu.RLock()
	before := make(map[string]bool, len(ix.regular))
	for _, e := range ix.regular {
		before[e.OriginalPath] = true
	}
	ix.mu.RUnlock()

	if err := ix.Rebuild(ctx, nil); err != nil {
		return 0, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	after := make(map[string]bool, len(ix.regular))
	for _, e := range ix.regular {
		after[e.OriginalPath] = true
		if !before[e.OriginalPath] {
			delta++
		}
	}
	for path := range before {
		if !after[path] {
			delta++
		}
	}
	return delta, nil
}

func (ix *Index) save(now time.Time) error {
	ix.mu.RLock()
	regular := ix.regular
	seasonal := ix.seasonal
	ix.mu.RUnlock()

	if err := util.WriteJSONAtomic(ix.opts.IndexPath, regular); err != nil {
		return err
	}
	return util.WriteJSONAtomic(ix.opts.SeasonalIndexPath, seasonalSnapshot{
		SavedAt:        now,
		ConfigHash:     ix.opts.ConfigHash,
		SeasonalVideos: seasonal,
	})
}

// DiscardSnapshots removes the on-disk catalogs so the next Load rescans.
// Called when the index-relevant configuration changes under a running server.
func (ix *Index) DiscardSnapshots() {
	for _, path := range []string{ix.opts.IndexPath, ix.opts.SeasonalIndexPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			ix.logger.Warn("removing index snapshot", slog.String("path", path), slog.Any("error", err))
		}
	}
}

// needsRebuild checks whether the cached snapshots can be trusted.
func (ix *Index) needsRebuild() bool {
	if !util.PathExists(ix.opts.IndexPath) || !util.PathExists(ix.opts.SeasonalIndexPath) {
		return true
	}

	var snap seasonalSnapshot
	if err := util.ReadJSON(ix.opts.SeasonalIndexPath, &snap); err != nil {
		return true
	}
	if snap.ConfigHash != ix.opts.ConfigHash {
		ix.logger.Info("config hash changed, index rebuild required")
		return true
	}

	cached := make([]string, 0, len(snap.SeasonalVideos))
	for dir := range snap.SeasonalVideos {
		cached = append(cached, dir)
	}
	configured := make([]string, 0, len(ix.opts.SeasonalDirectories))
	for _, sd := range ix.opts.SeasonalDirectories {
		configured = append(configured, sd.Directory)
	}
	sort.Strings(cached)
	sort.Strings(configured)
	if len(cached) != len(configured) {
		return true
	}
	for i := range cached {
		if cached[i] != configured[i] {
			return true
		}
	}
	return false
}

// Count returns the number of regular entries.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.regular)
}

// SeasonalCount returns the total number of seasonal entries.
func (ix *Index) SeasonalCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	total := 0
	for _, entries := range ix.seasonal {
		total += len(entries)
	}
	return total
}

// LastUpdated returns when the catalogs were last written.
func (ix *Index) LastUpdated() time.Time {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.updated
}

// Random picks the next video. Each seasonal directory whose conditions hold
// right now gets an independent Bernoulli trial in configuration order; the
// first winning trial picks uniformly from that directory's non-excluded
// entries. When no trial wins, the pick falls through to a uniform draw over
// the non-excluded regular entries. Returns nil when no candidate remains.
func (ix *Index) Random(excludePaths []string) *VideoEntry {
	exclude := make(map[string]bool, len(excludePaths))
	for _, p := range excludePaths {
		exclude[p] = true
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if entry := ix.randomSeasonal(exclude); entry != nil {
		return entry
	}
	return ix.pickUniform(ix.regular, exclude)
}

func (ix *Index) randomSeasonal(exclude map[string]bool) *VideoEntry {
	now := ix.now()
	for _, sd := range ix.opts.SeasonalDirectories {
		if !sd.Conditions.Matches(now) {
			continue
		}
		if ix.randFloat() >= sd.Likelihood {
			continue
		}
		if entry := ix.pickUniform(ix.seasonal[sd.Directory], exclude); entry != nil {
			ix.logger.Debug("seasonal selection",
				slog.String("directory", sd.Directory),
				slog.String("video", entry.Filename))
			return entry
		}
	}
	return nil
}

func (ix *Index) pickUniform(entries []VideoEntry, exclude map[string]bool) *VideoEntry {
	candidates := make([]VideoEntry, 0, len(entries))
	for _, e := range entries {
		if !exclude[e.OriginalPath] {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	picked := candidates[ix.randIntN(len(candidates))]
	return &picked
}
