package startup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tvjuke/tvjuke/internal/index"
	"github.com/tvjuke/tvjuke/internal/models"
)

// Initialization stages, in order of progress.
const (
	StageNotStarted    = "not_started"
	StageLoadingConfig = "loading_config"
	StageBuildingIndex = "building_index"
	StageFillingQueue  = "filling_queue"
	StageRetrying      = "retrying"
	StageComplete      = "complete"
	StageError         = "error"
)

// State is the published initialization snapshot.
type State struct {
	Stage    string `json:"stage"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	Error    string `json:"error,omitempty"`
}

// Broadcaster pushes initialization updates to connected clients.
type Broadcaster interface {
	BroadcastInitialization(state State)
}

// Hooks are the stage implementations the controller drives. Each is called
// once per attempt.
type Hooks struct {
	// LoadConfig revalidates configuration before indexing.
	LoadConfig func(ctx context.Context) error
	// BuildIndex populates the video index and returns the total count.
	BuildIndex func(ctx context.Context, onProgress index.ProgressFunc) (total int, err error)
	// FillQueue preprocesses videos up to the startup threshold.
	FillQueue func(ctx context.Context, onProgress func(processed, target int)) error
}

// Controller runs the staged initialization with retries and publishes
// state transitions.
type Controller struct {
	hooks       Hooks
	broadcaster Broadcaster
	logger      *slog.Logger

	maxAttempts int
	retryDelay  time.Duration
	timeout     time.Duration

	mu               sync.Mutex
	state            State
	completeObserved bool

	sleep func(ctx context.Context, d time.Duration) error
}

// NewController creates an initialization controller.
func NewController(hooks Hooks, broadcaster Broadcaster, maxAttempts int, retryDelay, timeout time.Duration, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Controller{
		hooks:       hooks,
		broadcaster: broadcaster,
		logger:      logger.With(slog.String("component", "startup")),
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		timeout:     timeout,
		state:       State{Stage: StageNotStarted},
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State returns the current published state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) publish(state State) {
	c.mu.Lock()
	c.state = state
	if state.Stage == StageComplete {
		c.completeObserved = true
	}
	c.mu.Unlock()

	c.logger.Info("initialization stage",
		slog.String("stage", state.Stage),
		slog.Int("progress", state.Progress),
		slog.String("message", state.Message))
	if c.broadcaster != nil {
		c.broadcaster.BroadcastInitialization(state)
	}
}

// Run executes the initialization pipeline. The whole run is bounded by the
// configured timeout; each failed attempt backs off proportionally to the
// attempt number. A zero-video index terminates in error immediately.
func (c *Controller) Run(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.retryDelay * time.Duration(attempt-1)
			c.publish(State{
				Stage:    StageRetrying,
				Progress: 0,
				Message:  fmt.Sprintf("Retrying initialization (attempt %d of %d)", attempt, c.maxAttempts),
				Error:    lastErr.Error(),
			})
			if err := c.sleep(ctx, delay); err != nil {
				return c.fail(fmt.Errorf("initialization aborted: %w", err))
			}
		}

		err := c.runAttempt(ctx)
		if err == nil {
			c.publish(State{Stage: StageComplete, Progress: 100, Message: "Ready"})
			return nil
		}
		lastErr = err
		c.logger.Error("initialization attempt failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		// Zero videos cannot be fixed by retrying, and a dead context
		// means the budget is spent.
		if errors.Is(err, models.ErrNoVideos) || ctx.Err() != nil {
			break
		}
	}
	return c.fail(lastErr)
}

func (c *Controller) fail(err error) error {
	msg := "Initialization failed"
	if errors.Is(err, models.ErrNoVideos) {
		msg = "No videos found in the configured directories"
	}
	c.publish(State{Stage: StageError, Progress: 0, Message: msg, Error: err.Error()})
	return fmt.Errorf("%w: %v", models.ErrInitializationFailed, err)
}

func (c *Controller) runAttempt(ctx context.Context) error {
	c.publish(State{Stage: StageLoadingConfig, Progress: 5, Message: "Loading configuration"})
	if c.hooks.LoadConfig != nil {
		if err := c.hooks.LoadConfig(ctx); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}

	c.publish(State{Stage: StageBuildingIndex, Progress: 15, Message: "Scanning video directories"})
	total, err := c.hooks.BuildIndex(ctx, func(p index.ScanProgress) {
		// Index progress maps onto the 15-50 band.
		c.publish(State{
			Stage:    StageBuildingIndex,
			Progress: 15 + p.Percent*35/100,
			Message:  p.Message,
		})
	})
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	if total == 0 {
		return models.ErrNoVideos
	}

	c.publish(State{Stage: StageFillingQueue, Progress: 50, Message: "Preparing videos for playback"})
	err = c.hooks.FillQueue(ctx, func(processed, target int) {
		if target <= 0 {
			return
		}
		c.publish(State{
			Stage:    StageFillingQueue,
			Progress: 50 + processed*50/target,
			Message:  fmt.Sprintf("Prepared %d of %d videos", processed, target),
		})
	})
	if err != nil {
		return fmt.Errorf("filling queue: %w", err)
	}
	return nil
}

// StartCompleteGuard periodically republishes the complete state if it has
// drifted, so late-connecting clients always see a consistent snapshot. The
// rewrite only happens once the complete stage has actually been reached; a
// run that is still in flight, or that ended in error, is left alone.
func (c *Controller) StartCompleteGuard(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				drifted := c.completeObserved && c.state.Stage != StageComplete
				c.mu.Unlock()
				if drifted {
					c.publish(State{Stage: StageComplete, Progress: 100, Message: "Ready"})
				}
			}
		}
	}()
}
