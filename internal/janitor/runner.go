// Package janitor periodically removes image files that no line item
// references.
package janitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper removes orphaned files and reports how many it removed.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Config holds janitor configuration
type Config struct {
	Schedule string        // cron spec or descriptor, e.g. "@hourly"
	Timeout  time.Duration // upper bound of a single sweep
}

// Runner schedules sweeps
type Runner struct {
	config  Config
	sweeper Sweeper
	logger  *zap.Logger
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.RWMutex
	sweepMu sync.Mutex
}

// NewRunner creates a new janitor runner
func NewRunner(config Config, sweeper Sweeper, logger *zap.Logger) (*Runner, error) {
	if config.Schedule == "" {
		config.Schedule = "@hourly"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", config.Schedule, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		config:  config,
		sweeper: sweeper,
		logger:  logger,
		cron:    cron.New(),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start schedules the sweep
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("janitor already running")
	}
	if _, err := r.cron.AddFunc(r.config.Schedule, func() { r.RunNow() }); err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}
	r.cron.Start()
	r.running = true

	r.logger.Info("Janitor started", zap.String("schedule", r.config.Schedule))
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info("Janitor stopped")
}

// IsRunning returns whether the schedule is active
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// RunNow performs one sweep. Overlapping calls are skipped.
func (r *Runner) RunNow() (int, error) {
	if !r.sweepMu.TryLock() {
		r.logger.Debug("Sweep already in progress, skipping")
		return 0, nil
	}
	defer r.sweepMu.Unlock()

	ctx, cancel := context.WithTimeout(r.ctx, r.config.Timeout)
	defer cancel()

	start := time.Now()
	removed, err := r.sweeper.Sweep(ctx)
	if err != nil {
		r.logger.Error("Sweep failed", zap.Int("removed", removed), zap.Error(err))
		return removed, err
	}
	r.logger.Info("Sweep finished",
		zap.Int("removed", removed),
		zap.Duration("duration", time.Since(start)),
	)
	return removed, nil
}
