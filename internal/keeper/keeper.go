// Package keeper drives oracle updates: on every tick it reads each oracle's
// feeds and pushes the values in. Independent oracles are updated
// concurrently; a single oracle is never updated by two goroutines at once.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/price-oracle/internal/config"
	"github.com/mohamedkhairy/price-oracle/internal/oracle"
	"github.com/mohamedkhairy/price-oracle/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for the keeper loop
type Config struct {
	Interval       time.Duration // How often to run all jobs
	UpdateTimeout  time.Duration // Deadline for a single job, 0 for none
	MaxConcurrency int           // Jobs run in parallel
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Interval:       time.Minute,
		UpdateTimeout:  10 * time.Second,
		MaxConcurrency: 8,
	}
}

// ConfigFrom builds a keeper configuration from service config
func ConfigFrom(cfg config.KeeperConfig) Config {
	return Config{
		Interval:       cfg.Interval,
		UpdateTimeout:  cfg.UpdateTimeout,
		MaxConcurrency: cfg.MaxConcurrency,
	}
}

// Result is the outcome of one job in one run
type Result struct {
	Oracle    string
	Committed bool
	Err       error
	Duration  time.Duration
}

// Stats holds statistics about the keeper
type Stats struct {
	Runs        int64
	Updates     int64
	Noops       int64
	Errors      int64
	LastRun     time.Time
	LastRunTime time.Duration
}

// RunHook is called after every run with the results of all jobs
type RunHook func(ctx context.Context, results []Result)

// Option customises a keeper
type Option func(*Keeper)

// WithClock sets the clock passed to jobs
func WithClock(clock func() time.Time) Option {
	return func(k *Keeper) { k.clock = clock }
}

// WithRunHook registers a hook called after every run
func WithRunHook(hook RunHook) Option {
	return func(k *Keeper) { k.hooks = append(k.hooks, hook) }
}

// Keeper runs jobs on a fixed interval
type Keeper struct {
	config Config
	jobs   []Job
	clock  func() time.Time
	hooks  []RunHook
	log    *zap.Logger

	// runMu keeps runs from overlapping so no oracle sees two writers
	runMu sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	statsMu sync.RWMutex
	stats   Stats
}

// NewKeeper creates a keeper for the given jobs
func NewKeeper(cfg Config, jobs []Job, opts ...Option) (*Keeper, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("keeper interval must be positive")
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	seen := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		if seen[j.Name()] {
			return nil, fmt.Errorf("duplicate job for oracle %q", j.Name())
		}
		seen[j.Name()] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	k := &Keeper{
		config: cfg,
		jobs:   jobs,
		clock:  time.Now,
		log:    logger.Named("keeper"),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Start starts the keeper loop
func (k *Keeper) Start() error {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return fmt.Errorf("keeper is already running")
	}
	k.running = true
	k.mu.Unlock()

	k.log.Info("Starting keeper",
		zap.Duration("interval", k.config.Interval),
		zap.Int("jobs", len(k.jobs)),
	)

	k.wg.Add(1)
	go k.run()
	return nil
}

// Stop stops the keeper loop and waits for the current run to finish
func (k *Keeper) Stop() {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return
	}
	k.running = false
	k.mu.Unlock()

	k.log.Info("Stopping keeper")
	k.cancel()
	k.wg.Wait()
	k.log.Info("Keeper stopped")
}

// IsRunning returns whether the keeper loop is running
func (k *Keeper) IsRunning() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.running
}

// GetStats returns a copy of the keeper statistics
func (k *Keeper) GetStats() Stats {
	k.statsMu.RLock()
	defer k.statsMu.RUnlock()
	return k.stats
}

func (k *Keeper) run() {
	defer k.wg.Done()

	ticker := time.NewTicker(k.config.Interval)
	defer ticker.Stop()

	// Run immediately on start
	k.RunOnce(k.ctx, k.clock())

	for {
		select {
		case <-k.ctx.Done():
			return
		case <-ticker.C:
			k.RunOnce(k.ctx, k.clock())
		}
	}
}

// RunOnce runs every job once at now and returns their results in job order
func (k *Keeper) RunOnce(ctx context.Context, now time.Time) []Result {
	k.runMu.Lock()
	defer k.runMu.Unlock()

	start := time.Now()
	results := make([]Result, len(k.jobs))

	var g errgroup.Group
	g.SetLimit(k.config.MaxConcurrency)
	for i, job := range k.jobs {
		i, job := i, job
		g.Go(func() error {
			results[i] = k.runJob(ctx, job, now)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	k.record(results, now, elapsed)
	for _, hook := range k.hooks {
		hook(ctx, results)
	}
	return results
}

func (k *Keeper) runJob(ctx context.Context, job Job, now time.Time) Result {
	if k.config.UpdateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.config.UpdateTimeout)
		defer cancel()
	}

	start := time.Now()
	committed, err := job.Run(ctx, now)
	result := Result{Oracle: job.Name(), Committed: committed, Err: err, Duration: time.Since(start)}

	jobDuration.WithLabelValues(job.Name()).Observe(result.Duration.Seconds())
	switch {
	case err != nil:
		jobsTotal.WithLabelValues(job.Name(), errorLabel(err)).Inc()
		if errors.Is(err, oracle.ErrDeviationExceeded) || errors.Is(err, oracle.ErrOracleBroken) {
			k.log.Warn("Oracle update rejected", zap.String("oracle", job.Name()), zap.Error(err))
		} else {
			k.log.Error("Oracle update failed", zap.String("oracle", job.Name()), zap.Error(err))
		}
	case committed:
		jobsTotal.WithLabelValues(job.Name(), "committed").Inc()
	default:
		jobsTotal.WithLabelValues(job.Name(), "noop").Inc()
	}
	return result
}

func (k *Keeper) record(results []Result, now time.Time, elapsed time.Duration) {
	k.statsMu.Lock()
	defer k.statsMu.Unlock()

	k.stats.Runs++
	k.stats.LastRun = now
	k.stats.LastRunTime = elapsed
	for _, r := range results {
		switch {
		case r.Err != nil:
			k.stats.Errors++
		case r.Committed:
			k.stats.Updates++
		default:
			k.stats.Noops++
		}
	}
	runsTotal.Inc()
	runDuration.Observe(elapsed.Seconds())
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, oracle.ErrDeviationExceeded):
		return "deviation"
	case errors.Is(err, oracle.ErrOracleBroken):
		return "broken"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
