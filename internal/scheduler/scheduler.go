package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"oddsline/ingestion/internal/metrics"
	"oddsline/ingestion/internal/prediction"
	"oddsline/ingestion/internal/syncer"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Task names a periodic job
type Task string

const (
	TaskSyncOdds    Task = "sync_odds"
	TaskPredictions Task = "predictions"
)

// State is the scheduler lifecycle stage
type State int32

const (
	StateInit State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrAlreadyRunning is returned when a run of the same task is still in flight
var ErrAlreadyRunning = errors.New("task is already running")

// OddsSyncer runs one odds sync
type OddsSyncer interface {
	SyncOdds(ctx context.Context, opts syncer.Options) (*syncer.Result, error)
}

// PredictionGenerator runs one prediction pass
type PredictionGenerator interface {
	GeneratePredictions(ctx context.Context, horizonDays int) (*prediction.RunResult, error)
}

// Jobs are the tasks the scheduler drives
type Jobs struct {
	Sync        OddsSyncer
	Predictions PredictionGenerator
}

// Locker hands out cross-process run locks
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

// Options configures schedules and run limits
type Options struct {
	Timezone       string
	SyncCron       string
	PredictionCron string
	HorizonDays    int
	LockTTL        time.Duration
}

// Scheduler owns the cron entries for the sync and prediction tasks.
// Scheduled and on-demand runs of the same task never overlap.
type Scheduler struct {
	opts   Options
	jobs   Jobs
	locker Locker
	loc    *time.Location

	cron    *cron.Cron
	state   atomic.Int32
	running map[Task]*atomic.Bool

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. locker may be nil for single-process deployments.
func New(opts Options, jobs Jobs, locker Locker) (*Scheduler, error) {
	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", opts.Timezone, err)
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}

	logger := cronLogger{}
	s := &Scheduler{
		opts:   opts,
		jobs:   jobs,
		locker: locker,
		loc:    loc,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		running: map[Task]*atomic.Bool{
			TaskSyncOdds:    {},
			TaskPredictions: {},
		},
	}
	s.state.Store(int32(StateInit))
	return s, nil
}

// State returns the current lifecycle stage
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start registers both cron entries and begins firing them
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateInit {
		return fmt.Errorf("scheduler cannot start from state %s", s.State())
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(s.opts.SyncCron, func() {
		s.runScheduled(TaskSyncOdds)
	}); err != nil {
		s.cancel()
		return fmt.Errorf("failed to schedule odds sync: %w", err)
	}

	if _, err := s.cron.AddFunc(s.opts.PredictionCron, func() {
		s.runScheduled(TaskPredictions)
	}); err != nil {
		s.cancel()
		return fmt.Errorf("failed to schedule predictions: %w", err)
	}

	s.cron.Start()
	s.state.Store(int32(StateRunning))

	log.Info().
		Str("timezone", s.loc.String()).
		Str("sync_schedule", s.opts.SyncCron).
		Str("prediction_schedule", s.opts.PredictionCron).
		Msg("Scheduler started")

	return nil
}

// Stop stops firing new runs and waits for in-flight runs until ctx expires,
// after which their context is cancelled.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateRunning {
		s.state.Store(int32(StateStopped))
		return
	}

	log.Info().Msg("Stopping scheduler...")
	done := s.cron.Stop()

	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Warn().Msg("Scheduler stop timed out, cancelling running jobs")
	}
	s.cancel()

	s.state.Store(int32(StateStopped))
	log.Info().Msg("Scheduler stopped")
}

// runScheduled is the cron entry point for a task
func (s *Scheduler) runScheduled(task Task) {
	if err := s.RunNow(s.ctx, task); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		log.Error().Err(err).Str("task", string(task)).Msg("Scheduled run failed")
	}
}

// RunNow runs a task once through the overlap guard, discarding its result
func (s *Scheduler) RunNow(ctx context.Context, task Task) error {
	switch task {
	case TaskSyncOdds:
		_, err := s.SyncOdds(ctx, syncer.Options{Prune: true})
		return err
	case TaskPredictions:
		_, err := s.GeneratePredictions(ctx, s.opts.HorizonDays)
		return err
	default:
		return fmt.Errorf("unknown task %q", task)
	}
}

// SyncOdds runs an odds sync unless one is already in flight
func (s *Scheduler) SyncOdds(ctx context.Context, opts syncer.Options) (*syncer.Result, error) {
	var result *syncer.Result
	err := s.guarded(ctx, TaskSyncOdds, func(ctx context.Context) error {
		var err error
		result, err = s.jobs.Sync.SyncOdds(ctx, opts)
		if err == nil && !result.Success {
			log.Warn().Int("errors", len(result.Errors)).Msg("Odds sync finished with errors")
		}
		return err
	})
	return result, err
}

// GeneratePredictions runs a prediction pass unless one is already in flight.
// A non-positive horizonDays uses the configured horizon.
func (s *Scheduler) GeneratePredictions(ctx context.Context, horizonDays int) (*prediction.RunResult, error) {
	if horizonDays <= 0 {
		horizonDays = s.opts.HorizonDays
	}

	var result *prediction.RunResult
	err := s.guarded(ctx, TaskPredictions, func(ctx context.Context) error {
		var err error
		result, err = s.jobs.Predictions.GeneratePredictions(ctx, horizonDays)
		return err
	})
	return result, err
}

// guarded runs fn unless the task is already running in this process or,
// with a locker, in another one.
func (s *Scheduler) guarded(ctx context.Context, task Task, fn func(context.Context) error) error {
	logger := log.With().Str("task", string(task)).Logger()

	flag := s.running[task]
	if !flag.CompareAndSwap(false, true) {
		logger.Warn().Msg("Previous run still in progress, skipping")
		metrics.RecordScheduledRun(string(task), "skipped")
		return ErrAlreadyRunning
	}
	defer flag.Store(false)

	if s.locker != nil {
		release, ok, err := s.locker.AcquireLock(ctx, string(task), s.opts.LockTTL)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("Run lock unavailable, running without it")
		case !ok:
			logger.Warn().Msg("Another worker holds the run lock, skipping")
			metrics.RecordScheduledRun(string(task), "skipped")
			return ErrAlreadyRunning
		default:
			defer release()
		}
	}

	start := time.Now()
	logger.Info().Msg("Run started")

	if err := fn(ctx); err != nil {
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Run failed")
		metrics.RecordScheduledRun(string(task), "failed")
		return err
	}

	logger.Info().Dur("duration", time.Since(start)).Msg("Run finished")
	metrics.RecordScheduledRun(string(task), "ran")
	return nil
}
