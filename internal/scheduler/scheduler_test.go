package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"oddsline/ingestion/internal/prediction"
	"oddsline/ingestion/internal/syncer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingSyncer holds each run open until release is closed
type blockingSyncer struct {
	mu      sync.Mutex
	calls   int
	opts    []syncer.Options
	started chan struct{}
	release chan struct{}
	err     error
}

func (b *blockingSyncer) SyncOdds(ctx context.Context, opts syncer.Options) (*syncer.Result, error) {
	b.mu.Lock()
	b.calls++
	b.opts = append(b.opts, opts)
	b.mu.Unlock()

	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.release != nil {
		<-b.release
	}
	if b.err != nil {
		return nil, b.err
	}
	return &syncer.Result{RunID: "run", Success: true, Errors: []syncer.ErrorEntry{}}, nil
}

type fakePredictions struct {
	days []int
}

func (f *fakePredictions) GeneratePredictions(_ context.Context, horizonDays int) (*prediction.RunResult, error) {
	f.days = append(f.days, horizonDays)
	return &prediction.RunResult{Success: true}, nil
}

type fakeLocker struct {
	held     map[string]bool
	err      error
	released []string
}

func (f *fakeLocker) AcquireLock(_ context.Context, name string, _ time.Duration) (func(), bool, error) {
	if f.err != nil {
		return func() {}, false, f.err
	}
	if f.held[name] {
		return func() {}, false, nil
	}
	return func() { f.released = append(f.released, name) }, true, nil
}

func testOptions() Options {
	return Options{
		Timezone:       "Asia/Karachi",
		SyncCron:       "0 * * * *",
		PredictionCron: "30 0 * * *",
		HorizonDays:    2,
	}
}

func newTestScheduler(t *testing.T, jobs Jobs, locker Locker) *Scheduler {
	t.Helper()
	s, err := New(testOptions(), jobs, locker)
	require.NoError(t, err)
	return s
}

func TestNew_InvalidTimezone(t *testing.T) {
	opts := testOptions()
	opts.Timezone = "Mars/Olympus"

	_, err := New(opts, Jobs{}, nil)
	assert.Error(t, err)
}

func TestLifecycle(t *testing.T) {
	s := newTestScheduler(t, Jobs{Sync: &blockingSyncer{}, Predictions: &fakePredictions{}}, nil)
	assert.Equal(t, StateInit, s.State())

	require.NoError(t, s.Start())
	assert.Equal(t, StateRunning, s.State())
	assert.Len(t, s.cron.Entries(), 2)
	assert.Equal(t, "Asia/Karachi", s.cron.Location().String())

	assert.Error(t, s.Start(), "Cannot start twice")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.Equal(t, StateStopped, s.State())

	s.Stop(ctx)
	assert.Equal(t, StateStopped, s.State(), "Stop is idempotent")
	assert.Error(t, s.Start(), "Cannot restart a stopped scheduler")
}

func TestStart_InvalidCron(t *testing.T) {
	opts := testOptions()
	opts.SyncCron = "every hour"

	s, err := New(opts, Jobs{}, nil)
	require.NoError(t, err)

	assert.Error(t, s.Start())
	assert.Equal(t, StateInit, s.State())
}

func TestRunNow_SkipsWhileRunning(t *testing.T) {
	job := &blockingSyncer{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := newTestScheduler(t, Jobs{Sync: job, Predictions: &fakePredictions{}}, nil)

	firstDone := make(chan error, 1)
	go func() { firstDone <- s.RunNow(context.Background(), TaskSyncOdds) }()
	<-job.started

	_, err := s.SyncOdds(context.Background(), syncer.Options{Prune: true})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// Other tasks are not blocked
	_, err = s.GeneratePredictions(context.Background(), 0)
	assert.NoError(t, err)

	close(job.release)
	require.NoError(t, <-firstDone)
	assert.Equal(t, 1, job.calls)

	job.started = nil
	_, err = s.SyncOdds(context.Background(), syncer.Options{})
	assert.NoError(t, err, "Guard is released after the run")
	assert.Equal(t, 2, job.calls)
}

func TestRunNow_ScheduledSyncPrunes(t *testing.T) {
	job := &blockingSyncer{}
	s := newTestScheduler(t, Jobs{Sync: job, Predictions: &fakePredictions{}}, nil)

	require.NoError(t, s.RunNow(context.Background(), TaskSyncOdds))
	require.Len(t, job.opts, 1)
	assert.True(t, job.opts[0].Prune)
}

func TestGeneratePredictions_DefaultsHorizon(t *testing.T) {
	preds := &fakePredictions{}
	s := newTestScheduler(t, Jobs{Sync: &blockingSyncer{}, Predictions: preds}, nil)

	_, err := s.GeneratePredictions(context.Background(), 0)
	require.NoError(t, err)
	_, err = s.GeneratePredictions(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 5}, preds.days)
}

func TestRunNow_ErrorReleasesGuard(t *testing.T) {
	job := &blockingSyncer{err: errors.New("storage unavailable")}
	s := newTestScheduler(t, Jobs{Sync: job, Predictions: &fakePredictions{}}, nil)

	assert.Error(t, s.RunNow(context.Background(), TaskSyncOdds))
	assert.False(t, s.running[TaskSyncOdds].Load())
}

func TestRunNow_UnknownTask(t *testing.T) {
	s := newTestScheduler(t, Jobs{}, nil)
	assert.Error(t, s.RunNow(context.Background(), Task("backfill")))
}

func TestLocker(t *testing.T) {
	t.Run("held elsewhere skips", func(t *testing.T) {
		job := &blockingSyncer{}
		locker := &fakeLocker{held: map[string]bool{string(TaskSyncOdds): true}}
		s := newTestScheduler(t, Jobs{Sync: job, Predictions: &fakePredictions{}}, locker)

		_, err := s.SyncOdds(context.Background(), syncer.Options{})
		assert.ErrorIs(t, err, ErrAlreadyRunning)
		assert.Equal(t, 0, job.calls)
	})

	t.Run("acquired and released", func(t *testing.T) {
		job := &blockingSyncer{}
		locker := &fakeLocker{held: map[string]bool{}}
		s := newTestScheduler(t, Jobs{Sync: job, Predictions: &fakePredictions{}}, locker)

		_, err := s.SyncOdds(context.Background(), syncer.Options{})
		require.NoError(t, err)
		assert.Equal(t, []string{string(TaskSyncOdds)}, locker.released)
	})

	t.Run("lock backend down still runs", func(t *testing.T) {
		job := &blockingSyncer{}
		locker := &fakeLocker{err: errors.New("connection refused")}
		s := newTestScheduler(t, Jobs{Sync: job, Predictions: &fakePredictions{}}, locker)

		_, err := s.SyncOdds(context.Background(), syncer.Options{})
		require.NoError(t, err)
		assert.Equal(t, 1, job.calls)
	})
}

func TestCronLogger(t *testing.T) {
	l := cronLogger{}
	assert.NotPanics(t, func() {
		l.Info("start", "entry", 1, "odd")
		l.Error(errors.New("boom"), "panic", 42, "not-a-key-pair")
	})
}
