package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"oddsline/ingestion/internal/metrics"
	"oddsline/ingestion/internal/models"
	"oddsline/ingestion/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Provider fetches the current odds for one league
type Provider interface {
	FetchOdds(ctx context.Context, league models.League) ([]models.EventSnapshot, error)
}

// Store persists event trees
type Store interface {
	Ping(ctx context.Context) error
	ReplaceEventTree(ctx context.Context, event *models.OddsEvent) (bool, error)
	PruneStartedBefore(ctx context.Context, now time.Time) (int64, error)
}

// CacheInvalidator drops cached reads after a sync changed the store
type CacheInvalidator interface {
	InvalidateEvents(ctx context.Context) error
}

// Options controls a single sync run
type Options struct {
	Prune bool
}

// Syncer reconciles stored odds with the provider's current snapshot
type Syncer struct {
	provider    Provider
	store       Store
	leagues     []models.League
	concurrency int
	now         func() time.Time
	invalidator CacheInvalidator
}

// New creates a Syncer. invalidator may be nil.
func New(provider Provider, store Store, leagues []models.League, concurrency int, invalidator CacheInvalidator) *Syncer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Syncer{
		provider:    provider,
		store:       store,
		leagues:     leagues,
		concurrency: concurrency,
		now:         time.Now,
		invalidator: invalidator,
	}
}

// SyncOdds fetches every configured league, replaces each event's stored tree and
// optionally prunes events that have started. League and event failures are collected
// in the result; only an unreachable store aborts the run.
func (s *Syncer) SyncOdds(ctx context.Context, opts Options) (*Result, error) {
	start := s.now()
	result := &Result{
		RunID:     uuid.NewString(),
		Errors:    []ErrorEntry{},
		StartedAt: start,
	}

	logger := log.With().Str("run_id", result.RunID).Str("task", "sync_odds").Logger()

	if err := s.store.Ping(ctx); err != nil {
		metrics.RecordSync("odds", "error", time.Since(start).Seconds())
		metrics.RecordError("syncer", "storage_unavailable")
		return nil, fmt.Errorf("sync aborted: %w", err)
	}

	logger.Info().
		Int("leagues", len(s.leagues)).
		Bool("prune", opts.Prune).
		Msg("Starting odds sync")

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)

	for _, league := range s.leagues {
		league := league
		eg.Go(func() error {
			s.syncLeague(egCtx, logger, league, result, &mu)
			return nil
		})
	}
	_ = eg.Wait()

	if opts.Prune {
		pruned, err := s.store.PruneStartedBefore(ctx, s.now())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to prune started events")
			result.Errors = append(result.Errors, ErrorEntry{Kind: KindPrune, Message: err.Error()})
		} else {
			result.Counts.Pruned = pruned
		}
	}

	if s.invalidator != nil && (result.Counts.Events > 0 || result.Counts.Pruned > 0) {
		if err := s.invalidator.InvalidateEvents(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to invalidate cached events")
		}
	}

	result.FinishedAt = s.now()
	result.Success = len(result.Errors) == 0

	status := "success"
	if !result.Success {
		status = "partial"
	}
	metrics.RecordSync("odds", status, result.FinishedAt.Sub(start).Seconds())
	metrics.RecordEvents(result.Counts.Created, result.Counts.Updated, int(result.Counts.Pruned))

	logger.Info().
		Bool("success", result.Success).
		Int("leagues", result.Counts.Leagues).
		Int("events", result.Counts.Events).
		Int("created", result.Counts.Created).
		Int("updated", result.Counts.Updated).
		Int64("pruned", result.Counts.Pruned).
		Int("errors", len(result.Errors)).
		Dur("duration", result.FinishedAt.Sub(start)).
		Msg("Odds sync finished")

	return result, nil
}

// syncLeague fetches one league and writes each of its events
func (s *Syncer) syncLeague(ctx context.Context, logger zerolog.Logger, league models.League, result *Result, mu *sync.Mutex) {
	snapshots, err := s.provider.FetchOdds(ctx, league)
	if err != nil {
		logger.Error().Err(err).Str("league", league.Code).Msg("Failed to fetch odds, skipping league")
		metrics.RecordError("syncer", "provider")
		mu.Lock()
		result.Errors = append(result.Errors, leagueError(league.Code, err))
		mu.Unlock()
		return
	}

	var created, updated, started int
	var failures []ErrorEntry
	now := s.now()

	for i := range snapshots {
		event := snapshots[i].ToOddsEvent()
		if IsPrunable(event.CommenceTime, now) {
			started++
		}

		inserted, err := s.store.ReplaceEventTree(ctx, event)
		if err != nil {
			logger.Error().Err(err).Str("league", league.Code).Str("event_id", event.ID).Msg("Failed to store event")
			metrics.RecordError("syncer", "persistence")
			var pe *repository.PersistenceError
			if !errors.As(err, &pe) {
				err = &repository.PersistenceError{EventID: event.ID, Op: "replace tree", Err: err}
			}
			failures = append(failures, eventError(league.Code, err))
			continue
		}
		if inserted {
			created++
		} else {
			updated++
		}
	}

	logger.Debug().
		Str("league", league.Code).
		Int("events", len(snapshots)).
		Int("created", created).
		Int("updated", updated).
		Int("started", started).
		Msg("League synced")

	mu.Lock()
	defer mu.Unlock()
	result.Counts.Leagues++
	result.Counts.Events += created + updated
	result.Counts.Created += created
	result.Counts.Updated += updated
	result.Errors = append(result.Errors, failures...)
}
