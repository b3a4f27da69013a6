package prediction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"oddsline/ingestion/internal/llm"
	"oddsline/ingestion/internal/metrics"
	"oddsline/ingestion/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// EventSource lists the events a run should cover
type EventSource interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]*models.OddsEvent, error)
}

// PredictionStore persists generated articles
type PredictionStore interface {
	GetIDByEventID(ctx context.Context, eventID string) (int64, bool, error)
	Upsert(ctx context.Context, pred *models.EventPrediction) (bool, error)
}

// CacheInvalidator drops cached event reads, which embed the stored prediction
type CacheInvalidator interface {
	InvalidateEvents(ctx context.Context) error
}

// GenerationError means the text generation call failed outright for an event
type GenerationError struct {
	EventID string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for event %s: %v", e.EventID, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Failure kinds reported in RunResult
const (
	FailureGeneration  = "generation"
	FailurePersistence = "persistence"
)

// Failure is one event that produced no stored prediction this run
type Failure struct {
	EventID string `json:"eventId"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}

// RunResult summarises a prediction run
type RunResult struct {
	RunID      string    `json:"runId"`
	Success    bool      `json:"success"`
	Processed  int       `json:"processed"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Degraded   int       `json:"degraded"`
	Failures   []Failure `json:"failures"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Generator writes one prediction article per upcoming event
type Generator struct {
	events      EventSource
	predictions PredictionStore
	llm         llm.TextGenerator
	now         func() time.Time
	concurrency int
	invalidator CacheInvalidator
}

// NewGenerator creates a prediction generator. invalidator may be nil.
func NewGenerator(events EventSource, predictions PredictionStore, gen llm.TextGenerator, concurrency int, invalidator CacheInvalidator) *Generator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Generator{
		events:      events,
		predictions: predictions,
		llm:         gen,
		now:         time.Now,
		concurrency: concurrency,
		invalidator: invalidator,
	}
}

// GeneratePredictions generates and stores articles for every event starting within
// horizonDays. Per-event failures are collected; only a failed event listing aborts the run.
func (g *Generator) GeneratePredictions(ctx context.Context, horizonDays int) (*RunResult, error) {
	start := g.now()
	result := &RunResult{
		RunID:     uuid.NewString(),
		Failures:  []Failure{},
		StartedAt: start,
	}

	logger := log.With().Str("run_id", result.RunID).Str("task", "predictions").Logger()

	from := start
	to := start.Add(time.Duration(horizonDays) * 24 * time.Hour)

	events, err := g.events.ListBetween(ctx, from, to)
	if err != nil {
		metrics.RecordError("prediction", "list_events")
		return nil, fmt.Errorf("failed to list events for predictions: %w", err)
	}

	logger.Info().
		Int("events", len(events)).
		Time("from", from).
		Time("to", to).
		Msg("Generating predictions")

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)

	for _, event := range events {
		event := event
		eg.Go(func() error {
			created, degraded, err := g.generateOne(egCtx, event)

			mu.Lock()
			defer mu.Unlock()

			result.Processed++
			if err != nil {
				result.Failures = append(result.Failures, toFailure(event.ID, err))
				logger.Error().Err(err).Str("event_id", event.ID).Msg("Prediction failed")
				return nil
			}
			if degraded {
				result.Degraded++
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
			return nil
		})
	}
	_ = eg.Wait()

	if g.invalidator != nil && result.Created+result.Updated > 0 {
		if err := g.invalidator.InvalidateEvents(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to invalidate cached events")
		}
	}

	result.FinishedAt = g.now()
	result.Success = len(result.Failures) == 0

	logger.Info().
		Bool("success", result.Success).
		Int("processed", result.Processed).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("degraded", result.Degraded).
		Int("failures", len(result.Failures)).
		Dur("duration", result.FinishedAt.Sub(start)).
		Msg("Prediction run finished")

	return result, nil
}

// generateOne produces and stores the article for a single event
func (g *Generator) generateOne(ctx context.Context, event *models.OddsEvent) (created, degraded bool, err error) {
	existingID, exists, err := g.predictions.GetIDByEventID(ctx, event.ID)
	if err != nil {
		return false, false, err
	}
	if exists {
		log.Debug().Str("event_id", event.ID).Int64("prediction_id", existingID).Msg("Regenerating existing prediction")
	}

	req := llm.Request{
		System: SystemPrompt,
		User:   BuildUserPrompt(EncodeEvent(event)),
	}

	start := time.Now()
	text, err := g.llm.Generate(ctx, req)
	if err != nil {
		metrics.RecordError("prediction", "generation")
		return false, false, &GenerationError{EventID: event.ID, Err: err}
	}
	elapsed := time.Since(start).Seconds()

	article := ParseArticle(text)
	if article.Degraded() {
		metrics.RecordParseDegradation()
		log.Warn().
			Str("event_id", event.ID).
			Strs("missing_labels", article.Missing).
			Msg("Generated article is missing labels, using fallback extraction")
	}

	pred := article.toPrediction(event.ID)
	pred.ID = existingID

	created, err = g.predictions.Upsert(ctx, pred)
	if err != nil {
		metrics.RecordError("prediction", "persistence")
		return false, article.Degraded(), err
	}
	if !exists && !created {
		// The unique constraint folded this write into a row another run inserted first
		log.Warn().Str("event_id", event.ID).Int64("prediction_id", pred.ID).Msg("Prediction written concurrently, updated in place")
	}

	action := "updated"
	if created {
		action = "created"
	}
	metrics.RecordPrediction(action, elapsed)

	return created, article.Degraded(), nil
}

func toFailure(eventID string, err error) Failure {
	kind := FailurePersistence
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		kind = FailureGeneration
	}
	return Failure{EventID: eventID, Kind: kind, Error: err.Error()}
}

func (a Article) toPrediction(eventID string) *models.EventPrediction {
	return &models.EventPrediction{
		OddsEventID:                 eventID,
		ArticleTitle:                a.Title,
		GameOverviewHeading:         a.GameOverviewHeading,
		GameOverviewDescription:     a.GameOverviewDescription,
		TeamASeasonHeading:          a.TeamASeasonHeading,
		TeamASeasonDescription:      a.TeamASeasonDescription,
		TeamBSeasonHeading:          a.TeamBSeasonHeading,
		TeamBSeasonDescription:      a.TeamBSeasonDescription,
		MatchupBreakdownHeading:     a.MatchupBreakdownHeading,
		MatchupBreakdownDescription: a.MatchupBreakdownDescription,
		SpreadPickHeading:           a.SpreadPickHeading,
		SpreadFinalPick:             a.SpreadFinalPick,
		SpreadPickDescription:       a.SpreadPickDescription,
		OverUnderPickHeading:        a.OverUnderPickHeading,
		OverUnderFinalPick:          a.OverUnderFinalPick,
		OverUnderPickDescription:    a.OverUnderPickDescription,
		PlayerPropPickHeading:       a.PlayerPropPickHeading,
		PlayerPropFinalPick:         a.PlayerPropFinalPick,
		PlayerPropPickDescription:   a.PlayerPropPickDescription,
	}
}
