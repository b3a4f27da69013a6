package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"oddsline/ingestion/internal/cache"
	"oddsline/ingestion/internal/models"
	"oddsline/ingestion/internal/prediction"
	"oddsline/ingestion/internal/repository"
	"oddsline/ingestion/internal/scheduler"
	"oddsline/ingestion/internal/syncer"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Limits applied to the upcoming events listing
const (
	upcomingPerLeague  = 6
	upcomingBookmakers = 3
	maxPredictionDays  = 14
)

var upcomingMarkets = []string{models.MarketH2H, models.MarketSpreads, models.MarketTotals}

// Runner triggers pipeline runs through the scheduler's overlap guard
type Runner interface {
	SyncOdds(ctx context.Context, opts syncer.Options) (*syncer.Result, error)
	GeneratePredictions(ctx context.Context, horizonDays int) (*prediction.RunResult, error)
}

// EventReader reads stored events
type EventReader interface {
	ListUpcomingByLeague(ctx context.Context, sportTitle string, now time.Time, limit int, filter repository.TreeFilter) ([]*models.OddsEvent, error)
	GetByID(ctx context.Context, id string) (*models.OddsEvent, error)
}

// PredictionReader reads stored predictions
type PredictionReader interface {
	GetByEventID(ctx context.Context, eventID string) (*models.EventPrediction, error)
}

// Cache stores JSON read models
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// HealthChecker reports storage health
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	runner      Runner
	events      EventReader
	predictions PredictionReader
	health      HealthChecker
	cache       Cache
	cacheTTL    time.Duration
	leagues     []models.League
	now         func() time.Time
}

// NewHandler creates a handler. cache may be nil.
func NewHandler(runner Runner, events EventReader, predictions PredictionReader, health HealthChecker, c Cache, cacheTTL time.Duration, leagues []models.League) *Handler {
	return &Handler{
		runner:      runner,
		events:      events,
		predictions: predictions,
		health:      health,
		cache:       c,
		cacheTTL:    cacheTTL,
		leagues:     leagues,
		now:         time.Now,
	}
}

// HealthCheck returns the health status of the service
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.health.Health(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unhealthy", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC(),
		"service":   "oddsline-ingestion",
	})
}

// CronTest is a liveness probe for external cron services
func (h *Handler) CronTest(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	log.Info().Time("at", now).Msg("Cron test endpoint called")

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Cron test endpoint ran successfully.",
		"timestamp": now.Format(time.RFC3339Nano),
	})
}

// SyncOdds runs an odds sync with pruning.
// 200 when every league and event succeeded, 500 otherwise, 409 if a sync is in flight.
func (h *Handler) SyncOdds(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.SyncOdds(r.Context(), syncer.Options{Prune: true})
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		respondError(w, http.StatusConflict, "odds sync already running", nil)
		return
	}
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"counts":  syncer.Counts{},
			"errors":  []syncer.ErrorEntry{{Kind: "fatal", Message: err.Error()}},
		})
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, result)
}

// GeneratePredictions runs a prediction pass. Query params: days
func (h *Handler) GeneratePredictions(w http.ResponseWriter, r *http.Request) {
	days := parseIntParam(r, "days", 0)
	if days < 0 || days > maxPredictionDays {
		respondError(w, http.StatusBadRequest, "days must be between 1 and 14", nil)
		return
	}

	result, err := h.runner.GeneratePredictions(r.Context(), days)
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		respondError(w, http.StatusConflict, "prediction run already running", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "prediction run failed", err)
		return
	}

	body := map[string]interface{}{
		"success": result.Success,
		"result":  result,
	}
	if result.Processed == 0 {
		body["message"] = "No odds events in the prediction window"
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, body)
}

// GetUpcomingEvents lists upcoming events per league. Query params: league
func (h *Handler) GetUpcomingEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	leagues := h.leagues
	if code := r.URL.Query().Get("league"); code != "" {
		league, ok := models.FindLeague(h.leagues, code)
		if !ok {
			respondError(w, http.StatusBadRequest, "unknown league: "+code, nil)
			return
		}
		leagues = []models.League{league}
	}

	out := make(map[string][]*models.OddsEvent, len(leagues))
	for _, league := range leagues {
		events, err := h.upcomingForLeague(ctx, league)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to retrieve upcoming events", err)
			return
		}
		out[league.Code] = events
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"leagues": out,
	})
}

// upcomingForLeague reads through the cache; cache failures fall back to the database
func (h *Handler) upcomingForLeague(ctx context.Context, league models.League) ([]*models.OddsEvent, error) {
	key := cache.UpcomingEventsKey(league.Code)

	if h.cache != nil {
		var cached []*models.OddsEvent
		found, err := h.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		} else if found {
			return cached, nil
		}
	}

	events, err := h.events.ListUpcomingByLeague(ctx, league.SportTitle(), h.now(), upcomingPerLeague, repository.TreeFilter{
		BookmakerLimit: upcomingBookmakers,
		MarketKeys:     upcomingMarkets,
	})
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*models.OddsEvent{}
	}

	if h.cache != nil {
		if err := h.cache.SetJSON(ctx, key, events, h.cacheTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}

	return events, nil
}

// eventDetail is the event page read model
type eventDetail struct {
	Event      *models.OddsEvent       `json:"event"`
	Prediction *models.EventPrediction `json:"prediction"`
	Odds       models.OddsSummary      `json:"odds"`
}

// GetEvent returns one event with its prediction and headline odds
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	eventID := strings.TrimSpace(chi.URLParam(r, "eventID"))
	if eventID == "" {
		respondError(w, http.StatusBadRequest, "event id is required", nil)
		return
	}

	key := cache.EventKey(eventID)
	if h.cache != nil {
		var cached eventDetail
		if found, err := h.cache.GetJSON(ctx, key, &cached); err == nil && found {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	event, err := h.events.GetByID(ctx, eventID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve event", err)
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "event not found", nil)
		return
	}

	pred, err := h.predictions.GetByEventID(ctx, eventID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve prediction", err)
		return
	}

	detail := eventDetail{Event: event, Prediction: pred, Odds: event.Summary()}

	if h.cache != nil {
		if err := h.cache.SetJSON(ctx, key, detail, h.cacheTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}

	respondJSON(w, http.StatusOK, detail)
}

func parseIntParam(r *http.Request, param string, defaultValue int) int {
	valueStr := r.URL.Query().Get(param)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return -1
	}

	return value
}

// errorResponse is the body of every non-2xx response without a run result
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		log.Error().Err(err).Int("status", status).Msg(message)
	}

	respondJSON(w, status, errorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
