package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oddsline/ingestion/internal/models"
	"oddsline/ingestion/internal/prediction"
	"oddsline/ingestion/internal/repository"
	"oddsline/ingestion/internal/scheduler"
	"oddsline/ingestion/internal/syncer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	syncResult *syncer.Result
	syncErr    error
	syncOpts   []syncer.Options

	predResult *prediction.RunResult
	predErr    error
	predDays   []int
}

func (m *mockRunner) SyncOdds(_ context.Context, opts syncer.Options) (*syncer.Result, error) {
	m.syncOpts = append(m.syncOpts, opts)
	return m.syncResult, m.syncErr
}

func (m *mockRunner) GeneratePredictions(_ context.Context, days int) (*prediction.RunResult, error) {
	m.predDays = append(m.predDays, days)
	return m.predResult, m.predErr
}

type mockEvents struct {
	byLeague map[string][]*models.OddsEvent
	byID     map[string]*models.OddsEvent
	filters  []repository.TreeFilter
	calls    int
	err      error
}

func (m *mockEvents) ListUpcomingByLeague(_ context.Context, sportTitle string, _ time.Time, limit int, filter repository.TreeFilter) ([]*models.OddsEvent, error) {
	m.calls++
	m.filters = append(m.filters, filter)
	if m.err != nil {
		return nil, m.err
	}
	events := m.byLeague[sportTitle]
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (m *mockEvents) GetByID(_ context.Context, id string) (*models.OddsEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byID[id], nil
}

type mockPredictions struct {
	byEvent map[string]*models.EventPrediction
}

func (m *mockPredictions) GetByEventID(_ context.Context, id string) (*models.EventPrediction, error) {
	return m.byEvent[id], nil
}

type mockHealth struct{ err error }

func (m mockHealth) Health(context.Context) error { return m.err }

// memCache stores JSON like Redis would
type memCache struct {
	data map[string][]byte
	err  error
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (c *memCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	if c.err != nil {
		return c.err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

type fixture struct {
	runner *mockRunner
	events *mockEvents
	preds  *mockPredictions
	cache  *memCache
	router http.Handler
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	f := &fixture{
		runner: &mockRunner{},
		events: &mockEvents{byLeague: map[string][]*models.OddsEvent{}, byID: map[string]*models.OddsEvent{}},
		preds:  &mockPredictions{byEvent: map[string]*models.EventPrediction{}},
	}

	var c Cache
	if withCache {
		f.cache = newMemCache()
		c = f.cache
	}

	h := NewHandler(f.runner, f.events, f.preds, mockHealth{}, c, time.Minute, models.DefaultLeagues())
	h.now = func() time.Time { return time.Date(2025, 11, 26, 12, 0, 0, 0, time.UTC) }
	f.router = NewRouter(h, RouterOptions{CORSOrigins: []string{"*"}, EnableMetrics: true})
	return f
}

func (f *fixture) do(t *testing.T, method, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var body map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestSyncOdds_Success(t *testing.T) {
	f := newFixture(t, false)
	f.runner.syncResult = &syncer.Result{
		RunID:   "run-1",
		Success: true,
		Counts:  syncer.Counts{Leagues: 6, Events: 40, Created: 10, Updated: 30, Pruned: 2},
		Errors:  []syncer.ErrorEntry{},
	}

	rec, body := f.do(t, http.MethodPost, "/api/sync-odds")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	counts := body["counts"].(map[string]interface{})
	assert.Equal(t, float64(40), counts["events"])
	assert.Equal(t, float64(2), counts["pruned"])
	assert.Empty(t, body["errors"])

	require.Len(t, f.runner.syncOpts, 1)
	assert.True(t, f.runner.syncOpts[0].Prune, "HTTP trigger always prunes")
}

func TestSyncOdds_PartialFailureIs500(t *testing.T) {
	f := newFixture(t, false)
	f.runner.syncResult = &syncer.Result{
		Success: false,
		Counts:  syncer.Counts{Leagues: 1, Events: 2, Created: 2},
		Errors:  []syncer.ErrorEntry{{League: "NBA", Kind: syncer.KindProviderRateLimited, Message: "quota"}},
	}

	rec, body := f.do(t, http.MethodPost, "/api/sync-odds")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, body["success"])
	errs := body["errors"].([]interface{})
	require.Len(t, errs, 1)
	assert.Equal(t, "NBA", errs[0].(map[string]interface{})["league"])
}

func TestSyncOdds_FatalIs500(t *testing.T) {
	f := newFixture(t, false)
	f.runner.syncErr = repository.ErrStorageUnavailable

	rec, body := f.do(t, http.MethodPost, "/api/sync-odds")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Len(t, body["errors"], 1)
}

func TestSyncOdds_AlreadyRunningIs409(t *testing.T) {
	f := newFixture(t, false)
	f.runner.syncErr = scheduler.ErrAlreadyRunning

	rec, _ := f.do(t, http.MethodPost, "/api/sync-odds")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSyncOdds_GetNotAllowed(t *testing.T) {
	f := newFixture(t, false)

	rec, _ := f.do(t, http.MethodGet, "/api/sync-odds")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGeneratePredictions(t *testing.T) {
	f := newFixture(t, false)
	f.runner.predResult = &prediction.RunResult{Success: true, Processed: 3, Created: 3, Failures: []prediction.Failure{}}

	rec, body := f.do(t, http.MethodPost, "/api/predictions?days=3")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []int{3}, f.runner.predDays)
	assert.NotContains(t, body, "message")
}

func TestGeneratePredictions_EmptyWindow(t *testing.T) {
	f := newFixture(t, false)
	f.runner.predResult = &prediction.RunResult{Success: true, Failures: []prediction.Failure{}}

	rec, body := f.do(t, http.MethodPost, "/api/predictions")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No odds events in the prediction window", body["message"])
	assert.Equal(t, []int{0}, f.runner.predDays, "Default horizon is left to the runner")
}

func TestGeneratePredictions_BadDays(t *testing.T) {
	f := newFixture(t, false)

	for _, q := range []string{"days=abc", "days=-1", "days=30"} {
		rec, _ := f.do(t, http.MethodPost, "/api/predictions?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	assert.Empty(t, f.runner.predDays)
}

func TestGeneratePredictions_Errors(t *testing.T) {
	f := newFixture(t, false)

	f.runner.predErr = scheduler.ErrAlreadyRunning
	rec, _ := f.do(t, http.MethodPost, "/api/predictions")
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.runner.predErr = errors.New("list failed")
	rec, _ = f.do(t, http.MethodPost, "/api/predictions")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	f.runner.predErr = nil
	f.runner.predResult = &prediction.RunResult{Success: false, Processed: 2, Failures: []prediction.Failure{{EventID: "e1", Kind: prediction.FailureGeneration}}}
	rec, _ = f.do(t, http.MethodPost, "/api/predictions")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetUpcomingEvents(t *testing.T) {
	f := newFixture(t, true)
	f.events.byLeague["NFL"] = []*models.OddsEvent{{ID: "nfl-1", SportTitle: "NFL"}, {ID: "nfl-2", SportTitle: "NFL"}}

	rec, body := f.do(t, http.MethodGet, "/api/events/upcoming?league=nfl")

	require.Equal(t, http.StatusOK, rec.Code)
	leagues := body["leagues"].(map[string]interface{})
	assert.Len(t, leagues, 1)
	assert.Len(t, leagues["NFL"], 2)

	require.Len(t, f.events.filters, 1)
	assert.Equal(t, 3, f.events.filters[0].BookmakerLimit)
	assert.Equal(t, []string{"h2h", "spreads", "totals"}, f.events.filters[0].MarketKeys)

	// Second read is served from the cache
	rec, body = f.do(t, http.MethodGet, "/api/events/upcoming?league=NFL")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.events.calls)
	assert.Len(t, body["leagues"].(map[string]interface{})["NFL"], 2)
}

func TestGetUpcomingEvents_AllLeagues(t *testing.T) {
	f := newFixture(t, false)
	f.events.byLeague["NBA"] = []*models.OddsEvent{{ID: "nba-1"}}

	rec, body := f.do(t, http.MethodGet, "/api/events/upcoming")

	require.Equal(t, http.StatusOK, rec.Code)
	leagues := body["leagues"].(map[string]interface{})
	assert.Len(t, leagues, 6)
	assert.Len(t, leagues["NBA"], 1)
	assert.Empty(t, leagues["MMA"])
	assert.NotNil(t, leagues["MMA"], "Empty leagues are [] not null")
}

func TestGetUpcomingEvents_MatchesProviderTitle(t *testing.T) {
	f := newFixture(t, false)
	epl := models.League{Code: "EPL", SportKey: "soccer_epl", Title: "English Premier League"}
	h := NewHandler(f.runner, f.events, f.preds, mockHealth{}, nil, time.Minute, []models.League{epl})
	f.router = NewRouter(h, RouterOptions{})
	f.events.byLeague["English Premier League"] = []*models.OddsEvent{{ID: "epl-1"}}

	rec, body := f.do(t, http.MethodGet, "/api/events/upcoming?league=epl")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["leagues"].(map[string]interface{})["EPL"], 1, "Stored events are matched on sport_title, keyed by code")
}

func TestGetUpcomingEvents_CacheDownFallsBack(t *testing.T) {
	f := newFixture(t, true)
	f.cache.err = errors.New("connection refused")
	f.events.byLeague["MLB"] = []*models.OddsEvent{{ID: "mlb-1"}}

	rec, body := f.do(t, http.MethodGet, "/api/events/upcoming?league=MLB")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["leagues"].(map[string]interface{})["MLB"], 1)
}

func TestGetUpcomingEvents_UnknownLeague(t *testing.T) {
	f := newFixture(t, false)

	rec, _ := f.do(t, http.MethodGet, "/api/events/upcoming?league=EPL")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEvent(t *testing.T) {
	f := newFixture(t, true)
	f.events.byID["evt-1"] = &models.OddsEvent{
		ID:       "evt-1",
		HomeTeam: "Detroit Lions",
		AwayTeam: "Green Bay Packers",
		Bookmakers: []*models.Bookmaker{{Key: "fanduel", Title: "FanDuel", Markets: []*models.Market{
			{Key: models.MarketH2H, Outcomes: []*models.Outcome{{Name: "Detroit Lions", Price: -180}, {Name: "Green Bay Packers", Price: 150}}},
		}}},
	}
	f.preds.byEvent["evt-1"] = &models.EventPrediction{OddsEventID: "evt-1", SpreadFinalPick: "Lions -3.5"}

	rec, body := f.do(t, http.MethodGet, "/api/events/evt-1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "evt-1", body["event"].(map[string]interface{})["id"])
	assert.Equal(t, "Lions -3.5", body["prediction"].(map[string]interface{})["spreadFinalPick"])
	odds := body["odds"].(map[string]interface{})
	assert.Equal(t, "FanDuel", odds["bookmakerTitle"])
	assert.Equal(t, float64(-180), odds["moneyline"].(map[string]interface{})["home"])
}

func TestGetEvent_WithoutPrediction(t *testing.T) {
	f := newFixture(t, false)
	f.events.byID["evt-2"] = &models.OddsEvent{ID: "evt-2"}

	rec, body := f.do(t, http.MethodGet, "/api/events/evt-2")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["prediction"])
	assert.Equal(t, "Latest Market", body["odds"].(map[string]interface{})["bookmakerTitle"])
}

func TestGetEvent_NotFound(t *testing.T) {
	f := newFixture(t, false)

	rec, body := f.do(t, http.MethodGet, "/api/events/missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "event not found", body["message"])
}

func TestGetEvent_StoreError(t *testing.T) {
	f := newFixture(t, false)
	f.events.err = errors.New("timeout")

	rec, _ := f.do(t, http.MethodGet, "/api/events/evt-1")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCronTestAndHealth(t *testing.T) {
	f := newFixture(t, false)

	rec, body := f.do(t, http.MethodGet, "/api/cron-test")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cron test endpoint ran successfully.", body["message"])
	assert.Equal(t, "2025-11-26T12:00:00Z", body["timestamp"])

	rec, body = f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	rec, _ = f.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_Unhealthy(t *testing.T) {
	h := NewHandler(&mockRunner{}, &mockEvents{}, &mockPredictions{}, mockHealth{err: repository.ErrStorageUnavailable}, nil, time.Minute, nil)
	router := NewRouter(h, RouterOptions{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
