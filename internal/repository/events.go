package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oddsline/ingestion/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// EventRepository handles odds events and their bookmaker/market/outcome trees
type EventRepository struct {
	db *Database
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TreeFilter narrows the subtree loaded beneath each event
type TreeFilter struct {
	BookmakerLimit int      // 0 loads every bookmaker
	MarketKeys     []string // empty loads every market
}

// ReplaceEventTree upserts the event row and replaces its whole bookmaker/market/outcome
// subtree inside a single transaction. Readers see either the old tree or the new one.
// created reports whether the event row was inserted rather than updated.
func (r *EventRepository) ReplaceEventTree(ctx context.Context, event *models.OddsEvent) (created bool, err error) {
	start := time.Now()
	defer func() { observe("replace_tree", "odds_events", start, err) }()

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return false, &PersistenceError{EventID: event.ID, Op: "begin", Err: err}
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Str("event_id", event.ID).Msg("Failed to roll back event tree")
			}
		}
	}()

	upsert := `
		INSERT INTO odds_events (id, sport_key, sport_title, commence_time, home_team, away_team)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			sport_key = EXCLUDED.sport_key,
			sport_title = EXCLUDED.sport_title,
			commence_time = EXCLUDED.commence_time,
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			updated_at = NOW()
		RETURNING (xmax = 0) AS inserted, created_at, updated_at
	`
	err = tx.QueryRow(ctx, upsert,
		event.ID, event.SportKey, event.SportTitle, event.CommenceTime, event.HomeTeam, event.AwayTeam,
	).Scan(&created, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return false, &PersistenceError{EventID: event.ID, Op: "upsert event", Err: err}
	}

	// Markets and outcomes go with their bookmakers (ON DELETE CASCADE)
	if _, err = tx.Exec(ctx, `DELETE FROM bookmakers WHERE event_id = $1`, event.ID); err != nil {
		return false, &PersistenceError{EventID: event.ID, Op: "delete bookmakers", Err: err}
	}

	for _, b := range event.Bookmakers {
		if err = insertBookmaker(ctx, tx, event.ID, b); err != nil {
			return false, &PersistenceError{EventID: event.ID, Op: "insert bookmakers", Err: err}
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return false, &PersistenceError{EventID: event.ID, Op: "commit", Err: err}
	}

	bookmakers, markets, outcomes := event.TreeSize()
	log.Debug().
		Str("event_id", event.ID).
		Bool("created", created).
		Int("bookmakers", bookmakers).
		Int("markets", markets).
		Int("outcomes", outcomes).
		Msg("Event tree replaced")

	return created, nil
}

func insertBookmaker(ctx context.Context, tx pgx.Tx, eventID string, b *models.Bookmaker) error {
	b.EventID = eventID
	err := tx.QueryRow(ctx,
		`INSERT INTO bookmakers (event_id, key, title, last_update) VALUES ($1, $2, $3, $4) RETURNING id`,
		eventID, b.Key, b.Title, b.LastUpdate,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("bookmaker %s: %w", b.Key, err)
	}

	for _, m := range b.Markets {
		m.BookmakerID = b.ID
		err := tx.QueryRow(ctx,
			`INSERT INTO markets (bookmaker_id, key, last_update) VALUES ($1, $2, $3) RETURNING id`,
			b.ID, m.Key, m.LastUpdate,
		).Scan(&m.ID)
		if err != nil {
			return fmt.Errorf("market %s/%s: %w", b.Key, m.Key, err)
		}

		if len(m.Outcomes) == 0 {
			continue
		}

		batch := &pgx.Batch{}
		for _, o := range m.Outcomes {
			o.MarketID = m.ID
			batch.Queue(
				`INSERT INTO outcomes (market_id, name, price, point) VALUES ($1, $2, $3, $4::text::numeric) RETURNING id`,
				m.ID, o.Name, o.Price, pointArg(o.Point),
			)
		}

		results := tx.SendBatch(ctx, batch)
		for _, o := range m.Outcomes {
			if err := results.QueryRow().Scan(&o.ID); err != nil {
				results.Close()
				return fmt.Errorf("outcome %s in %s/%s: %w", o.Name, b.Key, m.Key, err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("outcomes for %s/%s: %w", b.Key, m.Key, err)
		}
	}

	return nil
}

func pointArg(p decimal.NullDecimal) *string {
	if !p.Valid {
		return nil
	}
	s := p.Decimal.String()
	return &s
}

// PruneStartedBefore deletes every event whose commence time is strictly before now.
// Events starting exactly at now are kept.
func (r *EventRepository) PruneStartedBefore(ctx context.Context, now time.Time) (n int64, err error) {
	start := time.Now()
	defer func() { observe("prune", "odds_events", start, err) }()

	result, err := r.db.Pool.Exec(ctx, `DELETE FROM odds_events WHERE commence_time < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}

	return result.RowsAffected(), nil
}

// ListBetween retrieves events commencing in [from, to] with full trees, earliest first
func (r *EventRepository) ListBetween(ctx context.Context, from, to time.Time) (events []*models.OddsEvent, err error) {
	start := time.Now()
	defer func() { observe("list_between", "odds_events", start, err) }()

	query := `
		SELECT id, sport_key, sport_title, commence_time, home_team, away_team, created_at, updated_at
		FROM odds_events
		WHERE commence_time >= $1 AND commence_time <= $2
		ORDER BY commence_time ASC, id ASC
	`

	events, err = scanEvents(ctx, r.db.Pool, query, from, to)
	if err != nil {
		return nil, err
	}

	if err := loadTrees(ctx, r.db.Pool, events, TreeFilter{}); err != nil {
		return nil, err
	}

	return events, nil
}

// ListUpcomingByLeague retrieves the next events of a league with a trimmed tree
func (r *EventRepository) ListUpcomingByLeague(ctx context.Context, sportTitle string, now time.Time, limit int, filter TreeFilter) (events []*models.OddsEvent, err error) {
	start := time.Now()
	defer func() { observe("list_upcoming", "odds_events", start, err) }()

	query := `
		SELECT id, sport_key, sport_title, commence_time, home_team, away_team, created_at, updated_at
		FROM odds_events
		WHERE sport_title = $1 AND commence_time >= $2
		ORDER BY commence_time ASC, id ASC
		LIMIT $3
	`

	events, err = scanEvents(ctx, r.db.Pool, query, sportTitle, now, limit)
	if err != nil {
		return nil, err
	}

	if err := loadTrees(ctx, r.db.Pool, events, filter); err != nil {
		return nil, err
	}

	return events, nil
}

// GetByID retrieves one event with its full tree
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.OddsEvent, error) {
	query := `
		SELECT id, sport_key, sport_title, commence_time, home_team, away_team, created_at, updated_at
		FROM odds_events
		WHERE id = $1
	`

	events, err := scanEvents(ctx, r.db.Pool, query, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil // Not found is not an error
	}

	if err := loadTrees(ctx, r.db.Pool, events, TreeFilter{}); err != nil {
		return nil, err
	}

	return events[0], nil
}

// CountTree counts the rows stored beneath an event
func (r *EventRepository) CountTree(ctx context.Context, id string) (bookmakers, markets, outcomes int, err error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM bookmakers b WHERE b.event_id = $1),
			(SELECT COUNT(*) FROM markets m JOIN bookmakers b ON b.id = m.bookmaker_id WHERE b.event_id = $1),
			(SELECT COUNT(*) FROM outcomes o JOIN markets m ON m.id = o.market_id
				JOIN bookmakers b ON b.id = m.bookmaker_id WHERE b.event_id = $1)
	`

	err = r.db.Pool.QueryRow(ctx, query, id).Scan(&bookmakers, &markets, &outcomes)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count event tree: %w", err)
	}
	return bookmakers, markets, outcomes, nil
}

// Count returns the number of stored events
func (r *EventRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM odds_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func scanEvents(ctx context.Context, q querier, query string, args ...any) ([]*models.OddsEvent, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.OddsEvent
	for rows.Next() {
		e := &models.OddsEvent{}
		if err := rows.Scan(
			&e.ID, &e.SportKey, &e.SportTitle, &e.CommenceTime, &e.HomeTeam, &e.AwayTeam,
			&e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Bookmakers = []*models.Bookmaker{}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// loadTrees attaches bookmakers, markets and outcomes to events with three set queries
func loadTrees(ctx context.Context, q querier, events []*models.OddsEvent, filter TreeFilter) error {
	if len(events) == 0 {
		return nil
	}

	eventIDs := make([]string, len(events))
	byEvent := make(map[string]*models.OddsEvent, len(events))
	for i, e := range events {
		eventIDs[i] = e.ID
		byEvent[e.ID] = e
	}

	bookmakerQuery := `
		SELECT id, event_id, key, title, last_update
		FROM (
			SELECT id, event_id, key, title, last_update,
			       ROW_NUMBER() OVER (PARTITION BY event_id ORDER BY id) AS rn
			FROM bookmakers
			WHERE event_id = ANY($1)
		) ranked
		WHERE $2 = 0 OR rn <= $2
		ORDER BY event_id, id
	`

	rows, err := q.Query(ctx, bookmakerQuery, eventIDs, filter.BookmakerLimit)
	if err != nil {
		return fmt.Errorf("failed to query bookmakers: %w", err)
	}

	var bookmakerIDs []int64
	byBookmaker := make(map[int64]*models.Bookmaker)
	for rows.Next() {
		b := &models.Bookmaker{Markets: []*models.Market{}}
		if err := rows.Scan(&b.ID, &b.EventID, &b.Key, &b.Title, &b.LastUpdate); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan bookmaker: %w", err)
		}
		byEvent[b.EventID].Bookmakers = append(byEvent[b.EventID].Bookmakers, b)
		byBookmaker[b.ID] = b
		bookmakerIDs = append(bookmakerIDs, b.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating bookmakers: %w", err)
	}
	if len(bookmakerIDs) == 0 {
		return nil
	}

	marketQuery := `
		SELECT id, bookmaker_id, key, last_update
		FROM markets
		WHERE bookmaker_id = ANY($1)
		  AND (cardinality($2::text[]) = 0 OR key = ANY($2))
		ORDER BY bookmaker_id, id
	`

	marketKeys := filter.MarketKeys
	if marketKeys == nil {
		marketKeys = []string{}
	}

	rows, err = q.Query(ctx, marketQuery, bookmakerIDs, marketKeys)
	if err != nil {
		return fmt.Errorf("failed to query markets: %w", err)
	}

	var marketIDs []int64
	byMarket := make(map[int64]*models.Market)
	for rows.Next() {
		m := &models.Market{Outcomes: []*models.Outcome{}}
		if err := rows.Scan(&m.ID, &m.BookmakerID, &m.Key, &m.LastUpdate); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan market: %w", err)
		}
		byBookmaker[m.BookmakerID].Markets = append(byBookmaker[m.BookmakerID].Markets, m)
		byMarket[m.ID] = m
		marketIDs = append(marketIDs, m.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating markets: %w", err)
	}
	if len(marketIDs) == 0 {
		return nil
	}

	outcomeQuery := `
		SELECT id, market_id, name, price, point::text
		FROM outcomes
		WHERE market_id = ANY($1)
		ORDER BY market_id, id
	`

	rows, err = q.Query(ctx, outcomeQuery, marketIDs)
	if err != nil {
		return fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o := &models.Outcome{}
		var point *string
		if err := rows.Scan(&o.ID, &o.MarketID, &o.Name, &o.Price, &point); err != nil {
			return fmt.Errorf("failed to scan outcome: %w", err)
		}
		if point != nil {
			d, err := decimal.NewFromString(*point)
			if err != nil {
				return fmt.Errorf("invalid point %q on outcome %d: %w", *point, o.ID, err)
			}
			o.Point = decimal.NullDecimal{Decimal: d, Valid: true}
		}
		byMarket[o.MarketID].Outcomes = append(byMarket[o.MarketID].Outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating outcomes: %w", err)
	}

	return nil
}
