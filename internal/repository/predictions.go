package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oddsline/ingestion/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// PredictionRepository handles generated prediction articles
type PredictionRepository struct {
	db *Database
}

const predictionColumns = `
	article_title,
	game_overview_heading, game_overview_description,
	team_a_season_heading, team_a_season_description,
	team_b_season_heading, team_b_season_description,
	matchup_breakdown_heading, matchup_breakdown_description,
	spread_pick_heading, spread_final_pick, spread_pick_description,
	over_under_pick_heading, over_under_final_pick, over_under_pick_description,
	player_prop_pick_heading, player_prop_final_pick, player_prop_pick_description`

// GetIDByEventID returns the id of the prediction stored for an event, if any
func (r *PredictionRepository) GetIDByEventID(ctx context.Context, eventID string) (int64, bool, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id FROM event_predictions WHERE odds_event_id = $1`, eventID,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up prediction: %w", err)
	}

	return id, true, nil
}

// Upsert writes the prediction for its event. The unique constraint on odds_event_id makes
// concurrent writers converge on one row instead of inserting duplicates.
func (r *PredictionRepository) Upsert(ctx context.Context, pred *models.EventPrediction) (created bool, err error) {
	start := time.Now()
	defer func() { observe("upsert", "event_predictions", start, err) }()

	if pred == nil {
		return false, fmt.Errorf("prediction cannot be nil")
	}
	if err := pred.Validate(); err != nil {
		return false, &PersistenceError{EventID: pred.OddsEventID, Op: "validate prediction", Err: err}
	}

	query := `
		INSERT INTO event_predictions (odds_event_id,` + predictionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (odds_event_id) DO UPDATE SET
			article_title = EXCLUDED.article_title,
			game_overview_heading = EXCLUDED.game_overview_heading,
			game_overview_description = EXCLUDED.game_overview_description,
			team_a_season_heading = EXCLUDED.team_a_season_heading,
			team_a_season_description = EXCLUDED.team_a_season_description,
			team_b_season_heading = EXCLUDED.team_b_season_heading,
			team_b_season_description = EXCLUDED.team_b_season_description,
			matchup_breakdown_heading = EXCLUDED.matchup_breakdown_heading,
			matchup_breakdown_description = EXCLUDED.matchup_breakdown_description,
			spread_pick_heading = EXCLUDED.spread_pick_heading,
			spread_final_pick = EXCLUDED.spread_final_pick,
			spread_pick_description = EXCLUDED.spread_pick_description,
			over_under_pick_heading = EXCLUDED.over_under_pick_heading,
			over_under_final_pick = EXCLUDED.over_under_final_pick,
			over_under_pick_description = EXCLUDED.over_under_pick_description,
			player_prop_pick_heading = EXCLUDED.player_prop_pick_heading,
			player_prop_final_pick = EXCLUDED.player_prop_final_pick,
			player_prop_pick_description = EXCLUDED.player_prop_pick_description,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted, created_at, updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		pred.OddsEventID,
		pred.ArticleTitle,
		pred.GameOverviewHeading, pred.GameOverviewDescription,
		pred.TeamASeasonHeading, pred.TeamASeasonDescription,
		pred.TeamBSeasonHeading, pred.TeamBSeasonDescription,
		pred.MatchupBreakdownHeading, pred.MatchupBreakdownDescription,
		pred.SpreadPickHeading, pred.SpreadFinalPick, pred.SpreadPickDescription,
		pred.OverUnderPickHeading, pred.OverUnderFinalPick, pred.OverUnderPickDescription,
		pred.PlayerPropPickHeading, pred.PlayerPropFinalPick, pred.PlayerPropPickDescription,
	).Scan(&pred.ID, &created, &pred.CreatedAt, &pred.UpdatedAt)
	if err != nil {
		log.Error().Err(err).Str("event_id", pred.OddsEventID).Msg("Failed to upsert prediction")
		return false, &PersistenceError{EventID: pred.OddsEventID, Op: "upsert prediction", Err: err}
	}

	return created, nil
}

// GetByEventID retrieves the prediction for an event
func (r *PredictionRepository) GetByEventID(ctx context.Context, eventID string) (*models.EventPrediction, error) {
	query := `SELECT id, odds_event_id,` + predictionColumns + `, created_at, updated_at
		FROM event_predictions
		WHERE odds_event_id = $1`

	pred := &models.EventPrediction{}
	err := r.db.Pool.QueryRow(ctx, query, eventID).Scan(
		&pred.ID, &pred.OddsEventID,
		&pred.ArticleTitle,
		&pred.GameOverviewHeading, &pred.GameOverviewDescription,
		&pred.TeamASeasonHeading, &pred.TeamASeasonDescription,
		&pred.TeamBSeasonHeading, &pred.TeamBSeasonDescription,
		&pred.MatchupBreakdownHeading, &pred.MatchupBreakdownDescription,
		&pred.SpreadPickHeading, &pred.SpreadFinalPick, &pred.SpreadPickDescription,
		&pred.OverUnderPickHeading, &pred.OverUnderFinalPick, &pred.OverUnderPickDescription,
		&pred.PlayerPropPickHeading, &pred.PlayerPropFinalPick, &pred.PlayerPropPickDescription,
		&pred.CreatedAt, &pred.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}

	return pred, nil
}

// DeleteByEventID deletes the prediction for an event (for regeneration from scratch)
func (r *PredictionRepository) DeleteByEventID(ctx context.Context, eventID string) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM event_predictions WHERE odds_event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("failed to delete prediction: %w", err)
	}

	log.Warn().Int64("rows_affected", result.RowsAffected()).Str("event_id", eventID).Msg("Prediction deleted")
	return nil
}
