package models

import (
	"fmt"
	"strings"
	"time"
)

// EventPrediction is the generated article attached to an odds event.
// There is at most one per event; regeneration updates it in place.
type EventPrediction struct {
	ID          int64  `db:"id" json:"id"`
	OddsEventID string `db:"odds_event_id" json:"oddsEventId"`

	ArticleTitle string `db:"article_title" json:"articleTitle"`

	// Long-form sections
	GameOverviewHeading         string `db:"game_overview_heading" json:"gameOverviewHeading"`
	GameOverviewDescription     string `db:"game_overview_description" json:"gameOverviewDescription"`
	TeamASeasonHeading          string `db:"team_a_season_heading" json:"teamASeasonHeading"`
	TeamASeasonDescription      string `db:"team_a_season_description" json:"teamASeasonDescription"`
	TeamBSeasonHeading          string `db:"team_b_season_heading" json:"teamBSeasonHeading"`
	TeamBSeasonDescription      string `db:"team_b_season_description" json:"teamBSeasonDescription"`
	MatchupBreakdownHeading     string `db:"matchup_breakdown_heading" json:"matchupBreakdownHeading"`
	MatchupBreakdownDescription string `db:"matchup_breakdown_description" json:"matchupBreakdownDescription"`

	// Picks
	SpreadPickHeading         string `db:"spread_pick_heading" json:"spreadPickHeading"`
	SpreadFinalPick           string `db:"spread_final_pick" json:"spreadFinalPick"`
	SpreadPickDescription     string `db:"spread_pick_description" json:"spreadPickDescription"`
	OverUnderPickHeading      string `db:"over_under_pick_heading" json:"overUnderPickHeading"`
	OverUnderFinalPick        string `db:"over_under_final_pick" json:"overUnderFinalPick"`
	OverUnderPickDescription  string `db:"over_under_pick_description" json:"overUnderPickDescription"`
	PlayerPropPickHeading     string `db:"player_prop_pick_heading" json:"playerPropPickHeading"`
	PlayerPropFinalPick       string `db:"player_prop_final_pick" json:"playerPropFinalPick"`
	PlayerPropPickDescription string `db:"player_prop_pick_description" json:"playerPropPickDescription"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Validate checks a prediction before it is written
func (p *EventPrediction) Validate() error {
	if p.OddsEventID == "" {
		return fmt.Errorf("odds_event_id is required")
	}

	finals := map[string]string{
		"spread_final_pick":      p.SpreadFinalPick,
		"over_under_final_pick":  p.OverUnderFinalPick,
		"player_prop_final_pick": p.PlayerPropFinalPick,
	}
	for field, value := range finals {
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("%s must be a single line", field)
		}
	}

	return nil
}
