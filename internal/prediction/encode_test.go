package prediction

import (
	"strings"
	"testing"
	"time"

	"oddsline/ingestion/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func sampleEvent(id string, commence time.Time) *models.OddsEvent {
	return &models.OddsEvent{
		ID:           id,
		SportKey:     "americanfootball_nfl",
		SportTitle:   "NFL",
		CommenceTime: commence,
		HomeTeam:     "Detroit Lions",
		AwayTeam:     "Green Bay Packers",
		Bookmakers: []*models.Bookmaker{
			{
				Key:        "fanduel",
				Title:      "FanDuel",
				LastUpdate: commence.Add(-time.Hour),
				Markets: []*models.Market{
					{
						Key:        models.MarketH2H,
						LastUpdate: commence.Add(-time.Hour),
						Outcomes: []*models.Outcome{
							{Name: "Detroit Lions", Price: -180},
							{Name: "Green Bay Packers", Price: 150},
						},
					},
					{
						Key:        models.MarketSpreads,
						LastUpdate: commence.Add(-time.Hour),
						Outcomes: []*models.Outcome{
							{Name: "Detroit Lions", Price: -110, Point: decimal.NewNullDecimal(decimal.RequireFromString("-3.5"))},
							{Name: "Green Bay Packers", Price: -110, Point: decimal.NewNullDecimal(decimal.RequireFromString("3.5"))},
						},
					},
				},
			},
		},
	}
}

func TestEncodeEvent(t *testing.T) {
	commence := time.Date(2025, 11, 27, 17, 30, 0, 0, time.UTC)

	got := EncodeEvent(sampleEvent("evt-1", commence))

	want := strings.Join([]string{
		`id: evt-1`,
		`sportKey: americanfootball_nfl`,
		`sportTitle: NFL`,
		`commenceTime: "2025-11-27T17:30:00Z"`,
		`homeTeam: Detroit Lions`,
		`awayTeam: Green Bay Packers`,
		`bookmakers[1]:`,
		`  - key: fanduel`,
		`    title: FanDuel`,
		`    lastUpdate: "2025-11-27T16:30:00Z"`,
		`    markets[2]:`,
		`      - key: h2h`,
		`        lastUpdate: "2025-11-27T16:30:00Z"`,
		`        outcomes[2]{name,price,point}:`,
		`          Detroit Lions,-180,`,
		`          Green Bay Packers,150,`,
		`      - key: spreads`,
		`        lastUpdate: "2025-11-27T16:30:00Z"`,
		`        outcomes[2]{name,price,point}:`,
		`          Detroit Lions,-110,-3.5`,
		`          Green Bay Packers,-110,3.5`,
	}, "\n")

	assert.Equal(t, want, got)
}

func TestEncodeEvent_QuotesAmbiguousValues(t *testing.T) {
	event := &models.OddsEvent{
		ID:         "evt-2",
		HomeTeam:   "St. Mary's, CA",
		AwayTeam:   "",
		Bookmakers: []*models.Bookmaker{{Key: "b", Markets: []*models.Market{{Key: models.MarketH2H, Outcomes: []*models.Outcome{{Name: "Draw, maybe", Price: 300}}}}}},
	}

	got := EncodeEvent(event)

	assert.Contains(t, got, `homeTeam: "St. Mary's, CA"`)
	assert.Contains(t, got, `awayTeam: ""`)
	assert.Contains(t, got, `"Draw, maybe",300,`)
}

func TestEncodeEvent_KeepsExactPoints(t *testing.T) {
	event := sampleEvent("evt-3", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	event.Bookmakers[0].Markets[1].Outcomes[0].Point = decimal.NewNullDecimal(decimal.RequireFromString("-10.25"))

	assert.Contains(t, EncodeEvent(event), "Detroit Lions,-110,-10.25")
}

func TestBuildUserPrompt(t *testing.T) {
	prompt := BuildUserPrompt("id: evt-1")

	assert.True(t, strings.HasSuffix(prompt, "DATA:\nid: evt-1"))
	for _, label := range expectedLabels {
		assert.Contains(t, prompt, label, "Prompt should ask for %s", label)
	}
	assert.Contains(t, prompt, "AT LEAST 400 words")
	assert.Contains(t, prompt, "MAX 3 lines")
	assert.NotContains(t, SystemPrompt, "\n")
}
