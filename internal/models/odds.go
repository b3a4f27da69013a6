package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Market keys offered by the odds provider
const (
	MarketH2H     = "h2h"
	MarketSpreads = "spreads"
	MarketTotals  = "totals"
)

// PreferredBookmaker is shown first on event pages when it carries odds
const PreferredBookmaker = "fanduel"

// OddsEvent represents an upcoming game as last reported by the odds provider
type OddsEvent struct {
	ID           string    `db:"id" json:"id"`
	SportKey     string    `db:"sport_key" json:"sportKey"`
	SportTitle   string    `db:"sport_title" json:"sportTitle"`
	CommenceTime time.Time `db:"commence_time" json:"commenceTime"`
	HomeTeam     string    `db:"home_team" json:"homeTeam"`
	AwayTeam     string    `db:"away_team" json:"awayTeam"`

	Bookmakers []*Bookmaker `json:"bookmakers"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Bookmaker is one sportsbook's snapshot for an event
type Bookmaker struct {
	ID         int64     `db:"id" json:"id"`
	EventID    string    `db:"event_id" json:"eventId"`
	Key        string    `db:"key" json:"key"`
	Title      string    `db:"title" json:"title"`
	LastUpdate time.Time `db:"last_update" json:"lastUpdate"`

	Markets []*Market `json:"markets"`
}

// Market is a class of bet offered by a bookmaker
type Market struct {
	ID          int64     `db:"id" json:"id"`
	BookmakerID int64     `db:"bookmaker_id" json:"bookmakerId"`
	Key         string    `db:"key" json:"key"`
	LastUpdate  time.Time `db:"last_update" json:"lastUpdate"`

	Outcomes []*Outcome `json:"outcomes"`
}

// Outcome is one priced side of a market.
// Price uses the American convention; Point is the spread or total line when the market has one.
type Outcome struct {
	ID       int64               `db:"id" json:"id"`
	MarketID int64               `db:"market_id" json:"marketId"`
	Name     string              `db:"name" json:"name"`
	Price    int                 `db:"price" json:"price"`
	Point    decimal.NullDecimal `db:"point" json:"point"`
}

// EventSnapshot is the provider's representation of an event (The Odds API v4)
type EventSnapshot struct {
	ID           string              `json:"id"`
	SportKey     string              `json:"sport_key"`
	SportTitle   string              `json:"sport_title"`
	CommenceTime time.Time           `json:"commence_time"`
	HomeTeam     string              `json:"home_team"`
	AwayTeam     string              `json:"away_team"`
	Bookmakers   []BookmakerSnapshot `json:"bookmakers"`
}

// BookmakerSnapshot is a bookmaker inside an EventSnapshot
type BookmakerSnapshot struct {
	Key        string           `json:"key"`
	Title      string           `json:"title"`
	LastUpdate time.Time        `json:"last_update"`
	Markets    []MarketSnapshot `json:"markets"`
}

// MarketSnapshot is a market inside a BookmakerSnapshot
type MarketSnapshot struct {
	Key        string            `json:"key"`
	LastUpdate time.Time         `json:"last_update"`
	Outcomes   []OutcomeSnapshot `json:"outcomes"`
}

// OutcomeSnapshot is an outcome inside a MarketSnapshot.
// Point stays nil for markets without a line (h2h).
type OutcomeSnapshot struct {
	Name  string           `json:"name"`
	Price int              `json:"price"`
	Point *decimal.Decimal `json:"point,omitempty"`
}

// ToOddsEvent converts a provider snapshot into the persisted event tree
func (s *EventSnapshot) ToOddsEvent() *OddsEvent {
	event := &OddsEvent{
		ID:           s.ID,
		SportKey:     s.SportKey,
		SportTitle:   s.SportTitle,
		CommenceTime: s.CommenceTime.UTC(),
		HomeTeam:     s.HomeTeam,
		AwayTeam:     s.AwayTeam,
		Bookmakers:   make([]*Bookmaker, 0, len(s.Bookmakers)),
	}

	for _, b := range s.Bookmakers {
		bookmaker := &Bookmaker{
			EventID:    s.ID,
			Key:        b.Key,
			Title:      b.Title,
			LastUpdate: b.LastUpdate.UTC(),
			Markets:    make([]*Market, 0, len(b.Markets)),
		}

		for _, m := range b.Markets {
			market := &Market{
				Key:        m.Key,
				LastUpdate: m.LastUpdate.UTC(),
				Outcomes:   make([]*Outcome, 0, len(m.Outcomes)),
			}
			for _, o := range m.Outcomes {
				outcome := &Outcome{Name: o.Name, Price: o.Price}
				if o.Point != nil {
					outcome.Point = decimal.NullDecimal{Decimal: *o.Point, Valid: true}
				}
				market.Outcomes = append(market.Outcomes, outcome)
			}
			bookmaker.Markets = append(bookmaker.Markets, market)
		}

		event.Bookmakers = append(event.Bookmakers, bookmaker)
	}

	return event
}

// SortSnapshots orders snapshots by commence time, then id, so provider output is deterministic
func SortSnapshots(events []EventSnapshot) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].CommenceTime.Equal(events[j].CommenceTime) {
			return events[i].CommenceTime.Before(events[j].CommenceTime)
		}
		return events[i].ID < events[j].ID
	})
}

// Market returns the market with the given key, or nil
func (b *Bookmaker) Market(key string) *Market {
	if b == nil {
		return nil
	}
	for _, m := range b.Markets {
		if m.Key == key {
			return m
		}
	}
	return nil
}

// BestBookmaker picks the bookmaker shown on event pages:
// the preferred book when present, otherwise the most recently updated one.
func (e *OddsEvent) BestBookmaker() *Bookmaker {
	if len(e.Bookmakers) == 0 {
		return nil
	}

	for _, b := range e.Bookmakers {
		if strings.EqualFold(b.Key, PreferredBookmaker) || strings.EqualFold(b.Title, PreferredBookmaker) {
			return b
		}
	}

	best := e.Bookmakers[0]
	for _, b := range e.Bookmakers[1:] {
		if b.LastUpdate.After(best.LastUpdate) {
			best = b
		}
	}
	return best
}

// TeamOutcome finds the outcome for a team, falling back to the first non over/under/draw side
func (m *Market) TeamOutcome(team string) *Outcome {
	if m == nil || len(m.Outcomes) == 0 {
		return nil
	}
	for _, o := range m.Outcomes {
		if o.Name == team {
			return o
		}
	}
	for _, o := range m.Outcomes {
		switch strings.ToLower(o.Name) {
		case "over", "under", "draw":
			continue
		}
		return o
	}
	return nil
}

// SideOutcome finds the Over or Under outcome of a totals market
func (m *Market) SideOutcome(side string) *Outcome {
	if m == nil {
		return nil
	}
	for _, o := range m.Outcomes {
		if strings.EqualFold(o.Name, side) {
			return o
		}
	}
	return nil
}

// TreeSize counts the bookmakers, markets and outcomes beneath an event
func (e *OddsEvent) TreeSize() (bookmakers, markets, outcomes int) {
	for _, b := range e.Bookmakers {
		bookmakers++
		for _, m := range b.Markets {
			markets++
			outcomes += len(m.Outcomes)
		}
	}
	return bookmakers, markets, outcomes
}
