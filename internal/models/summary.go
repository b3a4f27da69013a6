package models

import (
	"github.com/shopspring/decimal"
)

// OddsSummary is the headline line for an event page, taken from a single bookmaker
type OddsSummary struct {
	BookmakerKey   string           `json:"bookmakerKey,omitempty"`
	BookmakerTitle string           `json:"bookmakerTitle"`
	Spread         SpreadSummary    `json:"spread"`
	Total          TotalSummary     `json:"total"`
	Moneyline      MoneylineSummary `json:"moneyline"`
}

type SpreadSummary struct {
	HomePoint decimal.NullDecimal `json:"homePoint"`
	HomePrice *int                `json:"homePrice"`
	AwayPoint decimal.NullDecimal `json:"awayPoint"`
	AwayPrice *int                `json:"awayPrice"`
}

type TotalSummary struct {
	Point decimal.NullDecimal `json:"point"`
	Over  *int                `json:"over"`
	Under *int                `json:"under"`
}

type MoneylineSummary struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

// fallbackBookmakerTitle labels a summary for an event without bookmakers
const fallbackBookmakerTitle = "Latest Market"

// Summary builds the event page line from the best bookmaker
func (e *OddsEvent) Summary() OddsSummary {
	book := e.BestBookmaker()
	summary := OddsSummary{BookmakerTitle: fallbackBookmakerTitle}
	if book == nil {
		return summary
	}
	summary.BookmakerKey = book.Key
	summary.BookmakerTitle = book.Title

	h2h := book.Market(MarketH2H)
	summary.Moneyline.Home = priceOf(h2h.TeamOutcome(e.HomeTeam))
	summary.Moneyline.Away = priceOf(h2h.TeamOutcome(e.AwayTeam))

	spreads := book.Market(MarketSpreads)
	if home := spreads.TeamOutcome(e.HomeTeam); home != nil {
		summary.Spread.HomePoint = home.Point
		summary.Spread.HomePrice = priceOf(home)
	}
	if away := spreads.TeamOutcome(e.AwayTeam); away != nil {
		summary.Spread.AwayPoint = away.Point
		summary.Spread.AwayPrice = priceOf(away)
	}

	totals := book.Market(MarketTotals)
	over, under := totals.SideOutcome("Over"), totals.SideOutcome("Under")
	summary.Total.Over = priceOf(over)
	summary.Total.Under = priceOf(under)
	switch {
	case over != nil && over.Point.Valid:
		summary.Total.Point = over.Point
	case under != nil:
		summary.Total.Point = under.Point
	}

	return summary
}

func priceOf(o *Outcome) *int {
	if o == nil {
		return nil
	}
	p := o.Price
	return &p
}
