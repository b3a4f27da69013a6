package models

import "strings"

// League identifies a tracked sports league and the provider sport key it maps to
type League struct {
	Code     string `yaml:"code" json:"code"`
	SportKey string `yaml:"sport_key" json:"sportKey"`
	// Title is the provider's sport_title for the league; empty means Code
	Title string `yaml:"title" json:"title,omitempty"`
}

// SportTitle returns the sport_title stored events carry for this league
func (l League) SportTitle() string {
	if l.Title != "" {
		return l.Title
	}
	return l.Code
}

// DefaultLeagues are the leagues synced when no catalog file is configured
func DefaultLeagues() []League {
	return []League{
		{Code: "NFL", SportKey: "americanfootball_nfl"},
		{Code: "NBA", SportKey: "basketball_nba"},
		{Code: "NCAAF", SportKey: "americanfootball_ncaaf"},
		{Code: "NCAAB", SportKey: "basketball_ncaab"},
		{Code: "MLB", SportKey: "baseball_mlb"},
		{Code: "MMA", SportKey: "mma_mixed_martial_arts"},
	}
}

// FindLeague looks a league up by code, case-insensitively
func FindLeague(leagues []League, code string) (League, bool) {
	for _, l := range leagues {
		if strings.EqualFold(l.Code, code) {
			return l, true
		}
	}
	return League{}, false
}
