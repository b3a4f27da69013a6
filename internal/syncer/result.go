package syncer

import (
	"errors"
	"time"

	"oddsline/ingestion/internal/client"
	"oddsline/ingestion/internal/repository"
)

// Error kinds reported in a sync Result
const (
	KindProviderUnavailable = string(client.ProviderUnavailable)
	KindProviderRateLimited = string(client.ProviderRateLimited)
	KindPersistence         = "persistence"
	KindPrune               = "prune"
)

// Counts tallies the work a sync applied
type Counts struct {
	Leagues int   `json:"leagues"`
	Events  int   `json:"events"`
	Created int   `json:"created"`
	Updated int   `json:"updated"`
	Pruned  int64 `json:"pruned"`
}

// ErrorEntry is one per-league or per-event failure
type ErrorEntry struct {
	League  string `json:"league,omitempty"`
	EventID string `json:"eventId,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is the outcome of one SyncOdds run
type Result struct {
	RunID      string       `json:"runId"`
	Success    bool         `json:"success"`
	Counts     Counts       `json:"counts"`
	Errors     []ErrorEntry `json:"errors"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
}

func leagueError(league string, err error) ErrorEntry {
	entry := ErrorEntry{League: league, Kind: KindProviderUnavailable, Message: err.Error()}
	var pe *client.ProviderError
	if errors.As(err, &pe) {
		entry.Kind = string(pe.Kind)
	}
	return entry
}

func eventError(league string, err error) ErrorEntry {
	entry := ErrorEntry{League: league, Kind: KindPersistence, Message: err.Error()}
	var pe *repository.PersistenceError
	if errors.As(err, &pe) {
		entry.EventID = pe.EventID
	}
	return entry
}
