package syncer

import (
	"context"
	"time"

	"oddsline/ingestion/internal/models"
	"oddsline/ingestion/internal/repository"
)

// DatabaseStore adapts the repository layer to Store
type DatabaseStore struct {
	db *repository.Database
}

// NewDatabaseStore wraps db for use by a Syncer
func NewDatabaseStore(db *repository.Database) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (s *DatabaseStore) Ping(ctx context.Context) error {
	return s.db.Health(ctx)
}

func (s *DatabaseStore) ReplaceEventTree(ctx context.Context, event *models.OddsEvent) (bool, error) {
	return s.db.Events.ReplaceEventTree(ctx, event)
}

func (s *DatabaseStore) PruneStartedBefore(ctx context.Context, now time.Time) (int64, error) {
	return s.db.Events.PruneStartedBefore(ctx, now)
}
