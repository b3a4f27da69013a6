// Command manualsync runs a single odds sync or prediction run outside the scheduler.
package main

import (
	"context"
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"oddsline/ingestion/internal/cache"
	"oddsline/ingestion/internal/client"
	"oddsline/ingestion/internal/config"
	"oddsline/ingestion/internal/llm"
	"oddsline/ingestion/internal/prediction"
	"oddsline/ingestion/internal/repository"
	"oddsline/ingestion/internal/syncer"

	"github.com/rs/zerolog/log"
)

func main() {
	task := flag.String("task", "sync", "run to perform: sync or predict")
	prune := flag.Bool("prune", false, "delete events that have already started after syncing")
	days := flag.Int("days", 0, "prediction window in days (0 uses PREDICTION_HORIZON_DAYS)")
	fresh := flag.String("fresh", "", "comma-separated event ids whose stored prediction is dropped before the run")
	flag.Parse()

	ctx := context.Background()
	cfg := config.MustLoad()

	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// 1. Validate database connectivity
	log.Info().Msg("Validating service health...")
	if err := db.Health(ctx); err != nil {
		log.Fatal().Err(err).Msg("Database health check failed")
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
	}

	// Cached event reads are dropped after writes when Redis is reachable
	var (
		invalidator syncer.CacheInvalidator
		redisCache  *cache.RedisCache
	)
	if cfg.RedisEnabled {
		redisCache, err = cache.NewRedisCache(cache.Config{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis - cached reads will expire on their own")
		} else {
			invalidator = redisCache
		}
	}

	// 2. Run the requested task
	code := 0
	switch *task {
	case "sync":
		code = runSync(ctx, cfg, db, invalidator, *prune)
	case "predict":
		code = runPredictions(ctx, cfg, db, invalidator, *days, *fresh)
	default:
		log.Error().Str("task", *task).Msg("Unknown task, expected sync or predict")
		code = 2
	}

	if redisCache != nil {
		_ = redisCache.Close()
	}
	db.Close()
	if code != 0 {
		os.Exit(code)
	}
}

func runSync(ctx context.Context, cfg *config.Config, db *repository.Database, invalidator syncer.CacheInvalidator, prune bool) int {
	leagues, err := cfg.Leagues()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load leagues")
		return 1
	}

	oddsClient := client.NewOddsClient(cfg.OddsAPIBaseURL, cfg.OddsAPIKey, cfg.OddsAPITimeout, client.Options{
		Regions:    cfg.OddsAPIRegions,
		Markets:    cfg.OddsAPIMarkets,
		OddsFormat: "american",
	})

	engine := syncer.New(oddsClient, syncer.NewDatabaseStore(db), leagues, cfg.SyncConcurrency, invalidator)
	result, err := engine.SyncOdds(ctx, syncer.Options{Prune: prune})
	if err != nil {
		log.Error().Err(err).Msg("Sync aborted")
		return 1
	}

	for _, e := range result.Errors {
		log.Warn().
			Str("league", e.League).
			Str("event_id", e.EventID).
			Str("kind", e.Kind).
			Msg(e.Message)
	}

	// 3. Summary
	log.Info().
		Str("run_id", result.RunID).
		Int("leagues", result.Counts.Leagues).
		Int("events", result.Counts.Events).
		Int("created", result.Counts.Created).
		Int("updated", result.Counts.Updated).
		Int64("pruned", result.Counts.Pruned).
		Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Manual sync complete")

	if !result.Success {
		return 1
	}
	return 0
}

func runPredictions(ctx context.Context, cfg *config.Config, db *repository.Database, invalidator prediction.CacheInvalidator, days int, fresh string) int {
	if days <= 0 {
		days = cfg.PredictionHorizonDays
	}

	key, model := cfg.GeneratorCredentials()
	gen, err := llm.New(llm.Config{
		Provider: cfg.GeneratorProvider,
		APIKey:   key,
		Model:    model,
		Timeout:  cfg.GeneratorTimeout,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create text generator")
		return 1
	}

	for _, id := range strings.Split(fresh, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if err := db.Predictions.DeleteByEventID(ctx, id); err != nil {
			log.Error().Err(err).Str("event_id", id).Msg("Failed to drop stored prediction")
			return 1
		}
		log.Info().Str("event_id", id).Msg("Dropped stored prediction")
	}

	start := time.Now()
	result, err := prediction.NewGenerator(db.Events, db.Predictions, gen, cfg.PredictionConcurrency, invalidator).
		GeneratePredictions(ctx, days)
	if err != nil {
		log.Error().Err(err).Msg("Prediction run aborted")
		return 1
	}

	for _, f := range result.Failures {
		log.Warn().Str("event_id", f.EventID).Str("kind", f.Kind).Msg(f.Error)
	}

	log.Info().
		Str("run_id", result.RunID).
		Int("days", days).
		Int("processed", result.Processed).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("degraded", result.Degraded).
		Int("failed", len(result.Failures)).
		Dur("duration", time.Since(start)).
		Msg("Manual prediction run complete")

	if !result.Success {
		return 1
	}
	return 0
}
