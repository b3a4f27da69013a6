package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"oddsline/ingestion/internal/api"
	"oddsline/ingestion/internal/cache"
	"oddsline/ingestion/internal/client"
	"oddsline/ingestion/internal/config"
	"oddsline/ingestion/internal/llm"
	"oddsline/ingestion/internal/metrics"
	"oddsline/ingestion/internal/prediction"
	"oddsline/ingestion/internal/repository"
	"oddsline/ingestion/internal/scheduler"
	"oddsline/ingestion/internal/syncer"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	// Setup logger
	setupLogger(cfg)

	log.Info().Msg("Starting odds ingestion worker")
	log.Info().
		Str("env", cfg.AppEnv).
		Str("log_level", cfg.LogLevel).
		Str("generator", cfg.GeneratorProvider).
		Msg("Configuration loaded")

	leagues, err := cfg.Leagues()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load leagues")
	}

	// Create context that listens for cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	// Initialize odds provider client
	oddsClient := client.NewOddsClient(
		cfg.OddsAPIBaseURL,
		cfg.OddsAPIKey,
		cfg.OddsAPITimeout,
		client.Options{
			Regions:    cfg.OddsAPIRegions,
			Markets:    cfg.OddsAPIMarkets,
			OddsFormat: "american",
		},
	)
	log.Info().Int("leagues", len(leagues)).Msg("Odds client initialized")

	// Initialize database connection
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
	defer db.Close()
	log.Info().Msg("Database connection established")

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
		log.Info().Msg("Schema applied")
	}

	// Redis is optional; locks and cached reads are skipped without it
	var (
		invalidator syncer.CacheInvalidator
		locker      scheduler.Locker
		readCache   api.Cache
	)
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cache.Config{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis - continuing without cache")
		} else {
			defer redisCache.Close()
			invalidator, locker, readCache = redisCache, redisCache, redisCache
			log.Info().Msg("Redis cache connected")
		}
	}

	// Text generator
	apiKey, model := cfg.GeneratorCredentials()
	gen, err := llm.New(llm.Config{
		Provider: cfg.GeneratorProvider,
		APIKey:   apiKey,
		Model:    model,
		Timeout:  cfg.GeneratorTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create text generator")
	}

	oddsSync := syncer.New(oddsClient, syncer.NewDatabaseStore(db), leagues, cfg.SyncConcurrency, invalidator)
	predictions := prediction.NewGenerator(db.Events, db.Predictions, gen, cfg.PredictionConcurrency, invalidator)

	sched, err := scheduler.New(scheduler.Options{
		Timezone:       cfg.SchedulerTimezone,
		SyncCron:       cfg.OddsSyncCron,
		PredictionCron: cfg.PredictionCron,
		HorizonDays:    cfg.PredictionHorizonDays,
		LockTTL:        cfg.RunLockTTL,
	}, scheduler.Jobs{Sync: oddsSync, Predictions: predictions}, locker)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	if cfg.EnableScheduler {
		log.Info().Msg("Starting scheduler...")
		if err := sched.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	}

	// Update system uptime metric
	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SystemUptime.Set(time.Since(startTime).Seconds())
			case <-ctx.Done():
				return
			}
		}
	}()

	handler := api.NewHandler(
		sched,
		db.Events,
		db.Predictions,
		db,
		readCache,
		time.Duration(cfg.CacheTTLEvents)*time.Second,
		leagues,
	)
	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: api.NewRouter(handler, api.RouterOptions{
			CORSOrigins:   cfg.CORSOrigins,
			EnableMetrics: cfg.EnableMetrics,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	// Keep running until context is cancelled
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info().Msg("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Shutting down scheduler...")
	sched.Stop(shutdownCtx)

	log.Info().Msg("Worker shutdown complete")
}

// setupLogger configures the zerolog logger
func setupLogger(cfg *config.Config) {
	// Pretty console logging in development
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	// Set log level
	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		parsedLevel, err := zerolog.ParseLevel(cfg.LogLevel)
		if err == nil {
			level = parsedLevel
		}
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}
