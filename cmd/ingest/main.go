package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/glycorisk/internal/config"
	"stealthcompany.com/glycorisk/internal/couchbase"
	"stealthcompany.com/glycorisk/internal/fhir"
	"stealthcompany.com/glycorisk/internal/metrics"
	"stealthcompany.com/glycorisk/internal/orchestrator"
	"stealthcompany.com/glycorisk/pkg/zerolog_config"
)

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Info().Msg("Not found .env file, assuming environment variables are set")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	zerolog_config.SetAppPrefix("glycorisk-ingest")
	if err := zerolog_config.StartupWithEnv(cfg.ElasticsearchURL, "logs", cfg.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().Msg("Starting glycorisk-ingest service")

	if !cfg.UseCouchbase() {
		log.Fatal().Msg("COUCHBASE_URL is required for ingestion")
	}

	ctx, cancel := orchestrator.ShutdownContext(context.Background())
	defer cancel()

	metrics.StartSystemMetrics(ctx, "glycorisk-ingest", 15*time.Second)

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	log.Info().Msg("FHIR data ingestion completed successfully")
}

func run(ctx context.Context, cfg *config.Config) error {
	host, _ := os.Hostname()
	dbClient, err := couchbase.NewClient(couchbase.Options{
		URL:       cfg.CouchbaseURL,
		Username:  cfg.CouchbaseUsername,
		Password:  cfg.CouchbasePassword,
		Bucket:    cfg.CouchbaseBucket,
		LockOwner: fmt.Sprintf("ingest@%s/%d", host, os.Getpid()),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Couchbase: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Couchbase connection")
		}
	}()

	locker := dbClient.GetLocker()

	log.Info().Msg("Locking database for ingestion")
	if err := locker.Lock(ctx); err != nil {
		if errors.Is(err, couchbase.ErrLocked) {
			return fmt.Errorf("another ingestion is running: %w", err)
		}
		return fmt.Errorf("failed to lock database: %w", err)
	}

	// Unlock with a fresh context so a cancelled run still releases the lock
	defer func() {
		unlockCtx, unlockCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer unlockCancel()
		log.Info().Msg("Unlocking database after ingestion")
		if err := locker.Unlock(unlockCtx); err != nil {
			log.Error().Err(err).Msg("Failed to unlock database")
		}
	}()

	if err := dbClient.EnsureSchema(ctx); err != nil {
		return err
	}

	startedAt := time.Now().UTC()
	if err := dbClient.MarkIngestionStarted(ctx); err != nil {
		return err
	}

	fhirClient := fhir.NewClient(cfg.FHIRBaseURL, cfg.FHIRTimeout)
	ingester := fhir.NewIngester(fhirClient, dbClient.Patients(), cfg.EvalWorkers)

	result, err := ingester.Run(ctx, cfg.FHIRPatientCount)
	if err != nil {
		return err
	}

	return dbClient.MarkIngestionComplete(ctx, startedAt, result.Stored)
}
