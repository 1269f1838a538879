package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/glycorisk/internal/api"
	"stealthcompany.com/glycorisk/internal/config"
	"stealthcompany.com/glycorisk/internal/couchbase"
	"stealthcompany.com/glycorisk/internal/metrics"
	"stealthcompany.com/glycorisk/internal/orchestrator"
	"stealthcompany.com/glycorisk/internal/patients"
	"stealthcompany.com/glycorisk/pkg/zerolog_config"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Info().Msg("Not found .env file, assuming environment variables are set")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	zerolog_config.SetAppPrefix("glycorisk-api")
	if err := zerolog_config.StartupWithEnv(cfg.ElasticsearchURL, "logs", cfg.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().Msg("Starting glycorisk-api service")

	// Invalid thresholds stop the process before anything is served
	engine, err := cfg.NewEngine()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid threshold configuration")
	}

	ctx, cancel := orchestrator.ShutdownContext(context.Background())
	defer cancel()

	metrics.StartSystemMetrics(ctx, "glycorisk-api", 15*time.Second)

	var opts []api.Option
	var source patients.Source
	if cfg.UseCouchbase() {
		dbClient, err := couchbase.NewClient(couchbase.Options{
			URL:       cfg.CouchbaseURL,
			Username:  cfg.CouchbaseUsername,
			Password:  cfg.CouchbasePassword,
			Bucket:    cfg.CouchbaseBucket,
			LockOwner: hostOwner("api"),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Couchbase")
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close Couchbase connection")
			}
		}()
		source = dbClient.Patients()
		opts = append(opts, api.WithReadiness(dbClient))
		log.Info().Str("bucket", cfg.CouchbaseBucket).Msg("Serving patients from Couchbase")
	} else {
		if cfg.PatientsFile == "" {
			log.Fatal().Msg("Either COUCHBASE_URL or PATIENTS_FILE must be set")
		}
		source = patients.NewFileSource(cfg.PatientsFile)
		log.Info().Str("file", cfg.PatientsFile).Msg("Serving patients from file")
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           api.NewServer(engine, source, opts...).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sm := orchestrator.NewServiceManager()
	sm.Add("http", orchestrator.HTTPService(server, 30*time.Second))
	if err := sm.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("API service failed")
	}

	log.Info().Msg("Server exited")
}

func hostOwner(app string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s@%s/%d", app, host, os.Getpid())
}
