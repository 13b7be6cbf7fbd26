// Command migrate applies the SQL migrations for the receipt warehouse
// (BigQuery) or the tip ledger (Postgres).
package main

import (
	"context"
	"flag"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/tipenter/internal/config"
	"github.com/dvloznov/tipenter/internal/infra/postgres"
	"github.com/dvloznov/tipenter/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	var (
		targetName    = flag.String("target", "postgres", "Migration target: postgres or bigquery")
		projectID     = flag.String("project", cfg.GCPProject, "GCP project ID (bigquery target)")
		datasetID     = flag.String("dataset", cfg.BQDataset, "BigQuery dataset ID")
		databaseURL   = flag.String("database-url", cfg.DatabaseURL, "Postgres connection string (postgres target)")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "", "Path to migrations directory (default migrations/<target>)")
	)
	flag.Parse()

	if *migrationsDir == "" {
		*migrationsDir = "migrations/" + *targetName
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var (
		target       Target
		placeholders map[string]string
	)

	switch *targetName {
	case "postgres":
		if *databaseURL == "" {
			log.Fatal().Msg("Error: -database-url (or DATABASE_URL) is required for the postgres target")
		}
		pool, err := postgres.Connect(ctx, *databaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Postgres")
		}
		defer pool.Close()
		target = &postgresTarget{pool: pool}
		log.Info().Msg("Connected to Postgres")

	case "bigquery":
		if *projectID == "" {
			log.Fatal().Msg("Error: -project (or GCP_PROJECT) is required for the bigquery target")
		}
		client, err := bigquery.NewClient(ctx, *projectID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		defer client.Close()
		target = &bigQueryTarget{client: client, projectID: *projectID, datasetID: *datasetID}
		placeholders = map[string]string{
			"{{PROJECT_ID}}": *projectID,
			"{{DATASET_ID}}": *datasetID,
		}
		log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	default:
		log.Fatal().Str("target", *targetName).Msg("Error: unknown -target, expected postgres or bigquery")
	}

	migrations, err := readMigrations(*migrationsDir, placeholders, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}

	applied, err := migrate(ctx, target, migrations, *appliedBy, log)
	if err != nil {
		log.Fatal().Err(err).Int("applied", applied).Msg("Migration failed")
	}

	if applied == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("applied", applied).Msg("Successfully applied migrations")
	}
}
