package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/tipenter/internal/app"
	"github.com/dvloznov/tipenter/internal/config"
	"github.com/dvloznov/tipenter/internal/jobs"
	"github.com/dvloznov/tipenter/internal/jobs/inmemory"
	"github.com/dvloznov/tipenter/internal/jobs/rabbitmq"
	"github.com/dvloznov/tipenter/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if cfg.RabbitMQURL == "" {
		log.Fatal().Msg("RABBITMQ_URL is required for the worker")
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scan services")
	}
	defer services.Close()

	if services.Repo == nil {
		log.Warn().Msg("Worker results are only logged; set GCP_PROJECT so the API can read them from BigQuery")
	}

	// Job state is kept locally for logging; the API tracks what it published.
	queue, err := rabbitmq.Dial(cfg.RabbitMQURL, rabbitmq.Options{
		Name:     cfg.ScanQueue,
		Prefetch: 1,
	}, inmemory.NewStore())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer queue.Close()

	handler := jobs.NewScanHandler(services.Processor, services.Fetcher(), nil)

	if err := queue.Start(ctx, func(ctx context.Context, job *jobs.ScanBatchJob) error {
		log.Info().
			Str("job_id", job.JobID).
			Str("batch_id", job.BatchID).
			Int("images", len(job.Images)).
			Int("retry_count", job.RetryCount).
			Msg("Processing scan job")

		if err := handler(ctx, job); err != nil {
			log.Error().Err(err).Str("job_id", job.JobID).Msg("Scan job failed")
			return err
		}

		log.Info().
			Str("job_id", job.JobID).
			Int("processed_images", job.Processed).
			Int("failed_images", job.Failed).
			Msg("Scan job completed")
		return nil
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Str("queue", cfg.ScanQueue).Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Let the in-flight job finish before its context is canceled.
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	log.Info().Msg("Worker service exited")
}
