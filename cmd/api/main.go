package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/tipenter/internal/api"
	"github.com/dvloznov/tipenter/internal/api/middleware"
	"github.com/dvloznov/tipenter/internal/app"
	"github.com/dvloznov/tipenter/internal/config"
	infraBQ "github.com/dvloznov/tipenter/internal/infra/bigquery"
	"github.com/dvloznov/tipenter/internal/infra/postgres"
	"github.com/dvloznov/tipenter/internal/jobs"
	"github.com/dvloznov/tipenter/internal/jobs/inmemory"
	"github.com/dvloznov/tipenter/internal/jobs/rabbitmq"
	"github.com/dvloznov/tipenter/internal/logger"
	"github.com/dvloznov/tipenter/internal/receipt"
)

// jobQueue is a publisher the API can also stop on shutdown.
type jobQueue interface {
	jobs.Publisher
	Stop(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	port := flag.String("port", cfg.Port, "HTTP server port")
	flag.Parse()

	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx := logger.WithContext(context.Background(), log)

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scan services")
	}
	defer services.Close()

	var store receipt.Store = receipt.NewMemoryStore()
	if services.Repo != nil {
		store = infraBQ.NewReadThroughStore(receipt.NewMemoryStore(), services.Repo, services.Verifier)
	}

	var ledger postgres.Ledger
	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Postgres")
		}
		defer pool.Close()
		ledger = postgres.NewPGLedger(pool)
	} else {
		log.Warn().Msg("DATABASE_URL not set - tip updates and approvals will not be recorded")
	}

	// Scan jobs run in-process unless a broker is configured, in which case
	// cmd/worker consumes them.
	jobStore := inmemory.NewStore()
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	var queue jobQueue
	if cfg.RabbitMQURL != "" {
		rq, err := rabbitmq.Dial(cfg.RabbitMQURL, rabbitmq.Options{Name: cfg.ScanQueue}, jobStore)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
		}
		defer rq.Close()
		queue = rq
		log.Info().Str("queue", cfg.ScanQueue).Msg("Publishing scan jobs to RabbitMQ")
	} else {
		mq := inmemory.NewQueue(inmemory.DefaultOptions(), jobStore)
		defer mq.Close()
		if err := mq.Start(workerCtx, jobs.NewScanHandler(services.Processor, services.Fetcher(), store)); err != nil {
			log.Fatal().Err(err).Msg("Failed to start job worker")
		}
		queue = mq
		log.Info().Msg("Running scan jobs in-process")
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	}

	handler := api.NewRouter(api.Deps{
		Log:            log,
		Scanner:        services.Processor,
		Store:          store,
		Verifier:       services.Verifier,
		Publisher:      queue,
		JobStore:       jobStore,
		Ledger:         ledger,
		Limiter:        limiter,
		CORSOrigin:     cfg.CORSOrigin,
		EnhanceQuality: cfg.ImageJPEGQuality,
	})

	// Batch scans can take minutes, so the write timeout is generous.
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	cancelWorker()
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
