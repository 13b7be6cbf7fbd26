// Package app wires the scanning services from a config.Config. The api,
// worker and cli commands share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/tipenter/internal/config"
	"github.com/dvloznov/tipenter/internal/extraction"
	"github.com/dvloznov/tipenter/internal/gcsuploader"
	"github.com/dvloznov/tipenter/internal/imaging"
	infraBQ "github.com/dvloznov/tipenter/internal/infra/bigquery"
	"github.com/dvloznov/tipenter/internal/jobs"
	"github.com/dvloznov/tipenter/internal/money"
	"github.com/dvloznov/tipenter/internal/pipeline"
)

// Services are the collaborators built from config. Repo and Images are nil
// when BigQuery or Cloud Storage is not configured.
type Services struct {
	Processor *pipeline.Processor
	Verifier  money.Verifier
	Repo      *infraBQ.BigQueryReceiptRepository
	Images    *gcsuploader.GCSImageStore

	closers []func() error
}

// Close releases the cloud clients.
func (s *Services) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Fetcher returns the image store as a jobs.Fetcher, or nil without one.
func (s *Services) Fetcher() jobs.Fetcher {
	if s.Images == nil {
		return nil
	}
	return s.Images
}

// NewVerifier returns the verifier with the configured double-check threshold.
func NewVerifier(cfg config.Config) money.Verifier {
	v := money.NewVerifier()
	if !cfg.DoubleCheckThreshold.IsZero() {
		v.DoubleCheckThreshold = cfg.DoubleCheckThreshold
	}
	return v
}

// NewExtractor returns the configured extractor wrapped in the simulator
// fallback, and the name recorded on scan runs.
func NewExtractor(ctx context.Context, cfg config.Config) (extraction.Extractor, string, error) {
	switch cfg.Extractor {
	case config.ExtractorSimulated:
		return extraction.Simulator{}, config.ExtractorSimulated, nil
	case config.ExtractorAzure:
		azure := extraction.NewAzureOCRExtractor(cfg.AzureVisionEndpoint, cfg.AzureVisionKey)
		fb := extraction.NewFallbackExtractor(azure)
		fb.Timeout = cfg.ExtractTimeout
		return fb, config.ExtractorAzure, nil
	default:
		gemini, err := extraction.NewGeminiExtractor(ctx, cfg.GeminiModel)
		if err != nil {
			return nil, "", err
		}
		fb := extraction.NewFallbackExtractor(gemini)
		fb.Timeout = cfg.ExtractTimeout
		return fb, config.ExtractorGemini, nil
	}
}

// New builds the processor and its optional storage backends.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Services, error) {
	s := &Services{Verifier: NewVerifier(cfg)}

	extractor, extractorName, err := NewExtractor(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("app: extractor: %w", err)
	}

	deps := pipeline.Deps{Extractor: extractor}

	if cfg.BigQueryEnabled() {
		repo, err := infraBQ.NewBigQueryReceiptRepository(ctx, cfg.GCPProject, cfg.BQDataset)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("app: bigquery: %w", err)
		}
		s.Repo = repo
		s.closers = append(s.closers, repo.Close)
		deps.Repo = repo
	} else {
		log.Warn().Msg("GCP_PROJECT not set - receipts will not be persisted to BigQuery")
	}

	if cfg.StorageEnabled() {
		images, err := gcsuploader.NewGCSImageStore(ctx, cfg.GCSBucket)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("app: storage: %w", err)
		}
		s.Images = images
		s.closers = append(s.closers, images.Close)
		deps.Images = images
	} else {
		log.Warn().Msg("GCS_BUCKET not set - receipt images will not be stored")
	}

	s.Processor = pipeline.NewProcessor(deps, pipeline.Options{
		Concurrency: cfg.ScanConcurrency,
		Imaging: imaging.Options{
			MaxDimension: cfg.ImageMaxDimension,
			Quality:      cfg.ImageJPEGQuality,
		},
		Verifier:      s.Verifier,
		ExtractorName: extractorName,
	})

	log.Info().
		Str("extractor", extractorName).
		Bool("bigquery", s.Repo != nil).
		Bool("storage", s.Images != nil).
		Strs("steps", s.Processor.Pipeline().Steps()).
		Msg("Scan pipeline ready")

	return s, nil
}
