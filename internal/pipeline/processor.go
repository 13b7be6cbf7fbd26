package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/tipenter/internal/extraction"
	"github.com/dvloznov/tipenter/internal/imaging"
	"github.com/dvloznov/tipenter/internal/logger"
	"github.com/dvloznov/tipenter/internal/money"
	"github.com/dvloznov/tipenter/internal/receipt"
)

// DefaultConcurrency is the number of images processed at once per batch.
const DefaultConcurrency = 4

// Deps are the processor's collaborators. Repo and Images are optional;
// without them the matching steps are skipped.
type Deps struct {
	Extractor extraction.Extractor
	Repo      ScanRepository
	Images    ImageStore
}

// Options tunes the processor.
type Options struct {
	Concurrency    int
	Imaging        imaging.Options
	Verifier       money.Verifier
	// ExtractorName is recorded on scan runs.
	ExtractorName string
}

// Processor runs receipt images through the pipeline.
type Processor struct {
	deps     Deps
	opts     Options
	pipeline *Pipeline
}

// NewProcessor builds the step list from the available deps.
func NewProcessor(deps Deps, opts Options) *Processor {
	if deps.Extractor == nil {
		deps.Extractor = extraction.NewFallbackExtractor(nil)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Verifier.Tolerance.IsZero() && opts.Verifier.DoubleCheckThreshold.IsZero() {
		opts.Verifier = money.NewVerifier()
	}
	if opts.ExtractorName == "" {
		opts.ExtractorName = "unknown"
	}

	steps := []PipelineStep{
		&DecodeImageStep{},
		&CompressImageStep{Options: opts.Imaging},
	}
	if deps.Images != nil {
		steps = append(steps, &StoreImageStep{Store: deps.Images})
	}
	if deps.Repo != nil {
		steps = append(steps, &StartScanRunStep{Repo: deps.Repo, Extractor: opts.ExtractorName})
	}
	steps = append(steps, &ExtractStep{Extractor: deps.Extractor})
	if deps.Repo != nil {
		steps = append(steps, &StoreModelOutputStep{Repo: deps.Repo})
	}
	steps = append(steps, &NormalizeStep{}, &VerifyStep{Verifier: opts.Verifier})
	if deps.Repo != nil {
		steps = append(steps, &PersistReceiptStep{Repo: deps.Repo}, &MarkSuccessStep{Repo: deps.Repo})
	}

	return &Processor{deps: deps, opts: opts, pipeline: NewPipeline(steps...)}
}

// Pipeline returns the pipeline the processor runs for each image.
func (p *Processor) Pipeline() *Pipeline { return p.pipeline }

// Verifier returns the verifier used for new records.
func (p *Processor) Verifier() money.Verifier { return p.opts.Verifier }

// ProcessImage runs one image through the pipeline. When a step fails after
// the scan run started, the run is marked FAILED.
func (p *Processor) ProcessImage(ctx context.Context, batchID string, position int, img extraction.Image) (*receipt.Record, error) {
	state := &State{BatchID: batchID, Position: position, Image: img}

	if err := p.pipeline.Execute(ctx, state); err != nil {
		if state.ScanRunID != "" && p.deps.Repo != nil {
			p.deps.Repo.MarkScanRunFailed(context.WithoutCancel(ctx), state.ScanRunID, err)
		}
		return nil, err
	}
	return state.Result.Record, nil
}

// ProcessBatch processes images with bounded concurrency and returns one
// record per image in input order. An image that fails yields a record with
// Error set; only context cancellation fails the whole batch.
func (p *Processor) ProcessBatch(ctx context.Context, batchID string, images []extraction.Image) ([]*receipt.Record, error) {
	log := logger.FromContext(ctx)
	results := make([]*receipt.Record, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i, img := range images {
		g.Go(func() error {
			rec, err := p.ProcessImage(gctx, batchID, i, img)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Error().
					Err(err).
					Str("batch_id", batchID).
					Str("file_name", img.Name).
					Msg("processing image failed")
				rec = &receipt.Record{FileName: img.Name, Tip: receipt.DefaultTip, Error: err.Error()}
			}
			results[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info().
		Str("batch_id", batchID).
		Int("images", len(images)).
		Msg("batch processed")
	return results, nil
}
