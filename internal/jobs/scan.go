package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/tipenter/internal/extraction"
	"github.com/dvloznov/tipenter/internal/gcsuploader"
	"github.com/dvloznov/tipenter/internal/logger"
	"github.com/dvloznov/tipenter/internal/receipt"
)

// BatchProcessor scans a batch of images. *pipeline.Processor satisfies it.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batchID string, images []extraction.Image) ([]*receipt.Record, error)
}

// Fetcher downloads images referenced by gs:// URI.
type Fetcher interface {
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// NewScanHandler returns the JobHandler for scan jobs. fetcher is needed only
// for jobs that reference images by URI; store may be nil when results are
// persisted elsewhere.
func NewScanHandler(p BatchProcessor, fetcher Fetcher, store receipt.Store) JobHandler {
	return func(ctx context.Context, job *ScanBatchJob) error {
		log := logger.FromContext(ctx)

		images, err := resolveImages(ctx, fetcher, job.Images)
		if err != nil {
			return err
		}

		records, err := p.ProcessBatch(ctx, job.BatchID, images)
		if err != nil {
			return fmt.Errorf("scan job %s: %w", job.JobID, err)
		}

		job.Processed, job.Failed = 0, 0
		for _, r := range records {
			if r.Error != "" {
				job.Failed++
			} else {
				job.Processed++
			}
		}

		if store != nil {
			if err := store.PutBatch(ctx, job.BatchID, records); err != nil {
				return fmt.Errorf("scan job %s: store batch: %w", job.JobID, err)
			}
		}

		log.Debug().
			Str("job_id", job.JobID).
			Int("processed_images", job.Processed).
			Int("failed_images", job.Failed).
			Msg("scan job handled")
		return nil
	}
}

func resolveImages(ctx context.Context, fetcher Fetcher, refs []ImageRef) ([]extraction.Image, error) {
	images := make([]extraction.Image, len(refs))
	for i, ref := range refs {
		img := extraction.Image{Name: ref.Name, MimeType: ref.MimeType, Data: ref.Data}
		if len(img.Data) == 0 && ref.GCSURI != "" {
			if fetcher == nil {
				return nil, fmt.Errorf("image %q: no fetcher for %s", ref.Name, ref.GCSURI)
			}
			data, err := fetcher.FetchFromGCS(ctx, ref.GCSURI)
			if err != nil {
				return nil, fmt.Errorf("image %q: %w", ref.Name, err)
			}
			img.Data = data
			if img.Name == "" {
				img.Name = gcsuploader.ExtractFilenameFromGCSURI(ref.GCSURI)
			}
		}
		images[i] = img
	}
	return images, nil
}
