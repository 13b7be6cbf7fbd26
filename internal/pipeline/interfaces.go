package pipeline

import (
	"context"

	bq "github.com/dvloznov/tipenter/internal/bigquery"
)

// ScanRepository is the part of the receipt warehouse the pipeline writes to.
type ScanRepository interface {
	StartScanRun(ctx context.Context, batchID, fileName, extractor string) (string, error)
	MarkScanRunFailed(ctx context.Context, scanRunID string, scanErr error)
	MarkScanRunSucceeded(ctx context.Context, scanRunID string) error
	InsertModelOutput(ctx context.Context, row *bq.ModelOutputRow) error
	InsertReceipts(ctx context.Context, rows []*bq.ReceiptRow) error
}

// ImageStore keeps the uploaded original images.
type ImageStore interface {
	UploadImage(ctx context.Context, batchID, fileName, contentType string, data []byte) (string, error)
}
