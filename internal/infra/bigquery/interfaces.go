package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	bq "github.com/dvloznov/tipenter/internal/bigquery"
)

// Re-export shared types so callers only import this package.
type (
	ReceiptRepository = bq.ReceiptRepository
	ReceiptRow        = bq.ReceiptRow
	ModelOutputRow    = bq.ModelOutputRow
)

// BigQueryReceiptRepository is the BigQuery implementation of
// ReceiptRepository. It holds one shared client.
type BigQueryReceiptRepository struct {
	client *bigquery.Client
	ds     Dataset
}

var _ ReceiptRepository = (*BigQueryReceiptRepository)(nil)

// NewBigQueryReceiptRepository creates a repository for projectID.datasetID.
func NewBigQueryReceiptRepository(ctx context.Context, projectID, datasetID string) (*BigQueryReceiptRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryReceiptRepository: creating client: %w", err)
	}
	return &BigQueryReceiptRepository{
		client: client,
		ds:     Dataset{Project: projectID, Name: datasetID},
	}, nil
}

// Close closes the BigQuery client.
func (r *BigQueryReceiptRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *BigQueryReceiptRepository) InsertReceipts(ctx context.Context, rows []*ReceiptRow) error {
	return InsertReceiptsWithClient(ctx, r.client, r.ds, rows)
}

func (r *BigQueryReceiptRepository) InsertModelOutput(ctx context.Context, row *ModelOutputRow) error {
	return InsertModelOutputWithClient(ctx, r.client, r.ds, row)
}

func (r *BigQueryReceiptRepository) StartScanRun(ctx context.Context, batchID, fileName, extractor string) (string, error) {
	return StartScanRunWithClient(ctx, r.client, r.ds, batchID, fileName, extractor)
}

func (r *BigQueryReceiptRepository) MarkScanRunFailed(ctx context.Context, scanRunID string, scanErr error) {
	MarkScanRunFailedWithClient(ctx, r.client, r.ds, scanRunID, scanErr)
}

func (r *BigQueryReceiptRepository) MarkScanRunSucceeded(ctx context.Context, scanRunID string) error {
	return MarkScanRunSucceededWithClient(ctx, r.client, r.ds, scanRunID)
}

func (r *BigQueryReceiptRepository) QueryReceiptsByDateRange(ctx context.Context, start, end time.Time) ([]*ReceiptRow, error) {
	return QueryReceiptsByDateRangeWithClient(ctx, r.client, r.ds, start, end)
}

func (r *BigQueryReceiptRepository) QueryReceiptsByBatch(ctx context.Context, batchID string) ([]*ReceiptRow, error) {
	return QueryReceiptsByBatchWithClient(ctx, r.client, r.ds, batchID)
}

// DeleteBatch removes everything stored for batchID.
func (r *BigQueryReceiptRepository) DeleteBatch(ctx context.Context, batchID string) error {
	return DeleteBatchWithClient(ctx, r.client, r.ds, batchID)
}
