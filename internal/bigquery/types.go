package bigquery

import (
	"context"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
)

// Scan run statuses.
const (
	ScanRunRunning    = "RUNNING"
	ScanRunSucceeded  = "SUCCESS"
	ScanRunFailed     = "FAILED"
	ScanRunSuperseded = "SUPERSEDED"
)

// ReceiptRepository provides the receipt warehouse operations.
type ReceiptRepository interface {
	// InsertReceipts inserts a batch of ReceiptRow into the receipts table.
	InsertReceipts(ctx context.Context, rows []*ReceiptRow) error

	// InsertModelOutput inserts a single ModelOutputRow.
	InsertModelOutput(ctx context.Context, row *ModelOutputRow) error

	// StartScanRun inserts a scan run with status=RUNNING and returns its ID.
	StartScanRun(ctx context.Context, batchID, fileName, extractor string) (string, error)

	// MarkScanRunFailed sets status=FAILED, finished_ts and error_message.
	MarkScanRunFailed(ctx context.Context, scanRunID string, scanErr error)

	// MarkScanRunSucceeded sets status=SUCCESS and finished_ts.
	MarkScanRunSucceeded(ctx context.Context, scanRunID string) error

	// QueryReceiptsByDateRange returns receipts scanned between start and end.
	QueryReceiptsByDateRange(ctx context.Context, start, end time.Time) ([]*ReceiptRow, error)

	// QueryReceiptsByBatch returns the receipts of one batch in scan order.
	QueryReceiptsByBatch(ctx context.Context, batchID string) ([]*ReceiptRow, error)

	Close() error
}

// ReceiptRow represents a scanned receipt in BigQuery.
type ReceiptRow struct {
	ReceiptID string `bigquery:"receipt_id" json:"receipt_id"`
	BatchID   string `bigquery:"batch_id" json:"batch_id"`
	ScanRunID string `bigquery:"scan_run_id" json:"scan_run_id"`
	Position  int64  `bigquery:"position" json:"position"`

	FileName string              `bigquery:"file_name" json:"file_name"`
	ImageURI bigquery.NullString `bigquery:"image_uri" json:"image_uri,omitempty"`

	ReceiptDate  string `bigquery:"receipt_date" json:"receipt_date"`
	ClosingTime  string `bigquery:"closing_time" json:"closing_time"`
	CustomerName string `bigquery:"customer_name" json:"customer_name"`
	CheckNumber  string `bigquery:"check_number" json:"check_number"`

	// NULL when the printed value could not be read.
	Amount *big.Rat `bigquery:"amount" json:"amount"`
	Tip    *big.Rat `bigquery:"tip" json:"tip"`
	Total  *big.Rat `bigquery:"total" json:"total"`

	Signed     bool    `bigquery:"signed" json:"signed"`
	Confidence float64 `bigquery:"confidence" json:"confidence"`
	Simulated  bool    `bigquery:"simulated" json:"simulated"`

	IsCorrect     bigquery.NullBool `bigquery:"is_correct" json:"is_correct,omitempty"`
	DoubleChecked bigquery.NullBool `bigquery:"double_checked" json:"double_checked,omitempty"`

	ApprovalStatus string              `bigquery:"approval_status" json:"approval_status"`
	ApprovedBy     bigquery.NullString `bigquery:"approved_by" json:"approved_by,omitempty"`

	CreatedTS time.Time `bigquery:"created_ts" json:"created_ts"`
}

// ScanRunRow tracks one extraction attempt for one image.
type ScanRunRow struct {
	ScanRunID string `bigquery:"scan_run_id"`
	BatchID   string `bigquery:"batch_id"`
	FileName  string `bigquery:"file_name"`

	StartedTS  time.Time              `bigquery:"started_ts"`
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"`

	Extractor string `bigquery:"extractor"`

	Status       string `bigquery:"status"`
	ErrorMessage string `bigquery:"error_message"`
}

// ModelOutputRow keeps the raw extractor output for a scan run.
type ModelOutputRow struct {
	OutputID  string `bigquery:"output_id"`
	ScanRunID string `bigquery:"scan_run_id"`
	BatchID   string `bigquery:"batch_id"`

	Source    string              `bigquery:"source"`
	ModelName bigquery.NullString `bigquery:"model_name"`

	RawOutput string    `bigquery:"raw_output"`
	CreatedTS time.Time `bigquery:"created_ts"`
}
