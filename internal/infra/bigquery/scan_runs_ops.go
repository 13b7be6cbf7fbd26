package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	bq "github.com/dvloznov/tipenter/internal/bigquery"
	"github.com/dvloznov/tipenter/internal/logger"
)

const (
	receiptsTable     = "receipts"
	scanRunsTable     = "scan_runs"
	modelOutputsTable = "model_outputs"

	// maxErrorMessageLen bounds error_message on failed runs.
	maxErrorMessageLen = 2000
)

// Dataset names the BigQuery project and dataset holding the receipt tables.
type Dataset struct {
	Project string
	Name    string
}

// table returns the fully qualified, backquoted table name.
func (d Dataset) table(name string) string {
	return "`" + d.Project + "." + d.Name + "." + name + "`"
}

// runDML runs q and waits for it to finish.
func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

// StartScanRunWithClient inserts a scan run with status=RUNNING and returns
// the generated scan_run_id.
func StartScanRunWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, batchID, fileName, extractor string) (string, error) {
	scanRunID := uuid.NewString()

	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			scan_run_id,
			batch_id,
			file_name,
			started_ts,
			extractor,
			status
		)
		VALUES (
			@scan_run_id,
			@batch_id,
			@file_name,
			@started_ts,
			@extractor,
			@status
		)
	`, ds.table(scanRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "scan_run_id", Value: scanRunID},
		{Name: "batch_id", Value: batchID},
		{Name: "file_name", Value: fileName},
		{Name: "started_ts", Value: time.Now()},
		{Name: "extractor", Value: extractor},
		{Name: "status", Value: bq.ScanRunRunning},
	}

	if err := runDML(ctx, q); err != nil {
		return "", fmt.Errorf("StartScanRun: %w", err)
	}
	return scanRunID, nil
}

// MarkScanRunFailedWithClient sets status=FAILED, finished_ts and a truncated
// error_message. Failures are logged, not returned.
func MarkScanRunFailedWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, scanRunID string, scanErr error) {
	log := logger.FromContext(ctx)

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE scan_run_id = @scan_run_id
	`, ds.table(scanRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: bq.ScanRunFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: truncateError(scanErr)},
		{Name: "scan_run_id", Value: scanRunID},
	}

	if err := runDML(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("scan_run_id", scanRunID).
			Msg("MarkScanRunFailed: update failed")
	}
}

// MarkScanRunSucceededWithClient sets status=SUCCESS and finished_ts and
// clears error_message.
func MarkScanRunSucceededWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, scanRunID string) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = ""
		WHERE scan_run_id = @scan_run_id
	`, ds.table(scanRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: bq.ScanRunSucceeded},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "scan_run_id", Value: scanRunID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("MarkScanRunSucceeded: %w", err)
	}
	return nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return msg
}
