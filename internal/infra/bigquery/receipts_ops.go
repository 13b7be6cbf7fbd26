package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	bq "github.com/dvloznov/tipenter/internal/bigquery"
)

const receiptColumns = `
			r.receipt_id,
			r.batch_id,
			r.scan_run_id,
			r.position,
			r.file_name,
			r.image_uri,
			r.receipt_date,
			r.closing_time,
			r.customer_name,
			r.check_number,
			r.amount,
			r.tip,
			r.total,
			r.signed,
			r.confidence,
			r.simulated,
			r.is_correct,
			r.double_checked,
			r.approval_status,
			r.approved_by,
			r.created_ts`

// InsertReceiptsWithClient streams rows into the receipts table.
func InsertReceiptsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*bq.ReceiptRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := client.DatasetInProject(ds.Project, ds.Name).Table(receiptsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertReceipts: inserting rows: %w", err)
	}
	return nil
}

// QueryReceiptsByDateRangeWithClient returns receipts created between start
// and end (inclusive) whose scan run succeeded.
func QueryReceiptsByDateRangeWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, start, end time.Time) ([]*bq.ReceiptRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s r
		INNER JOIN %s sr
		  ON r.scan_run_id = sr.scan_run_id
		WHERE DATE(r.created_ts) >= @start_date
		  AND DATE(r.created_ts) <= @end_date
		  AND sr.status = @status
		ORDER BY r.created_ts, r.position
	`, receiptColumns, ds.table(receiptsTable), ds.table(scanRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: civil.DateOf(start)},
		{Name: "end_date", Value: civil.DateOf(end)},
		{Name: "status", Value: bq.ScanRunSucceeded},
	}

	rows, err := readReceipts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("QueryReceiptsByDateRange: %w", err)
	}
	return rows, nil
}

// QueryReceiptsByBatchWithClient returns one batch's receipts in scan order.
func QueryReceiptsByBatchWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, batchID string) ([]*bq.ReceiptRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s r
		WHERE r.batch_id = @batch_id
		ORDER BY r.position
	`, receiptColumns, ds.table(receiptsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "batch_id", Value: batchID},
	}

	rows, err := readReceipts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("QueryReceiptsByBatch: %w", err)
	}
	return rows, nil
}

func readReceipts(ctx context.Context, q *bigquery.Query) ([]*bq.ReceiptRow, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var rows []*bq.ReceiptRow
	for {
		var r bq.ReceiptRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}
