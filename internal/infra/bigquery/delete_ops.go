package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DeleteBatchWithClient deletes a batch's receipts, model outputs and scan
// runs, in that order.
func DeleteBatchWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, batchID string) error {
	for _, table := range []string{receiptsTable, modelOutputsTable, scanRunsTable} {
		if err := deleteByBatch(ctx, client, ds, table, batchID); err != nil {
			return fmt.Errorf("DeleteBatch: deleting %s: %w", table, err)
		}
	}
	return nil
}

func deleteByBatch(ctx context.Context, client *bigquery.Client, ds Dataset, table, batchID string) error {
	q := client.Query(fmt.Sprintf(`
		DELETE FROM %s
		WHERE batch_id = @batch_id
	`, ds.table(table)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "batch_id", Value: batchID},
	}
	return runDML(ctx, q)
}
