package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	bq "github.com/dvloznov/tipenter/internal/bigquery"
)

// InsertModelOutputWithClient inserts a single ModelOutputRow. Uses DML
// INSERT so the row is immediately visible to DELETE.
func InsertModelOutputWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *bq.ModelOutputRow) error {
	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s (
			output_id, scan_run_id, batch_id,
			source, model_name, raw_output, created_ts
		)
		VALUES (
			@output_id, @scan_run_id, @batch_id,
			@source, @model_name, @raw_output, @created_ts
		)
	`, ds.table(modelOutputsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "output_id", Value: row.OutputID},
		{Name: "scan_run_id", Value: row.ScanRunID},
		{Name: "batch_id", Value: row.BatchID},
		{Name: "source", Value: row.Source},
		{Name: "model_name", Value: row.ModelName},
		{Name: "raw_output", Value: row.RawOutput},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertModelOutput: %w", err)
	}
	return nil
}
