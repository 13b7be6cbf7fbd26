package notionsync

import (
	"context"
	"time"

	"github.com/jomei/notionapi"

	bq "github.com/dvloznov/tipenter/internal/bigquery"
)

// NotionService is the part of the Notion API the sync uses.
type NotionService interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	ArchivePage(ctx context.Context, pageID string) error
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// ReceiptSource supplies persisted receipts. The BigQuery repository
// satisfies it.
type ReceiptSource interface {
	QueryReceiptsByDateRange(ctx context.Context, start, end time.Time) ([]*bq.ReceiptRow, error)
}
