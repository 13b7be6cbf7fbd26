// Package notionsync mirrors persisted receipts into a Notion database so
// managers can review and approve tips there.
package notionsync

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/tipenter/internal/logger"
)

// BatchSize is the number of receipts logged as one progress step.
const BatchSize = 100

// SyncResult counts what a sync did (or would do, in dry-run mode).
type SyncResult struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// SyncReceipts mirrors the receipts scanned between start and end into the
// Notion database. Pages are matched on the Receipt ID title: existing pages
// are updated, missing ones created. Pages inside the window whose receipt
// no longer exists, and pages without a Receipt ID, are archived; pages
// outside the window are left alone. Individual page failures are logged and
// counted, not returned.
func SyncReceipts(ctx context.Context, source ReceiptSource, notionClient NotionService, notionDBID string, start, end time.Time, dryRun bool) (*SyncResult, error) {
	log := logger.FromContext(ctx)

	log.Info().
		Time("start_date", start).
		Time("end_date", end).
		Bool("dry_run", dryRun).
		Msg("Starting receipt sync to Notion")

	receipts, err := source.QueryReceiptsByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	log.Info().Int("receipt_count", len(receipts)).Msg("Retrieved receipts from BigQuery")

	valid := make(map[string]bool, len(receipts))
	for _, r := range receipts {
		valid[r.ReceiptID] = true
	}

	pages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("failed to query Notion pages: %w", err)
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	result := &SyncResult{}
	existing := make(map[string]string)

	for _, page := range pages {
		receiptID := extractReceiptID(page)
		pageID := string(page.ID)

		if receiptID != "" && valid[receiptID] {
			existing[receiptID] = pageID
			continue
		}
		if receiptID != "" && !scannedWithin(page, start, end) {
			continue
		}

		if dryRun {
			log.Info().Str("receipt_id", receiptID).Str("page_id", pageID).Msg("[DRY RUN] Would archive stale Notion page")
			result.Archived++
			continue
		}
		if err := notionClient.ArchivePage(ctx, pageID); err != nil {
			log.Warn().Err(err).Str("receipt_id", receiptID).Str("page_id", pageID).Msg("Failed to archive stale Notion page")
			result.Failed++
			continue
		}
		result.Archived++
	}

	for i, row := range receipts {
		if i > 0 && i%BatchSize == 0 {
			log.Info().Int("done", i).Int("total", len(receipts)).Msg("Sync progress")
		}

		pageID, ok := existing[row.ReceiptID]

		if dryRun {
			if ok {
				log.Info().Str("receipt_id", row.ReceiptID).Str("page_id", pageID).Msg("[DRY RUN] Would update Notion page")
				result.Updated++
			} else {
				log.Info().Str("receipt_id", row.ReceiptID).Msg("[DRY RUN] Would create Notion page")
				result.Created++
			}
			continue
		}

		props := ReceiptToNotionProperties(row)
		if ok {
			if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("receipt_id", row.ReceiptID).Str("page_id", pageID).Msg("Failed to update Notion page")
				result.Failed++
				continue
			}
			result.Updated++
			continue
		}

		page, err := notionClient.CreatePage(ctx, notionDBID, props)
		if err != nil {
			log.Warn().Err(err).Str("receipt_id", row.ReceiptID).Msg("Failed to create Notion page")
			result.Failed++
			continue
		}
		log.Debug().Str("receipt_id", row.ReceiptID).Str("page_id", string(page.ID)).Msg("Created Notion page")
		result.Created++
	}

	log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("archived", result.Archived).
		Int("failed", result.Failed).
		Int("total", len(receipts)).
		Msg("Receipt sync completed")

	return result, nil
}

// scannedWithin reports whether the page's Scanned At date lies in
// [start, end]. Pages without the date count as outside.
func scannedWithin(page notionapi.Page, start, end time.Time) bool {
	prop, ok := page.Properties[PropScannedAt]
	if !ok {
		return false
	}
	date, ok := prop.(*notionapi.DateProperty)
	if !ok || date.Date == nil || date.Date.Start == nil {
		return false
	}
	t := time.Time(*date.Date.Start)
	return !t.Before(start) && !t.After(end)
}

// queryAllNotionPages follows the query cursor until every page is read.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
