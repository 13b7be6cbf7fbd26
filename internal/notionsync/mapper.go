package notionsync

import (
	"math/big"

	"github.com/jomei/notionapi"

	bq "github.com/dvloznov/tipenter/internal/bigquery"
)

// Property names of the Notion receipts database.
const (
	PropReceiptID   = "Receipt ID"
	PropCustomer    = "Customer"
	PropCheckNumber = "Check Number"
	PropReceiptDate = "Receipt Date"
	PropClosingTime = "Closing Time"
	PropAmount      = "Amount"
	PropTip         = "Tip"
	PropTotal       = "Total"
	PropSigned      = "Signed"
	PropConfidence  = "Confidence"
	PropSimulated   = "Simulated"
	PropVerified    = "Verified"
	PropApproval    = "Approval"
	PropApprovedBy  = "Approved By"
	PropBatchID     = "Batch ID"
	PropImage       = "Image"
	PropScannedAt   = "Scanned At"
)

func richText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{
			{
				Type: notionapi.ObjectTypeText,
				Text: &notionapi.Text{Content: s},
			},
		},
	}
}

func ratNumber(r *big.Rat) (notionapi.NumberProperty, bool) {
	if r == nil {
		return notionapi.NumberProperty{}, false
	}
	f, _ := r.Float64()
	return notionapi.NumberProperty{Number: f}, true
}

// ReceiptToNotionProperties converts a persisted receipt to page properties.
// Empty text fields and unread amounts are left out so that an update does
// not clear values edited in Notion.
func ReceiptToNotionProperties(row *bq.ReceiptRow) notionapi.Properties {
	props := notionapi.Properties{
		PropReceiptID: notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{Content: row.ReceiptID},
				},
			},
		},
		PropSigned:     notionapi.CheckboxProperty{Checkbox: row.Signed},
		PropSimulated:  notionapi.CheckboxProperty{Checkbox: row.Simulated},
		PropConfidence: notionapi.NumberProperty{Number: row.Confidence},
		PropVerified:   notionapi.CheckboxProperty{Checkbox: row.IsCorrect.Valid && row.IsCorrect.Bool},
		PropBatchID:    richText(row.BatchID),
	}

	for name, value := range map[string]string{
		PropCustomer:    row.CustomerName,
		PropCheckNumber: row.CheckNumber,
		PropReceiptDate: row.ReceiptDate,
		PropClosingTime: row.ClosingTime,
	} {
		if value != "" {
			props[name] = richText(value)
		}
	}

	for name, value := range map[string]*big.Rat{
		PropAmount: row.Amount,
		PropTip:    row.Tip,
		PropTotal:  row.Total,
	} {
		if n, ok := ratNumber(value); ok {
			props[name] = n
		}
	}

	if row.ApprovalStatus != "" {
		props[PropApproval] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: row.ApprovalStatus},
		}
	}
	if row.ApprovedBy.Valid && row.ApprovedBy.StringVal != "" {
		props[PropApprovedBy] = richText(row.ApprovedBy.StringVal)
	}
	if row.ImageURI.Valid && row.ImageURI.StringVal != "" {
		props[PropImage] = notionapi.URLProperty{URL: row.ImageURI.StringVal}
	}
	if !row.CreatedTS.IsZero() {
		start := notionapi.Date(row.CreatedTS)
		props[PropScannedAt] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &start},
		}
	}

	return props
}

// extractReceiptID reads the title property of a receipt page.
func extractReceiptID(page notionapi.Page) string {
	if prop, ok := page.Properties[PropReceiptID]; ok {
		if title, ok := prop.(*notionapi.TitleProperty); ok && len(title.Title) > 0 {
			return title.Title[0].PlainText
		}
	}
	return ""
}
