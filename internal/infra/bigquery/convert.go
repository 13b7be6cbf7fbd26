package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/tipenter/internal/money"
	"github.com/dvloznov/tipenter/internal/receipt"
)

// ReceiptRowFromRecord maps a record onto a warehouse row. Money values that
// do not parse are stored as NULL.
func ReceiptRowFromRecord(r *receipt.Record, batchID, scanRunID string, position int) *ReceiptRow {
	id := r.ReceiptID
	if id == "" {
		id = uuid.NewString()
	}
	status := r.ApprovalStatus
	if status == "" {
		status = receipt.ApprovalPending
	}

	row := &ReceiptRow{
		ReceiptID:      id,
		BatchID:        batchID,
		ScanRunID:      scanRunID,
		Position:       int64(position),
		FileName:       r.FileName,
		ReceiptDate:    r.Date,
		ClosingTime:    r.Time,
		CustomerName:   r.CustomerName,
		CheckNumber:    r.CheckNumber,
		Amount:         toRat(r.Amount),
		Tip:            toRat(r.Tip),
		Total:          toRat(r.Total),
		Signed:         r.Signed,
		Confidence:     r.Confidence,
		Simulated:      r.Simulated,
		ApprovalStatus: status,
		CreatedTS:      time.Now().UTC(),
	}
	if r.ImageURL != "" {
		row.ImageURI = bigquery.NullString{StringVal: r.ImageURL, Valid: true}
	}
	if r.ApprovedBy != "" {
		row.ApprovedBy = bigquery.NullString{StringVal: r.ApprovedBy, Valid: true}
	}
	if v := r.Verification; v != nil {
		row.IsCorrect = bigquery.NullBool{Bool: v.IsCorrect, Valid: true}
		row.DoubleChecked = bigquery.NullBool{Bool: v.DoubleChecked, Valid: true}
	}
	return row
}

// RecordFromReceiptRow is the inverse of ReceiptRowFromRecord. The
// verification is recomputed rather than read back.
func RecordFromReceiptRow(row *ReceiptRow) *receipt.Record {
	r := &receipt.Record{
		ReceiptID:      row.ReceiptID,
		FileName:       row.FileName,
		Date:           row.ReceiptDate,
		Time:           row.ClosingTime,
		CustomerName:   row.CustomerName,
		CheckNumber:    row.CheckNumber,
		Amount:         fromRat(row.Amount),
		Tip:            fromRat(row.Tip),
		Total:          fromRat(row.Total),
		Signed:         row.Signed,
		Confidence:     row.Confidence,
		Simulated:      row.Simulated,
		ApprovalStatus: row.ApprovalStatus,
	}
	if row.ImageURI.Valid {
		r.ImageURL = row.ImageURI.StringVal
	}
	if row.ApprovedBy.Valid {
		r.ApprovedBy = row.ApprovedBy.StringVal
	}
	return r
}

func toRat(s string) *big.Rat {
	a := money.ParseAmount(s)
	if !a.IsValid() {
		return nil
	}
	return a.Decimal().Round(2).Rat()
}

func fromRat(r *big.Rat) string {
	if r == nil {
		return ""
	}
	return money.FormatAmount(money.NewAmount(decimal.NewFromBigRat(r, 2)))
}
