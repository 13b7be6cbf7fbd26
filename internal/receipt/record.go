// Package receipt holds the scanned receipt record and the operations the
// review screens run over a batch of them: formatting, verification, tip
// adjustment, sorting, filtering and export.
package receipt

import (
	"github.com/dvloznov/tipenter/internal/money"
)

// DefaultTip is used when a receipt has no tip line.
const DefaultTip = "$0.00"

// Approval states for reviewed receipts.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Record is one scanned receipt's extracted fields.
type Record struct {
	FileName     string  `json:"file_name"`
	Date         string  `json:"date,omitempty"`
	Time         string  `json:"time,omitempty"`
	CustomerName string  `json:"customer_name,omitempty"`
	CheckNumber  string  `json:"check_number,omitempty"`
	Amount       string  `json:"amount,omitempty"`
	Tip          string  `json:"tip,omitempty"`
	Total        string  `json:"total,omitempty"`
	Signed       bool    `json:"signed"`
	Confidence   float64 `json:"confidence"`

	ReceiptID      string `json:"receipt_id,omitempty"`
	ApprovalStatus string `json:"approval_status,omitempty"`
	ApprovedBy     string `json:"approved_by,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`

	Simulated    bool                `json:"simulated,omitempty"`
	Verification *money.Verification `json:"verification,omitempty"`

	// Error is set when the image could not be processed at all.
	Error string `json:"error,omitempty"`
}

// FormatMonetaryValues normalises amount, tip and total to "$NN.NN" and fills
// a missing tip with $0.00. Values that do not parse are left as they are,
// which keeps the operation idempotent.
func FormatMonetaryValues(r *Record) {
	if r.Tip == "" {
		r.Tip = DefaultTip
	}
	r.Amount = money.Format(r.Amount)
	r.Tip = money.Format(r.Tip)
	r.Total = money.Format(r.Total)
}

// Verify checks amount + tip against total with the default verifier and
// stores the result on the record.
func (r *Record) Verify() money.Verification {
	return r.VerifyWith(money.NewVerifier())
}

// VerifyWith is Verify with a caller-supplied verifier.
func (r *Record) VerifyWith(v money.Verifier) money.Verification {
	tip := r.Tip
	if tip == "" {
		tip = DefaultTip
	}
	res := v.Verify(r.Amount, tip, r.Total)
	r.Verification = &res
	return res
}

// AdjustTip replaces the tip, recomputes total = amount + tip and re-verifies.
// When the amount does not parse the total is left alone and the record is
// flagged by the verification instead.
func (r *Record) AdjustTip(tip string, v money.Verifier) money.Verification {
	r.Tip = tip
	if r.Tip == "" {
		r.Tip = DefaultTip
	}
	total := money.ParseAmount(r.Amount).Add(money.ParseAmount(r.Tip))
	if total.IsValid() {
		r.Total = money.FormatAmount(total)
	}
	FormatMonetaryValues(r)
	return r.VerifyWith(v)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.Verification != nil {
		v := *r.Verification
		c.Verification = &v
	}
	return &c
}
