package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TipUpdate is one manual tip correction.
type TipUpdate struct {
	ID        int64     `json:"id"`
	BatchID   string    `json:"batch_id"`
	Position  int       `json:"position"`
	ReceiptID string    `json:"receipt_id,omitempty"`
	FileName  string    `json:"file_name"`
	OldTip    string    `json:"old_tip"`
	NewTip    string    `json:"new_tip"`
	OldTotal  string    `json:"old_total"`
	NewTotal  string    `json:"new_total"`
	IsCorrect bool      `json:"is_correct"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Approval is the review decision for one receipt of a batch.
type Approval struct {
	BatchID    string    `json:"batch_id"`
	Position   int       `json:"position"`
	ReceiptID  string    `json:"receipt_id,omitempty"`
	Status     string    `json:"status"`
	ApprovedBy string    `json:"approved_by,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Ledger records tip corrections and approvals.
type Ledger interface {
	RecordTipUpdate(ctx context.Context, u *TipUpdate) error
	ListTipUpdates(ctx context.Context, batchID string) ([]*TipUpdate, error)
	SetApproval(ctx context.Context, a *Approval) error
	ListApprovals(ctx context.Context, batchID string) ([]*Approval, error)
}

// PGLedger is the Postgres Ledger.
type PGLedger struct {
	db DB
}

var _ Ledger = (*PGLedger)(nil)

// NewPGLedger wraps db, usually a *pgxpool.Pool.
func NewPGLedger(db DB) *PGLedger {
	return &PGLedger{db: db}
}

func (l *PGLedger) RecordTipUpdate(ctx context.Context, u *TipUpdate) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO tip_updates
		    (batch_id, position, receipt_id, file_name, old_tip, new_tip, old_total, new_total, is_correct, updated_by, created_at)
		VALUES
		    ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NOW())
	`,
		u.BatchID,
		u.Position,
		u.ReceiptID,
		u.FileName,
		u.OldTip,
		u.NewTip,
		u.OldTotal,
		u.NewTotal,
		u.IsCorrect,
		u.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("RecordTipUpdate: insert: %w", err)
	}
	return nil
}

func (l *PGLedger) ListTipUpdates(ctx context.Context, batchID string) ([]*TipUpdate, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, batch_id, position, COALESCE(receipt_id, ''), file_name,
		       old_tip, new_tip, old_total, new_total, is_correct,
		       COALESCE(updated_by, ''), created_at
		FROM tip_updates
		WHERE batch_id = $1
		ORDER BY created_at, id
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("ListTipUpdates: query: %w", err)
	}

	updates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*TipUpdate, error) {
		var u TipUpdate
		err := row.Scan(&u.ID, &u.BatchID, &u.Position, &u.ReceiptID, &u.FileName,
			&u.OldTip, &u.NewTip, &u.OldTotal, &u.NewTotal, &u.IsCorrect,
			&u.UpdatedBy, &u.CreatedAt)
		return &u, err
	})
	if err != nil {
		return nil, fmt.Errorf("ListTipUpdates: scan: %w", err)
	}
	return updates, nil
}

// SetApproval inserts or replaces the approval for (batch, position).
func (l *PGLedger) SetApproval(ctx context.Context, a *Approval) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO receipt_approvals (batch_id, position, receipt_id, status, approved_by, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), NOW())
		ON CONFLICT (batch_id, position) DO UPDATE
		SET receipt_id = EXCLUDED.receipt_id,
		    status = EXCLUDED.status,
		    approved_by = EXCLUDED.approved_by,
		    updated_at = EXCLUDED.updated_at
	`, a.BatchID, a.Position, a.ReceiptID, a.Status, a.ApprovedBy)
	if err != nil {
		return fmt.Errorf("SetApproval: upsert: %w", err)
	}
	return nil
}

func (l *PGLedger) ListApprovals(ctx context.Context, batchID string) ([]*Approval, error) {
	rows, err := l.db.Query(ctx, `
		SELECT batch_id, position, COALESCE(receipt_id, ''), status, COALESCE(approved_by, ''), updated_at
		FROM receipt_approvals
		WHERE batch_id = $1
		ORDER BY position
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("ListApprovals: query: %w", err)
	}

	approvals, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Approval, error) {
		var a Approval
		err := row.Scan(&a.BatchID, &a.Position, &a.ReceiptID, &a.Status, &a.ApprovedBy, &a.UpdatedAt)
		return &a, err
	})
	if err != nil {
		return nil, fmt.Errorf("ListApprovals: scan: %w", err)
	}
	return approvals, nil
}
