package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/tipenter/internal/api/middleware"
	"github.com/dvloznov/tipenter/internal/infra/postgres"
	"github.com/dvloznov/tipenter/internal/money"
	"github.com/dvloznov/tipenter/internal/receipt"
)

// BatchesHandler serves the review screens over a stored batch.
type BatchesHandler struct {
	store    receipt.Store
	ledger   postgres.Ledger
	verifier money.Verifier
	log      zerolog.Logger
}

// NewBatchesHandler creates a batches handler. ledger may be nil, in which
// case tip updates and approvals are kept only on the stored records.
func NewBatchesHandler(store receipt.Store, ledger postgres.Ledger, verifier money.Verifier, log zerolog.Logger) *BatchesHandler {
	return &BatchesHandler{
		store:    store,
		ledger:   ledger,
		verifier: verifier,
		log:      log,
	}
}

func (h *BatchesHandler) writeStoreError(w http.ResponseWriter, err error, batchID string) {
	if errors.Is(err, receipt.ErrBatchNotFound) || errors.Is(err, receipt.ErrRecordNotFound) {
		middleware.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	h.log.Error().Err(err).Str("batch_id", batchID).Msg("Batch store failure")
	middleware.WriteError(w, http.StatusInternalServerError, "Failed to access batch")
}

// view loads a batch and applies the q, unverified, sort and order query
// parameters.
func (h *BatchesHandler) view(r *http.Request, batchID string) ([]*receipt.Record, error) {
	records, err := h.store.Batch(r.Context(), batchID)
	if err != nil {
		return nil, err
	}

	query := r.URL.Query()
	records = receipt.Filter(records, query.Get("q"))
	if v, _ := strconv.ParseBool(query.Get("unverified")); v {
		records = receipt.Unverified(records)
	}
	if field := query.Get("sort"); field != "" {
		if err := receipt.Sort(records, field, receipt.ParseOrder(query.Get("order"))); err != nil {
			return nil, errBadQuery{err}
		}
	}
	return records, nil
}

// ledgerError marks a failed ledger write inside ModifyRecord.
type ledgerError struct{ err error }

func (e ledgerError) Error() string { return e.err.Error() }
func (e ledgerError) Unwrap() error { return e.err }

type errBadQuery struct{ err error }

func (e errBadQuery) Error() string { return e.err.Error() }

func (h *BatchesHandler) writeViewError(w http.ResponseWriter, err error, batchID string) {
	var bad errBadQuery
	if errors.As(err, &bad) {
		middleware.WriteError(w, http.StatusBadRequest, bad.Error())
		return
	}
	h.writeStoreError(w, err, batchID)
}

// ListReceipts handles GET /api/batches/{id}/receipts
func (h *BatchesHandler) ListReceipts(w http.ResponseWriter, r *http.Request, batchID string) {
	records, err := h.view(r, batchID)
	if err != nil {
		h.writeViewError(w, err, batchID)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batch_id": batchID,
		"receipts": records,
		"count":    len(records),
	})
}

// ExportCSV handles GET /api/batches/{id}/export.csv
func (h *BatchesHandler) ExportCSV(w http.ResponseWriter, r *http.Request, batchID string) {
	h.export(w, r, batchID, "csv", "text/csv; charset=utf-8", receipt.WriteCSV)
}

// ExportXLSX handles GET /api/batches/{id}/export.xlsx
func (h *BatchesHandler) ExportXLSX(w http.ResponseWriter, r *http.Request, batchID string) {
	h.export(w, r, batchID, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", receipt.WriteXLSX)
}

type exportFunc func(w io.Writer, records []*receipt.Record, withActions bool) error

func (h *BatchesHandler) export(w http.ResponseWriter, r *http.Request, batchID, ext, contentType string, write exportFunc) {
	records, err := h.view(r, batchID)
	if err != nil {
		h.writeViewError(w, err, batchID)
		return
	}
	withActions, _ := strconv.ParseBool(r.URL.Query().Get("actions"))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="receipts-%s.%s"`, batchID, ext))
	if err := write(w, records, withActions); err != nil {
		h.log.Error().Err(err).Str("batch_id", batchID).Str("format", ext).Msg("Export failed")
	}
}

func parseIndex(w http.ResponseWriter, s string) (int, bool) {
	index, err := strconv.Atoi(s)
	if err != nil || index < 0 {
		middleware.WriteError(w, http.StatusBadRequest, "index must be a non-negative integer")
		return 0, false
	}
	return index, true
}

// VerifyReceipt handles POST /api/batches/{id}/receipts/{index}/verify
func (h *BatchesHandler) VerifyReceipt(w http.ResponseWriter, r *http.Request, batchID, indexStr string) {
	index, ok := parseIndex(w, indexStr)
	if !ok {
		return
	}
	ctx := r.Context()

	rec, err := h.store.Record(ctx, batchID, index)
	if err != nil {
		h.writeStoreError(w, err, batchID)
		return
	}

	verification := rec.VerifyWith(h.verifier)
	if err := h.store.UpdateRecord(ctx, batchID, index, rec); err != nil {
		h.writeStoreError(w, err, batchID)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"result":       rec,
		"verification": verification,
	})
}

type updateTipRequest struct {
	Tip       string `json:"tip"`
	UpdatedBy string `json:"updated_by"`
}

// UpdateTip handles PUT /api/batches/{id}/receipts/{index}/tip
func (h *BatchesHandler) UpdateTip(w http.ResponseWriter, r *http.Request, batchID, indexStr string) {
	index, ok := parseIndex(w, indexStr)
	if !ok {
		return
	}

	var req updateTipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Tip) != "" && !money.ParseAmount(req.Tip).IsValid() {
		middleware.WriteError(w, http.StatusBadRequest, "tip is not a monetary value")
		return
	}

	ctx := r.Context()
	var oldTip string
	var verification money.Verification
	// The ledger row is written under the batch edit lock, before the
	// record is committed, so its old values are never stale.
	rec, err := h.store.ModifyRecord(ctx, batchID, index, func(rec *receipt.Record) error {
		oldTip = rec.Tip
		oldTotal := rec.Total
		verification = rec.AdjustTip(req.Tip, h.verifier)
		if h.ledger == nil {
			return nil
		}
		update := &postgres.TipUpdate{
			BatchID:   batchID,
			Position:  index,
			ReceiptID: rec.ReceiptID,
			FileName:  rec.FileName,
			OldTip:    oldTip,
			NewTip:    rec.Tip,
			OldTotal:  oldTotal,
			NewTotal:  rec.Total,
			IsCorrect: verification.IsCorrect,
			UpdatedBy: req.UpdatedBy,
		}
		if err := h.ledger.RecordTipUpdate(ctx, update); err != nil {
			return ledgerError{err}
		}
		return nil
	})
	if err != nil {
		var le ledgerError
		if errors.As(err, &le) {
			h.log.Error().Err(le.err).Str("batch_id", batchID).Int("position", index).Msg("Failed to record tip update")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to record tip update")
			return
		}
		h.writeStoreError(w, err, batchID)
		return
	}

	h.log.Info().
		Str("batch_id", batchID).
		Int("position", index).
		Str("old_tip", oldTip).
		Str("new_tip", rec.Tip).
		Bool("is_correct", verification.IsCorrect).
		Msg("Tip updated")

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"result":       rec,
		"verification": verification,
	})
}

// ListTipUpdates handles GET /api/batches/{id}/tip-updates
func (h *BatchesHandler) ListTipUpdates(w http.ResponseWriter, r *http.Request, batchID string) {
	if h.ledger == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Tip ledger is not configured")
		return
	}
	updates, err := h.ledger.ListTipUpdates(r.Context(), batchID)
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to list tip updates")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list tip updates")
		return
	}
	if updates == nil {
		updates = []*postgres.TipUpdate{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"updates": updates,
		"count":   len(updates),
	})
}

type approvalRequest struct {
	Status     string `json:"status"`
	ApprovedBy string `json:"approved_by"`
}

// SetApproval handles PUT /api/batches/{id}/receipts/{index}/approval
func (h *BatchesHandler) SetApproval(w http.ResponseWriter, r *http.Request, batchID, indexStr string) {
	index, ok := parseIndex(w, indexStr)
	if !ok {
		return
	}

	var req approvalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch status {
	case receipt.ApprovalPending, receipt.ApprovalApproved, receipt.ApprovalRejected:
	default:
		middleware.WriteError(w, http.StatusBadRequest, "status must be pending, approved or rejected")
		return
	}

	ctx := r.Context()
	rec, err := h.store.ModifyRecord(ctx, batchID, index, func(rec *receipt.Record) error {
		rec.ApprovalStatus = status
		rec.ApprovedBy = req.ApprovedBy
		if h.ledger == nil {
			return nil
		}
		a := &postgres.Approval{
			BatchID:    batchID,
			Position:   index,
			ReceiptID:  rec.ReceiptID,
			Status:     status,
			ApprovedBy: req.ApprovedBy,
		}
		if err := h.ledger.SetApproval(ctx, a); err != nil {
			return ledgerError{err}
		}
		return nil
	})
	if err != nil {
		var le ledgerError
		if errors.As(err, &le) {
			h.log.Error().Err(le.err).Str("batch_id", batchID).Int("position", index).Msg("Failed to record approval")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to record approval")
			return
		}
		h.writeStoreError(w, err, batchID)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  rec,
	})
}
