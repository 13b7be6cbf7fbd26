package bigquery

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/tipenter/internal/money"
	"github.com/dvloznov/tipenter/internal/receipt"
)

// BatchQuerier reads the persisted receipts of a batch.
type BatchQuerier interface {
	QueryReceiptsByBatch(ctx context.Context, batchID string) ([]*ReceiptRow, error)
}

// ReadThroughStore serves batches from memory and loads batches it has not
// seen, such as those scanned by a separate worker, from BigQuery.
type ReadThroughStore struct {
	*receipt.MemoryStore
	repo     BatchQuerier
	verifier money.Verifier
}

var _ receipt.Store = (*ReadThroughStore)(nil)

// NewReadThroughStore wraps mem with repo as the fallback source. Loaded
// records are re-verified with verifier.
func NewReadThroughStore(mem *receipt.MemoryStore, repo BatchQuerier, verifier money.Verifier) *ReadThroughStore {
	return &ReadThroughStore{MemoryStore: mem, repo: repo, verifier: verifier}
}

func (s *ReadThroughStore) Batch(ctx context.Context, batchID string) ([]*receipt.Record, error) {
	if err := s.load(ctx, batchID); err != nil {
		return nil, err
	}
	return s.MemoryStore.Batch(ctx, batchID)
}

func (s *ReadThroughStore) Record(ctx context.Context, batchID string, index int) (*receipt.Record, error) {
	if err := s.load(ctx, batchID); err != nil {
		return nil, err
	}
	return s.MemoryStore.Record(ctx, batchID, index)
}

func (s *ReadThroughStore) UpdateRecord(ctx context.Context, batchID string, index int, r *receipt.Record) error {
	if err := s.load(ctx, batchID); err != nil {
		return err
	}
	return s.MemoryStore.UpdateRecord(ctx, batchID, index, r)
}

func (s *ReadThroughStore) ModifyRecord(ctx context.Context, batchID string, index int, fn func(*receipt.Record) error) (*receipt.Record, error) {
	if err := s.load(ctx, batchID); err != nil {
		return nil, err
	}
	return s.MemoryStore.ModifyRecord(ctx, batchID, index, fn)
}

// load copies batchID from BigQuery into memory unless it is already there.
func (s *ReadThroughStore) load(ctx context.Context, batchID string) error {
	_, err := s.MemoryStore.Batch(ctx, batchID)
	if err == nil || !errors.Is(err, receipt.ErrBatchNotFound) {
		return err
	}

	rows, err := s.repo.QueryReceiptsByBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("loading batch %s: %w", batchID, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("batch %s: %w", batchID, receipt.ErrBatchNotFound)
	}

	// Records are indexed by their scan position. Images that failed were
	// never persisted and leave a placeholder so later indices still match.
	size := 0
	for _, row := range rows {
		if row.Position < 0 {
			return fmt.Errorf("batch %s: negative position %d", batchID, row.Position)
		}
		size = max(size, int(row.Position)+1)
	}
	records := make([]*receipt.Record, size)
	for _, row := range rows {
		if records[row.Position] != nil {
			return fmt.Errorf("batch %s: duplicate position %d", batchID, row.Position)
		}
		rec := RecordFromReceiptRow(row)
		rec.VerifyWith(s.verifier)
		records[row.Position] = rec
	}
	for i, rec := range records {
		if rec == nil {
			records[i] = &receipt.Record{Tip: receipt.DefaultTip, Error: ErrNotPersisted.Error()}
		}
	}
	return s.MemoryStore.PutBatch(ctx, batchID, records)
}

// ErrNotPersisted marks a batch position with no stored receipt.
var ErrNotPersisted = errors.New("receipt was not persisted")
