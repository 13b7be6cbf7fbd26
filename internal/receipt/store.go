package receipt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrBatchNotFound  = errors.New("batch not found")
	ErrRecordNotFound = errors.New("record not found")
)

// Store keeps processed batches for the review screens.
type Store interface {
	CreateBatch(ctx context.Context, records []*Record) (string, error)
	PutBatch(ctx context.Context, batchID string, records []*Record) error
	Batch(ctx context.Context, batchID string) ([]*Record, error)
	Record(ctx context.Context, batchID string, index int) (*Record, error)
	UpdateRecord(ctx context.Context, batchID string, index int, r *Record) error
	// ModifyRecord applies fn to a copy of the record at index and stores the
	// result when fn returns nil. Calls for the same batch are serialized, so
	// fn sees the latest value and may do I/O (a ledger write) before commit.
	ModifyRecord(ctx context.Context, batchID string, index int, fn func(*Record) error) (*Record, error)
}

// MemoryStore is an in-memory Store. Records are copied in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[string][]*Record
	// edit serializes ModifyRecord per batch.
	edit map[string]*sync.Mutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches: make(map[string][]*Record),
		edit:    make(map[string]*sync.Mutex),
	}
}

// CreateBatch stores records under a new batch ID.
func (s *MemoryStore) CreateBatch(ctx context.Context, records []*Record) (string, error) {
	id := uuid.New().String()
	if err := s.PutBatch(ctx, id, records); err != nil {
		return "", err
	}
	return id, nil
}

// PutBatch stores records under a caller-chosen batch ID, replacing any
// existing batch with that ID.
func (s *MemoryStore) PutBatch(ctx context.Context, batchID string, records []*Record) error {
	cp := make([]*Record, len(records))
	for i, r := range records {
		cp[i] = r.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batchID] = cp
	return nil
}

func (s *MemoryStore) Batch(ctx context.Context, batchID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrBatchNotFound)
	}
	out := make([]*Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out, nil
}

func (s *MemoryStore) Record(ctx context.Context, batchID string, index int) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrBatchNotFound)
	}
	if index < 0 || index >= len(records) {
		return nil, fmt.Errorf("batch %s index %d: %w", batchID, index, ErrRecordNotFound)
	}
	return records[index].Clone(), nil
}

func (s *MemoryStore) UpdateRecord(ctx context.Context, batchID string, index int, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.batches[batchID]
	if !ok {
		return fmt.Errorf("batch %s: %w", batchID, ErrBatchNotFound)
	}
	if index < 0 || index >= len(records) {
		return fmt.Errorf("batch %s index %d: %w", batchID, index, ErrRecordNotFound)
	}
	records[index] = r.Clone()
	return nil
}

func (s *MemoryStore) ModifyRecord(ctx context.Context, batchID string, index int, fn func(*Record) error) (*Record, error) {
	l := s.editLock(batchID)
	l.Lock()
	defer l.Unlock()

	rec, err := s.Record(ctx, batchID, index)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := s.UpdateRecord(ctx, batchID, index, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *MemoryStore) editLock(batchID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.edit[batchID]
	if !ok {
		l = &sync.Mutex{}
		s.edit[batchID] = l
	}
	return l
}
