package postgres

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type mockDB struct {
	ExecFunc  func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryFunc func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return m.ExecFunc(ctx, sql, args...)
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return m.QueryFunc(ctx, sql, args...)
}

// fakeRows serves fixed values through the pgx.Rows interface.
type fakeRows struct {
	data [][]any
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) { return r.data[r.pos-1], nil }

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i, v := range row {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

func TestPGLedger_RecordTipUpdate(t *testing.T) {
	var gotSQL string
	var gotArgs []any
	l := NewPGLedger(&mockDB{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL, gotArgs = sql, args
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	})

	err := l.RecordTipUpdate(context.Background(), &TipUpdate{
		BatchID: "b1", Position: 2, FileName: "a.jpg",
		OldTip: "$5.00", NewTip: "$6.00", OldTotal: "$45.00", NewTotal: "$46.00", IsCorrect: true,
	})
	if err != nil {
		t.Fatalf("RecordTipUpdate: %v", err)
	}
	if !strings.Contains(gotSQL, "INSERT INTO tip_updates") {
		t.Errorf("unexpected SQL: %s", gotSQL)
	}
	if len(gotArgs) != 10 || gotArgs[0] != "b1" || gotArgs[1] != 2 || gotArgs[5] != "$6.00" || gotArgs[8] != true {
		t.Errorf("unexpected args: %v", gotArgs)
	}
}

func TestPGLedger_ExecError(t *testing.T) {
	l := NewPGLedger(&mockDB{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("connection reset")
		},
	})
	if err := l.RecordTipUpdate(context.Background(), &TipUpdate{}); err == nil {
		t.Error("expected error from RecordTipUpdate")
	}
	if err := l.SetApproval(context.Background(), &Approval{}); err == nil {
		t.Error("expected error from SetApproval")
	}
}

func TestPGLedger_SetApproval(t *testing.T) {
	var gotSQL string
	l := NewPGLedger(&mockDB{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	})
	if err := l.SetApproval(context.Background(), &Approval{BatchID: "b", Position: 0, Status: "approved"}); err != nil {
		t.Fatalf("SetApproval: %v", err)
	}
	if !strings.Contains(gotSQL, "ON CONFLICT (batch_id, position)") {
		t.Errorf("expected upsert, got: %s", gotSQL)
	}
}

func TestPGLedger_ListTipUpdates(t *testing.T) {
	now := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	var gotBatch any
	l := NewPGLedger(&mockDB{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			gotBatch = args[0]
			return &fakeRows{data: [][]any{
				{int64(1), "b1", 0, "", "a.jpg", "$1.00", "$2.00", "$11.00", "$12.00", true, "", now},
				{int64(2), "b1", 1, "r2", "b.jpg", "$0.00", "$3.00", "$20.00", "$23.00", false, "sam", now},
			}}, nil
		},
	})

	updates, err := l.ListTipUpdates(context.Background(), "b1")
	if err != nil {
		t.Fatalf("ListTipUpdates: %v", err)
	}
	if gotBatch != "b1" {
		t.Errorf("batch arg = %v", gotBatch)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	if updates[1].ReceiptID != "r2" || updates[1].UpdatedBy != "sam" || updates[1].NewTotal != "$23.00" {
		t.Errorf("unexpected update: %+v", updates[1])
	}
}

func TestPGLedger_ListApprovals(t *testing.T) {
	now := time.Now()
	l := NewPGLedger(&mockDB{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return &fakeRows{data: [][]any{
				{"b1", 3, "", "rejected", "lee", now},
			}}, nil
		},
	})

	approvals, err := l.ListApprovals(context.Background(), "b1")
	if err != nil {
		t.Fatalf("ListApprovals: %v", err)
	}
	if len(approvals) != 1 || approvals[0].Position != 3 || approvals[0].Status != "rejected" {
		t.Errorf("unexpected approvals: %+v", approvals)
	}
}
