package receipt

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/dvloznov/tipenter/internal/money"
	"github.com/xuri/excelize/v2"
)

func names(records []*Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.FileName
	}
	return out
}

func TestFormatMonetaryValues(t *testing.T) {
	r := &Record{Amount: "10", Tip: "", Total: "12.5"}
	FormatMonetaryValues(r)

	if r.Amount != "$10.00" || r.Tip != "$0.00" || r.Total != "$12.50" {
		t.Fatalf("unexpected formatting: %+v", r)
	}

	before := *r
	FormatMonetaryValues(r)
	if r.Amount != before.Amount || r.Tip != before.Tip || r.Total != before.Total {
		t.Errorf("FormatMonetaryValues not idempotent: %+v then %+v", before, *r)
	}
}

func TestFormatMonetaryValues_LeavesUnparseable(t *testing.T) {
	r := &Record{Amount: "n/a", Tip: "$1", Total: "?"}
	FormatMonetaryValues(r)
	if r.Amount != "n/a" || r.Total != "?" {
		t.Errorf("expected unparseable values untouched, got %+v", r)
	}
	if r.Tip != "$1.00" {
		t.Errorf("Tip = %q, want $1.00", r.Tip)
	}
}

func TestRecord_Verify(t *testing.T) {
	r := &Record{Amount: "$10.00", Tip: "$2.00", Total: "$12.00"}
	res := r.Verify()
	if !res.IsCorrect {
		t.Fatalf("expected correct verification, got %+v", res)
	}
	if r.Verification == nil || !r.Verification.IsCorrect {
		t.Error("expected verification stored on record")
	}

	r = &Record{Amount: "$10.00", Total: "$10.00"}
	if res := r.Verify(); !res.IsCorrect {
		t.Errorf("expected missing tip to count as $0.00, got %+v", res)
	}
}

func TestRecord_AdjustTip(t *testing.T) {
	r := &Record{Amount: "$40.00", Tip: "$6.00", Total: "$47.00"}
	if res := r.Verify(); res.IsCorrect {
		t.Fatalf("expected initial mismatch, got %+v", res)
	}

	res := r.AdjustTip("7", money.NewVerifier())
	if r.Tip != "$7.00" || r.Total != "$47.00" {
		t.Errorf("after AdjustTip: tip=%q total=%q", r.Tip, r.Total)
	}
	if !res.IsCorrect {
		t.Errorf("expected correct after adjust, got %+v", res)
	}
}

func TestRecord_AdjustTip_BadAmount(t *testing.T) {
	r := &Record{Amount: "illegible", Tip: "$1.00", Total: "$9.00"}
	res := r.AdjustTip("$2.00", money.NewVerifier())
	if r.Total != "$9.00" {
		t.Errorf("Total changed to %q, want untouched", r.Total)
	}
	if res.IsCorrect {
		t.Error("expected verification to flag unparseable amount")
	}
}

func TestRecord_Clone(t *testing.T) {
	r := &Record{FileName: "a.jpg"}
	r.Verify()
	c := r.Clone()
	c.Verification.IsCorrect = !r.Verification.IsCorrect
	c.FileName = "b.jpg"
	if r.FileName != "a.jpg" || r.Verification.IsCorrect == c.Verification.IsCorrect {
		t.Error("Clone shares state with original")
	}
}

func TestSort(t *testing.T) {
	records := []*Record{
		{FileName: "a", Total: "$10.00", Time: "10:00", CustomerName: "bob"},
		{FileName: "b", Total: "$9.00", Time: "09:05", CustomerName: "Alice"},
		{FileName: "c", Total: "n/a", Time: "", CustomerName: ""},
		{FileName: "d", Total: "$100.00", Time: "1:15 PM", CustomerName: "carol"},
	}

	tests := []struct {
		field string
		order Order
		want  []string
	}{
		{FieldTotal, Ascending, []string{"b", "a", "d", "c"}},
		{FieldTotal, Descending, []string{"d", "a", "b", "c"}},
		{FieldTime, Ascending, []string{"b", "a", "d", "c"}},
		{FieldCustomerName, Ascending, []string{"b", "a", "d", "c"}},
		{FieldFileName, Descending, []string{"d", "c", "b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.field+"_"+string(tt.order), func(t *testing.T) {
			rs := make([]*Record, len(records))
			copy(rs, records)
			if err := Sort(rs, tt.field, tt.order); err != nil {
				t.Fatalf("Sort: %v", err)
			}
			got := names(rs)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSort_UnknownField(t *testing.T) {
	if err := Sort(nil, "colour", Ascending); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestSort_Stable(t *testing.T) {
	rs := []*Record{
		{FileName: "1", Tip: "$2.00"},
		{FileName: "2", Tip: "$1.00"},
		{FileName: "3", Tip: "$2.00"},
		{FileName: "4", Tip: "$1.00"},
	}
	if err := Sort(rs, FieldTip, Ascending); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(names(rs), ","); got != "2,4,1,3" {
		t.Errorf("got %s, want 2,4,1,3", got)
	}
}

func TestScenario_SortAndDoubleCheck(t *testing.T) {
	rs := []*Record{
		{FileName: "big", Amount: "$50.00", Tip: "$5.00", Total: "$55.00"},
		{FileName: "small", Amount: "$10.00", Tip: "$2.00", Total: "$12.00"},
	}
	for _, r := range rs {
		r.Verify()
	}
	if err := Sort(rs, FieldTotal, Ascending); err != nil {
		t.Fatal(err)
	}
	if rs[0].FileName != "small" {
		t.Fatalf("expected $12.00 record first, got %s", rs[0].FileName)
	}
	big := rs[1].Verification
	if !big.DoubleChecked || !big.Verified {
		t.Errorf("expected $55.00 record double-checked and verified, got %+v", big)
	}
	if rs[0].Verification.DoubleChecked {
		t.Error("expected $12.00 record not double-checked")
	}
}

func TestMinutesSinceMidnight(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"09:05", 545, true},
		{"10:00", 600, true},
		{"23:59:30", 1439, true},
		{"12:00 AM", 0, true},
		{"12:30 PM", 750, true},
		{"1:15 pm", 795, true},
		{"25:00", 0, false},
		{"13:00 PM", 0, false},
		{"noon", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := MinutesSinceMidnight(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("MinutesSinceMidnight(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFilter(t *testing.T) {
	rs := []*Record{
		{FileName: "one.jpg", CustomerName: "Maria Lopez", CheckNumber: "1042"},
		{FileName: "two.jpg", CustomerName: "Tom", Total: "$55.00"},
		{FileName: "three.png", CustomerName: "MARIANNE"},
	}

	tests := []struct {
		q    string
		want string
	}{
		{"", "one.jpg,two.jpg,three.png"},
		{"maria", "one.jpg,three.png"},
		{"1042", "one.jpg"},
		{"55", "two.jpg"},
		{".PNG", "three.png"},
		{"zzz", ""},
	}
	for _, tt := range tests {
		if got := strings.Join(names(Filter(rs, tt.q)), ","); got != tt.want {
			t.Errorf("Filter(%q) = %q, want %q", tt.q, got, tt.want)
		}
	}
}

func TestUnverified(t *testing.T) {
	ok := &Record{FileName: "ok", Amount: "$1.00", Tip: "$1.00", Total: "$2.00"}
	bad := &Record{FileName: "bad", Amount: "$1.00", Tip: "$1.00", Total: "$3.00"}
	never := &Record{FileName: "never"}
	ok.Verify()
	bad.Verify()

	if got := strings.Join(names(Unverified([]*Record{ok, bad, never})), ","); got != "bad,never" {
		t.Errorf("Unverified = %q, want bad,never", got)
	}
}

func TestWriteCSV(t *testing.T) {
	rs := []*Record{
		{CustomerName: `Smith, John`, Time: "21:30", Total: "$12.00", Tip: "$2.00"},
		{CustomerName: `The "Boss"`, Time: "22:00", Total: "$5.00", Tip: "$0.00"},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rs, false); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	want := "Customer Name,Closing Time,Check Total,Tip\n" +
		`"Smith, John",21:30,$12.00,$2.00` + "\n" +
		`"The ""Boss""",22:00,$5.00,$0.00` + "\n"
	if buf.String() != want {
		t.Errorf("WriteCSV output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriteCSV_Actions(t *testing.T) {
	r := &Record{CustomerName: "A", Amount: "$1.00", Tip: "$1.00", Total: "$3.00"}
	r.Verify()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, []*Record{r, {CustomerName: "B"}}, true); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "Customer Name,Closing Time,Check Total,Tip,Actions" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], ",adjust") || !strings.HasSuffix(lines[2], ",verify") {
		t.Errorf("unexpected action columns: %v", lines[1:])
	}
}

func TestWriteXLSX(t *testing.T) {
	rs := []*Record{{CustomerName: "Ann", Time: "20:00", Total: "$10.00", Tip: "$1.00"}}

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, rs, false); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Receipts")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0][0] != "Customer Name" || rows[1][0] != "Ann" || rows[1][2] != "$10.00" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.CreateBatch(ctx, []*Record{{FileName: "a"}, {FileName: "b"}})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	r, err := s.Record(ctx, id, 1)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	r.Tip = "$3.00"

	// mutation of a returned copy is not visible until UpdateRecord
	again, _ := s.Record(ctx, id, 1)
	if again.Tip != "" {
		t.Error("store returned shared record")
	}

	if err := s.UpdateRecord(ctx, id, 1, r); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	batch, err := s.Batch(ctx, id)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if batch[1].Tip != "$3.00" {
		t.Errorf("Tip = %q after update", batch[1].Tip)
	}

	if _, err := s.Batch(ctx, "missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("expected ErrBatchNotFound, got %v", err)
	}
	if _, err := s.Record(ctx, id, 5); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
	if err := s.UpdateRecord(ctx, id, -1, r); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestMemoryStore_ModifyRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, _ := s.CreateBatch(ctx, []*Record{{FileName: "a", CheckNumber: "0"}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ModifyRecord(ctx, id, 0, func(r *Record) error {
				n, _ := strconv.Atoi(r.CheckNumber)
				r.CheckNumber = strconv.Itoa(n + 1)
				return nil
			})
			if err != nil {
				t.Errorf("ModifyRecord: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.Record(ctx, id, 0)
	if got.CheckNumber != "50" {
		t.Errorf("CheckNumber = %s, want 50 (lost updates)", got.CheckNumber)
	}

	boom := errors.New("boom")
	if _, err := s.ModifyRecord(ctx, id, 0, func(r *Record) error {
		r.CheckNumber = "x"
		return boom
	}); !errors.Is(err, boom) {
		t.Errorf("expected fn error, got %v", err)
	}
	if got, _ := s.Record(ctx, id, 0); got.CheckNumber != "50" {
		t.Errorf("failed modify changed the record: %s", got.CheckNumber)
	}

	if _, err := s.ModifyRecord(ctx, "missing", 0, func(*Record) error { return nil }); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("expected ErrBatchNotFound, got %v", err)
	}
}
