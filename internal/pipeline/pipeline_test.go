package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bq "github.com/dvloznov/tipenter/internal/bigquery"
	"github.com/dvloznov/tipenter/internal/extraction"
	"github.com/dvloznov/tipenter/internal/pipeline"
	"github.com/dvloznov/tipenter/internal/receipt"
)

// MockScanRepository is a mock ScanRepository for testing.
type MockScanRepository struct {
	mu sync.Mutex

	StartScanRunFunc         func(ctx context.Context, batchID, fileName, extractor string) (string, error)
	MarkScanRunFailedFunc    func(ctx context.Context, scanRunID string, scanErr error)
	MarkScanRunSucceededFunc func(ctx context.Context, scanRunID string) error
	InsertModelOutputFunc    func(ctx context.Context, row *bq.ModelOutputRow) error
	InsertReceiptsFunc       func(ctx context.Context, rows []*bq.ReceiptRow) error

	Receipts  []*bq.ReceiptRow
	Outputs   []*bq.ModelOutputRow
	Failed    []string
	Succeeded []string
}

func (m *MockScanRepository) StartScanRun(ctx context.Context, batchID, fileName, extractor string) (string, error) {
	if m.StartScanRunFunc != nil {
		return m.StartScanRunFunc(ctx, batchID, fileName, extractor)
	}
	return "run-" + fileName, nil
}

func (m *MockScanRepository) MarkScanRunFailed(ctx context.Context, scanRunID string, scanErr error) {
	m.mu.Lock()
	m.Failed = append(m.Failed, scanRunID)
	m.mu.Unlock()
	if m.MarkScanRunFailedFunc != nil {
		m.MarkScanRunFailedFunc(ctx, scanRunID, scanErr)
	}
}

func (m *MockScanRepository) MarkScanRunSucceeded(ctx context.Context, scanRunID string) error {
	m.mu.Lock()
	m.Succeeded = append(m.Succeeded, scanRunID)
	m.mu.Unlock()
	if m.MarkScanRunSucceededFunc != nil {
		return m.MarkScanRunSucceededFunc(ctx, scanRunID)
	}
	return nil
}

func (m *MockScanRepository) InsertModelOutput(ctx context.Context, row *bq.ModelOutputRow) error {
	m.mu.Lock()
	m.Outputs = append(m.Outputs, row)
	m.mu.Unlock()
	if m.InsertModelOutputFunc != nil {
		return m.InsertModelOutputFunc(ctx, row)
	}
	return nil
}

func (m *MockScanRepository) InsertReceipts(ctx context.Context, rows []*bq.ReceiptRow) error {
	if m.InsertReceiptsFunc != nil {
		if err := m.InsertReceiptsFunc(ctx, rows); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Receipts = append(m.Receipts, rows...)
	m.mu.Unlock()
	return nil
}

// MockImageStore is a mock ImageStore for testing.
type MockImageStore struct {
	UploadImageFunc func(ctx context.Context, batchID, fileName, contentType string, data []byte) (string, error)
}

func (m *MockImageStore) UploadImage(ctx context.Context, batchID, fileName, contentType string, data []byte) (string, error) {
	if m.UploadImageFunc != nil {
		return m.UploadImageFunc(ctx, batchID, fileName, contentType, data)
	}
	return "gs://bucket/receipts/" + batchID + "/" + fileName, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func fixedExtractor(amount, tip, total string) extraction.Extractor {
	return extraction.ExtractorFunc(func(ctx context.Context, img extraction.Image) (*extraction.Result, error) {
		return &extraction.Result{
			Record: &receipt.Record{Amount: amount, Tip: tip, Total: total},
			Raw:    `{"amount":"` + amount + `"}`,
			Source: extraction.SourceGemini,
			Model:  "test-model",
		}, nil
	})
}

func TestPipeline_StopsAtFirstError(t *testing.T) {
	var ran []string
	step := func(name string, err error) pipeline.PipelineStep {
		return &funcStep{name: name, fn: func(ctx context.Context, s *pipeline.State) error {
			ran = append(ran, name)
			return err
		}}
	}

	p := pipeline.NewPipeline(step("a", nil), step("b", errors.New("nope")), step("c", nil))
	err := p.Execute(context.Background(), &pipeline.State{})
	if err == nil || !strings.Contains(err.Error(), "pipeline step 2 (b) failed") {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(ran, ",") != "a,b" {
		t.Errorf("ran %v, want a,b", ran)
	}
}

type funcStep struct {
	name string
	fn   func(ctx context.Context, s *pipeline.State) error
}

func (f *funcStep) Name() string { return f.name }

func (f *funcStep) Execute(ctx context.Context, s *pipeline.State) error { return f.fn(ctx, s) }

func TestNewProcessor_StepComposition(t *testing.T) {
	minimal := pipeline.NewProcessor(pipeline.Deps{}, pipeline.Options{})
	if got := strings.Join(minimal.Pipeline().Steps(), ","); got != "decode,compress,extract,normalize,verify" {
		t.Errorf("minimal steps = %s", got)
	}

	full := pipeline.NewProcessor(pipeline.Deps{Repo: &MockScanRepository{}, Images: &MockImageStore{}}, pipeline.Options{})
	want := "decode,compress,store_image,start_scan_run,extract,store_model_output,normalize,verify,persist,mark_success"
	if got := strings.Join(full.Pipeline().Steps(), ","); got != want {
		t.Errorf("full steps = %s, want %s", got, want)
	}
}

func TestProcessImage_FullPipeline(t *testing.T) {
	repo := &MockScanRepository{}
	p := pipeline.NewProcessor(pipeline.Deps{
		Extractor: fixedExtractor("50", "5", "55"),
		Repo:      repo,
		Images:    &MockImageStore{},
	}, pipeline.Options{ExtractorName: "gemini"})

	rec, err := p.ProcessImage(context.Background(), "b1", 0, extraction.Image{Name: "r.png", MimeType: "image/png", Data: pngBytes(t)})
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}

	if rec.FileName != "r.png" || rec.Amount != "$50.00" || rec.Tip != "$5.00" || rec.Total != "$55.00" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.ImageURL != "gs://bucket/receipts/b1/r.png" || rec.ReceiptID == "" || rec.ApprovalStatus != receipt.ApprovalPending {
		t.Errorf("bookkeeping fields not set: %+v", rec)
	}
	if v := rec.Verification; v == nil || !v.IsCorrect || !v.DoubleChecked || !v.Verified {
		t.Errorf("unexpected verification %+v", rec.Verification)
	}

	if len(repo.Receipts) != 1 || repo.Receipts[0].ScanRunID != "run-r.png" || repo.Receipts[0].BatchID != "b1" {
		t.Errorf("receipt not persisted: %+v", repo.Receipts)
	}
	if len(repo.Outputs) != 1 || !repo.Outputs[0].ModelName.Valid || repo.Outputs[0].ModelName.StringVal != "test-model" {
		t.Errorf("model output not stored: %+v", repo.Outputs)
	}
	if len(repo.Succeeded) != 1 || len(repo.Failed) != 0 {
		t.Errorf("succeeded=%v failed=%v", repo.Succeeded, repo.Failed)
	}
}

func TestProcessImage_MarksRunFailed(t *testing.T) {
	repo := &MockScanRepository{
		InsertReceiptsFunc: func(ctx context.Context, rows []*bq.ReceiptRow) error {
			return errors.New("insert failed")
		},
	}
	p := pipeline.NewProcessor(pipeline.Deps{Extractor: fixedExtractor("1", "1", "2"), Repo: repo}, pipeline.Options{})

	_, err := p.ProcessImage(context.Background(), "b1", 0, extraction.Image{Name: "x.png", Data: pngBytes(t)})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(repo.Failed) != 1 || repo.Failed[0] != "run-x.png" {
		t.Errorf("Failed = %v", repo.Failed)
	}
	if len(repo.Succeeded) != 0 {
		t.Errorf("Succeeded = %v", repo.Succeeded)
	}
}

func TestProcessImage_DecodeErrorBeforeRun(t *testing.T) {
	repo := &MockScanRepository{}
	p := pipeline.NewProcessor(pipeline.Deps{Repo: repo}, pipeline.Options{})

	if _, err := p.ProcessImage(context.Background(), "b", 0, extraction.Image{Name: "doc.pdf", Data: []byte("%PDF-1.4")}); err == nil {
		t.Fatal("expected decode error")
	}
	if len(repo.Failed) != 0 {
		t.Errorf("no run was started, but Failed = %v", repo.Failed)
	}
}

func TestProcessImage_SimulatedFallback(t *testing.T) {
	failing := extraction.ExtractorFunc(func(ctx context.Context, img extraction.Image) (*extraction.Result, error) {
		return nil, errors.New("api down")
	})
	p := pipeline.NewProcessor(pipeline.Deps{Extractor: extraction.NewFallbackExtractor(failing)}, pipeline.Options{})

	rec, err := p.ProcessImage(context.Background(), "b", 0, extraction.Image{Name: "IMG_7.png", Data: pngBytes(t)})
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	if !rec.Simulated || rec.Verification == nil || !rec.Verification.IsCorrect {
		t.Errorf("expected verified simulated record, got %+v", rec)
	}
	want := extraction.Simulate("IMG_7.png")
	if rec.Total != want.Total || rec.CustomerName != want.CustomerName {
		t.Errorf("expected deterministic simulated values, got %+v", rec)
	}
}

func TestProcessBatch_SlowExtractorFallsBack(t *testing.T) {
	hung := extraction.ExtractorFunc(func(ctx context.Context, img extraction.Image) (*extraction.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	fb := extraction.NewFallbackExtractor(hung)
	fb.Timeout = 20 * time.Millisecond
	p := pipeline.NewProcessor(pipeline.Deps{Extractor: fb}, pipeline.Options{})

	recs, err := p.ProcessBatch(context.Background(), "b", []extraction.Image{{Name: "slow.png", Data: pngBytes(t)}})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	rec := recs[0]
	if rec.Error != "" || !rec.Simulated || rec.Amount == "" {
		t.Errorf("expected simulated record, got %+v", rec)
	}
}

func TestProcessBatch_OrderAndPartialFailure(t *testing.T) {
	var inFlight, maxInFlight int32
	extractor := extraction.ExtractorFunc(func(ctx context.Context, img extraction.Image) (*extraction.Result, error) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		return &extraction.Result{Record: &receipt.Record{Amount: "$10.00", Tip: "$2.00", Total: "$12.00"}, Source: extraction.SourceGemini}, nil
	})

	p := pipeline.NewProcessor(pipeline.Deps{Extractor: extractor}, pipeline.Options{Concurrency: 2})

	data := pngBytes(t)
	images := []extraction.Image{
		{Name: "0.png", Data: data},
		{Name: "1.txt", Data: []byte("hello")},
		{Name: "2.png", Data: data},
		{Name: "3.png", Data: data},
		{Name: "4.png", Data: data},
	}

	records, err := p.ProcessBatch(context.Background(), "b", images)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(records) != len(images) {
		t.Fatalf("got %d records, want %d", len(records), len(images))
	}
	for i, r := range records {
		if r.FileName != images[i].Name {
			t.Errorf("records[%d].FileName = %q, want %q", i, r.FileName, images[i].Name)
		}
	}
	if records[1].Error == "" {
		t.Error("expected error on undecodable image")
	}
	if records[0].Error != "" || records[0].Total != "$12.00" {
		t.Errorf("unexpected records[0] %+v", records[0])
	}
	if maxInFlight > 2 {
		t.Errorf("max concurrent extractions = %d, want <= 2", maxInFlight)
	}
}

func TestProcessBatch_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := pipeline.NewProcessor(pipeline.Deps{}, pipeline.Options{})
	_, err := p.ProcessBatch(ctx, "b", []extraction.Image{{Name: "a.png", Data: pngBytes(t)}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
