package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	bq "github.com/dvloznov/tipenter/internal/bigquery"
	"github.com/dvloznov/tipenter/internal/extraction"
	"github.com/dvloznov/tipenter/internal/imaging"
	infra "github.com/dvloznov/tipenter/internal/infra/bigquery"
	"github.com/dvloznov/tipenter/internal/money"
	"github.com/dvloznov/tipenter/internal/receipt"
)

// DecodeImageStep decodes the uploaded bytes.
type DecodeImageStep struct{}

func (s *DecodeImageStep) Name() string { return "decode" }

func (s *DecodeImageStep) Execute(ctx context.Context, state *State) error {
	img, err := imaging.Decode(state.Image.Data, state.Image.MimeType)
	if err != nil {
		return err
	}
	state.Decoded = img
	return nil
}

// CompressImageStep bounds the image size and re-encodes it as JPEG.
type CompressImageStep struct {
	Options imaging.Options
}

func (s *CompressImageStep) Name() string { return "compress" }

func (s *CompressImageStep) Execute(ctx context.Context, state *State) error {
	data, err := imaging.Compress(state.Decoded, s.Options)
	if err != nil {
		return err
	}
	state.Compressed = data
	return nil
}

// StoreImageStep uploads the original image.
type StoreImageStep struct {
	Store ImageStore
}

func (s *StoreImageStep) Name() string { return "store_image" }

func (s *StoreImageStep) Execute(ctx context.Context, state *State) error {
	contentType := state.Image.MimeType
	if contentType == "" {
		contentType = imaging.DetectMimeType(state.Image.Data)
	}
	uri, err := s.Store.UploadImage(ctx, state.BatchID, state.Image.Name, contentType, state.Image.Data)
	if err != nil {
		return fmt.Errorf("StoreImageStep: %w", err)
	}
	state.ImageURI = uri
	return nil
}

// StartScanRunStep records a scan run with status=RUNNING.
type StartScanRunStep struct {
	Repo      ScanRepository
	Extractor string
}

func (s *StartScanRunStep) Name() string { return "start_scan_run" }

func (s *StartScanRunStep) Execute(ctx context.Context, state *State) error {
	id, err := s.Repo.StartScanRun(ctx, state.BatchID, state.Image.Name, s.Extractor)
	if err != nil {
		return err
	}
	state.ScanRunID = id
	return nil
}

// ExtractStep calls the extractor on the compressed image.
type ExtractStep struct {
	Extractor extraction.Extractor
}

func (s *ExtractStep) Name() string { return "extract" }

func (s *ExtractStep) Execute(ctx context.Context, state *State) error {
	img := extraction.Image{Name: state.Image.Name, MimeType: "image/jpeg", Data: state.Compressed}
	if len(img.Data) == 0 {
		img = state.Image
	}

	res, err := s.Extractor.Extract(ctx, img)
	if err != nil {
		return err
	}
	if res == nil || res.Record == nil {
		return errors.New("ExtractStep: extractor returned no record")
	}
	res.Record.FileName = state.Image.Name
	state.Result = res
	return nil
}

// StoreModelOutputStep keeps the raw extractor output.
type StoreModelOutputStep struct {
	Repo ScanRepository
}

func (s *StoreModelOutputStep) Name() string { return "store_model_output" }

func (s *StoreModelOutputStep) Execute(ctx context.Context, state *State) error {
	row := &bq.ModelOutputRow{
		OutputID:  uuid.NewString(),
		ScanRunID: state.ScanRunID,
		BatchID:   state.BatchID,
		Source:    state.Result.Source,
		RawOutput: state.Result.Raw,
		CreatedTS: time.Now().UTC(),
	}
	if state.Result.Model != "" {
		row.ModelName = bigquery.NullString{StringVal: state.Result.Model, Valid: true}
	}
	return s.Repo.InsertModelOutput(ctx, row)
}

// NormalizeStep formats money fields and fills the bookkeeping fields.
type NormalizeStep struct{}

func (s *NormalizeStep) Name() string { return "normalize" }

func (s *NormalizeStep) Execute(ctx context.Context, state *State) error {
	r := state.Result.Record
	receipt.FormatMonetaryValues(r)
	if r.ReceiptID == "" {
		r.ReceiptID = uuid.NewString()
	}
	if r.ApprovalStatus == "" {
		r.ApprovalStatus = receipt.ApprovalPending
	}
	if state.ImageURI != "" {
		r.ImageURL = state.ImageURI
	}
	if state.Result.Source == extraction.SourceSimulated {
		r.Simulated = true
	}
	return nil
}

// VerifyStep checks amount + tip against total.
type VerifyStep struct {
	Verifier money.Verifier
}

func (s *VerifyStep) Name() string { return "verify" }

func (s *VerifyStep) Execute(ctx context.Context, state *State) error {
	state.Result.Record.VerifyWith(s.Verifier)
	return nil
}

// PersistReceiptStep inserts the receipt into the warehouse.
type PersistReceiptStep struct {
	Repo ScanRepository
}

func (s *PersistReceiptStep) Name() string { return "persist" }

func (s *PersistReceiptStep) Execute(ctx context.Context, state *State) error {
	row := infra.ReceiptRowFromRecord(state.Result.Record, state.BatchID, state.ScanRunID, state.Position)
	return s.Repo.InsertReceipts(ctx, []*bq.ReceiptRow{row})
}

// MarkSuccessStep marks the scan run as SUCCESS.
type MarkSuccessStep struct {
	Repo ScanRepository
}

func (s *MarkSuccessStep) Name() string { return "mark_success" }

func (s *MarkSuccessStep) Execute(ctx context.Context, state *State) error {
	return s.Repo.MarkScanRunSucceeded(ctx, state.ScanRunID)
}
