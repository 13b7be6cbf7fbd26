package app

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/tipenter/internal/config"
	"github.com/dvloznov/tipenter/internal/extraction"
)

func TestNewExtractor(t *testing.T) {
	tests := []struct {
		extractor string
		wantName  string
	}{
		{config.ExtractorSimulated, "simulated"},
		{config.ExtractorAzure, "azure"},
	}

	for _, tt := range tests {
		t.Run(tt.extractor, func(t *testing.T) {
			cfg := config.Config{
				Extractor:           tt.extractor,
				AzureVisionEndpoint: "https://example.cognitiveservices.azure.com",
				AzureVisionKey:      "key",
			}
			ex, name, err := NewExtractor(context.Background(), cfg)
			if err != nil {
				t.Fatalf("NewExtractor: %v", err)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if ex == nil {
				t.Fatal("nil extractor")
			}
		})
	}
}

func TestNew_WithoutCloud(t *testing.T) {
	cfg := config.Config{
		Extractor:            config.ExtractorSimulated,
		ScanConcurrency:      2,
		ImageMaxDimension:    800,
		ImageJPEGQuality:     70,
		DoubleCheckThreshold: decimal.NewFromInt(100),
	}

	s, err := New(context.Background(), cfg, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if s.Repo != nil || s.Images != nil {
		t.Error("cloud backends should be disabled")
	}
	if s.Fetcher() != nil {
		t.Error("Fetcher should be nil without an image store")
	}
	if got := strings.Join(s.Processor.Pipeline().Steps(), ","); got != "decode,compress,extract,normalize,verify" {
		t.Errorf("steps = %s", got)
	}
	if !s.Verifier.DoubleCheckThreshold.Equal(decimal.NewFromInt(100)) {
		t.Errorf("threshold = %s", s.Verifier.DoubleCheckThreshold)
	}

	rec, err := s.Processor.ProcessImage(context.Background(), "b1", 0, extraction.Image{Name: "bad.txt", Data: []byte("not an image")})
	if err == nil {
		t.Errorf("expected decode error, got record %+v", rec)
	}
}
