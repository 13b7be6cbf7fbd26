package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "EXTRACTOR", "SCAN_CONCURRENCY", "DOUBLE_CHECK_THRESHOLD", "GCP_PROJECT", "GCS_BUCKET"} {
		t.Setenv(k, "")
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "8080" || cfg.Extractor != ExtractorGemini || cfg.ScanConcurrency != 4 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.DoubleCheckThreshold.String() != "50" {
		t.Errorf("DoubleCheckThreshold = %s, want 50", cfg.DoubleCheckThreshold)
	}
	if cfg.ExtractTimeout != time.Minute {
		t.Errorf("ExtractTimeout = %v", cfg.ExtractTimeout)
	}
	if cfg.BigQueryEnabled() || cfg.StorageEnabled() {
		t.Error("expected BigQuery and storage disabled without project/bucket")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("EXTRACTOR", "Simulated")
	t.Setenv("SCAN_CONCURRENCY", "8")
	t.Setenv("SCAN_QUEUE", "q1")
	t.Setenv("DOUBLE_CHECK_THRESHOLD", "75.50")
	t.Setenv("EXTRACT_TIMEOUT", "5s")
	t.Setenv("GCP_PROJECT", "p")
	t.Setenv("GCS_BUCKET", "b")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "9000" || cfg.Extractor != ExtractorSimulated || cfg.ScanConcurrency != 8 || cfg.ScanQueue != "q1" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.DoubleCheckThreshold.StringFixed(2) != "75.50" || cfg.ExtractTimeout != 5*time.Second {
		t.Errorf("unexpected threshold/timeout: %s %v", cfg.DoubleCheckThreshold, cfg.ExtractTimeout)
	}
	if !cfg.BigQueryEnabled() || !cfg.StorageEnabled() {
		t.Error("expected BigQuery and storage enabled")
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown extractor", map[string]string{"EXTRACTOR": "tesseract"}},
		{"azure without key", map[string]string{"EXTRACTOR": "azure", "AZURE_VISION_ENDPOINT": "https://x", "AZURE_VISION_KEY": ""}},
		{"zero concurrency", map[string]string{"SCAN_CONCURRENCY": "0"}},
		{"bad quality", map[string]string{"IMAGE_JPEG_QUALITY": "101"}},
		{"bad threshold", map[string]string{"DOUBLE_CHECK_THRESHOLD": "fifty"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGetInt_IgnoresGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "many")
	if got := getInt("SOME_INT", 3); got != 3 {
		t.Errorf("getInt = %d, want default 3", got)
	}
}
