// Package extraction turns a receipt image into a receipt.Record, either
// through a vision model, an OCR service, or the deterministic simulator
// used when neither is reachable.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dvloznov/tipenter/internal/receipt"
)

// Sources reported on Result.
const (
	SourceGemini    = "GEMINI_VISION"
	SourceAzureOCR  = "AZURE_OCR"
	SourceSimulated = "SIMULATED"
)

// Image is one uploaded receipt image.
type Image struct {
	Name     string
	MimeType string
	Data     []byte
}

// Result is an extracted record plus the raw output it was built from.
type Result struct {
	Record *receipt.Record
	Raw    string
	Source string
	Model  string
}

// Extractor extracts receipt fields from an image.
type Extractor interface {
	Extract(ctx context.Context, img Image) (*Result, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, img Image) (*Result, error)

func (f ExtractorFunc) Extract(ctx context.Context, img Image) (*Result, error) {
	return f(ctx, img)
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

// decodeRecord reads the model's JSON object into a record. Numbers and
// strings are both accepted for every field.
func decodeRecord(raw string) (*receipt.Record, error) {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &m); err != nil {
		return nil, fmt.Errorf("decodeRecord: unmarshal JSON: %w", err)
	}

	r := &receipt.Record{
		Date:         stringField(m, "date"),
		Time:         stringField(m, "time"),
		CustomerName: stringField(m, "customer_name"),
		CheckNumber:  stringField(m, "check_number"),
		Amount:       stringField(m, "amount"),
		Tip:          stringField(m, "tip"),
		Total:        stringField(m, "total"),
		Signed:       boolField(m, "signed"),
		Confidence:   floatField(m, "confidence"),
	}
	return r, nil
}

func stringField(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func boolField(m map[string]interface{}, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	case float64:
		return v != 0
	default:
		return false
	}
}

func floatField(m map[string]interface{}, key string) float64 {
	var f float64
	switch v := m[key].(type) {
	case float64:
		f = v
	case string:
		f, _ = strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
