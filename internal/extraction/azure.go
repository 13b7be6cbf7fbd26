package extraction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"

	"github.com/dvloznov/tipenter/internal/receipt"
)

// ocrClient is the part of computervision.BaseClient used here.
type ocrClient interface {
	RecognizePrintedTextInStream(ctx context.Context, detectOrientation bool, imageParameter io.ReadCloser, language computervision.OcrLanguages) (computervision.OcrResult, error)
}

// AzureOCRExtractor reads printed text with Azure Computer Vision and maps
// the lines onto receipt fields by their labels.
type AzureOCRExtractor struct {
	client ocrClient
}

// NewAzureOCRExtractor creates an extractor for the given Cognitive Services
// endpoint and key.
func NewAzureOCRExtractor(endpoint, apiKey string) *AzureOCRExtractor {
	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)
	return &AzureOCRExtractor{client: &client}
}

func (a *AzureOCRExtractor) Extract(ctx context.Context, img Image) (*Result, error) {
	result, err := a.client.RecognizePrintedTextInStream(
		ctx,
		true,
		io.NopCloser(bytes.NewReader(img.Data)),
		computervision.OcrLanguages(computervision.En),
	)
	if err != nil {
		return nil, fmt.Errorf("AzureOCRExtractor: recognize text: %w", err)
	}

	lines := ocrLines(result)
	if len(lines) == 0 {
		return nil, fmt.Errorf("AzureOCRExtractor: no text found in %s", img.Name)
	}

	rec := parseReceiptLines(lines)
	rec.FileName = img.Name

	return &Result{Record: rec, Raw: strings.Join(lines, "\n"), Source: SourceAzureOCR}, nil
}

// ocrLines flattens an OCR result into one string per detected line.
func ocrLines(result computervision.OcrResult) []string {
	var out []string
	if result.Regions == nil {
		return out
	}
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			if line.Words == nil {
				continue
			}
			var b strings.Builder
			for _, word := range *line.Words {
				if word.Text == nil {
					continue
				}
				b.WriteString(*word.Text)
				b.WriteString(" ")
			}
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

var (
	moneyRe     = regexp.MustCompile(`-?\$?\s?\d[\d,]*\.\d{2}`)
	dateRe      = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
	timeRe      = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?::\d{2})?(?:\s?[ap]\.?m\.?)?`)
	tipRe       = regexp.MustCompile(`(?i)\b(?:tips?|gratuity)\b`)
	labelRe     = regexp.MustCompile(`(?i)\b(?:total|tips?|gratuity|sub\s?total|amount|tax)\b`)
	checkRe     = regexp.MustCompile(`(?i)\b(?:check|chk|ticket)\s*(?:#|no\.?|number)?\s*:?\s*(\d+)`)
	nameRe      = regexp.MustCompile(`(?i)^(?:guest|name|customer|card\s*holder)\s*:?\s*(.+)$`)
	signatureRe = regexp.MustCompile(`(?i)^x\s*_*\s*[a-z]{2,}`)
)

// parseReceiptLines maps OCR lines onto a record. A label line without an
// amount takes the amount from the line below it.
func parseReceiptLines(lines []string) *receipt.Record {
	r := &receipt.Record{}
	found := 0

	moneyAt := func(i int) string {
		if m := lastMoney(lines[i]); m != "" {
			return m
		}
		if i+1 < len(lines) && !hasLabel(lines[i+1]) {
			return lastMoney(lines[i+1])
		}
		return ""
	}

	for i, line := range lines {
		lower := strings.ToLower(line)

		switch {
		case strings.Contains(lower, "subtotal") || strings.Contains(lower, "sub total") || strings.HasPrefix(lower, "amount"):
			if r.Amount == "" {
				if r.Amount = moneyAt(i); r.Amount != "" {
					found++
				}
			}
		case tipRe.MatchString(line):
			if r.Tip == "" {
				if r.Tip = moneyAt(i); r.Tip != "" {
					found++
				}
			}
		case strings.Contains(lower, "total"):
			if r.Total == "" {
				if r.Total = moneyAt(i); r.Total != "" {
					found++
				}
			}
		}

		if r.CheckNumber == "" {
			if m := checkRe.FindStringSubmatch(line); m != nil {
				r.CheckNumber = m[1]
			}
		}
		if r.CustomerName == "" {
			if m := nameRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				r.CustomerName = strings.TrimSpace(m[1])
			}
		}
		if r.Date == "" {
			r.Date = dateRe.FindString(line)
		}
		if r.Time == "" {
			r.Time = strings.TrimSpace(timeRe.FindString(line))
		}
		if signatureRe.MatchString(strings.TrimSpace(line)) {
			r.Signed = true
		}
	}

	r.Confidence = float64(found) / 3
	return r
}

func lastMoney(line string) string {
	all := moneyRe.FindAllString(line, -1)
	if len(all) == 0 {
		return ""
	}
	return strings.ReplaceAll(all[len(all)-1], " ", "")
}

func hasLabel(line string) bool {
	return labelRe.MatchString(line)
}
