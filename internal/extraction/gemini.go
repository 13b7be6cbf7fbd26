package extraction

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

const receiptPrompt = "You are a restaurant check parser.\n\n" +
	"Task:\n" +
	"- Read the attached photo of a restaurant check or credit card slip.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a single JSON object.\n\n" +
	"The object must have these fields:\n" +
	"- \"date\": string as printed, or \"\"\n" +
	"- \"time\": string, 24h \"HH:MM\" if possible, or \"\"\n" +
	"- \"customer_name\": string, the guest or card holder name, or \"\"\n" +
	"- \"check_number\": string, or \"\"\n" +
	"- \"amount\": string \"$NN.NN\", the subtotal before tip\n" +
	"- \"tip\": string \"$NN.NN\", handwritten tip, \"$0.00\" if blank\n" +
	"- \"total\": string \"$NN.NN\", the final total\n" +
	"- \"signed\": boolean, true if there is a signature\n" +
	"- \"confidence\": number between 0 and 1\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"{\" and end with \"}\".\n"

// contentGenerator is the part of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiExtractor sends the image inline to a Gemini model.
type GeminiExtractor struct {
	models contentGenerator
	model  string
}

// NewGeminiExtractor creates a genai client. Credentials come from the
// environment (GOOGLE_API_KEY, or Vertex settings).
func NewGeminiExtractor(ctx context.Context, model string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiExtractor: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiExtractor{models: client.Models, model: model}, nil
}

func (g *GeminiExtractor) Extract(ctx context.Context, img Image) (*Result, error) {
	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: receiptPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     img.Data,
					},
				},
			},
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("GeminiExtractor: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("GeminiExtractor: empty response from model")
	}

	rec, err := decodeRecord(rawText)
	if err != nil {
		return nil, fmt.Errorf("GeminiExtractor: %w\nraw response: %s", err, rawText)
	}
	rec.FileName = img.Name

	return &Result{Record: rec, Raw: rawText, Source: SourceGemini, Model: g.model}, nil
}
