package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ollamaPrompt = `You are a receipt parser. Read the receipt image and answer with JSON only, using exactly these keys:
{"merchant": string, "amount": number, "currency": "ISO 4217 code", "date": "YYYY-MM-DD", "confidence": number between 0 and 1}.
The amount is the final total paid. Use null for anything you cannot read.`

	defaultModelConfidence = 0.7
)

// OllamaExtractor asks a vision model served by Ollama to read the receipt.
type OllamaExtractor struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaExtractor(baseURL, model string, client *http.Client) *OllamaExtractor {
	if client == nil {
		client = &http.Client{}
	}
	return &OllamaExtractor{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

func (o *OllamaExtractor) Name() string { return SourceOllama }

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Format string   `json:"format"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

type modelAnswer struct {
	Merchant   *string         `json:"merchant"`
	Amount     json.RawMessage `json:"amount"`
	Currency   *string         `json:"currency"`
	Date       *string         `json:"date"`
	Confidence *float64        `json:"confidence"`
}

func (o *OllamaExtractor) Extract(ctx context.Context, in Input) (*Fields, error) {
	if !in.IsImage() {
		return nil, fmt.Errorf("ollama: %w: %s", ErrUnsupportedContent, in.ContentType)
	}

	payload, err := json.Marshal(generateRequest{
		Model:  o.model,
		Prompt: ollamaPrompt,
		Images: []string{base64.StdEncoding.EncodeToString(in.Data)},
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("ollama: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var gen generateResponse
	if err := json.Unmarshal(body, &gen); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	if gen.Error != "" {
		return nil, fmt.Errorf("ollama: %s", gen.Error)
	}

	return parseModelAnswer(gen.Response)
}

func parseModelAnswer(raw string) (*Fields, error) {
	var answer modelAnswer
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &answer); err != nil {
		return nil, fmt.Errorf("ollama: model answer is not json: %w", err)
	}

	fields := &Fields{
		Source:     SourceOllama,
		Confidence: defaultModelConfidence,
		RawText:    raw,
	}
	if answer.Merchant != nil {
		fields.Merchant = *answer.Merchant
	}
	if answer.Currency != nil {
		fields.Currency = *answer.Currency
	}
	if answer.Confidence != nil {
		fields.Confidence = *answer.Confidence
	}
	if answer.Date != nil {
		if d, ok := parseDate(*answer.Date); ok {
			fields.Date = &d
		}
	}
	fields.Amount = parseModelAmount(answer.Amount)

	return fields, nil
}

// parseModelAmount accepts numbers, numeric strings and strings with a
// currency symbol such as "$12.50".
func parseModelAmount(raw json.RawMessage) decimal.Decimal {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero
	}

	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err == nil {
		return d
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if amounts := lineAmounts(s); len(amounts) > 0 {
			return amounts[len(amounts)-1]
		}
	}
	return decimal.Zero
}
