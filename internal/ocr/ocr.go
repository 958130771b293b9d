package ocr

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/expenseflow/internal/core/common/validation"
)

const (
	SourceMock        = "mock"
	SourceOllama      = "ollama"
	SourceTesseract   = "tesseract"
	SourcePlaceholder = "placeholder"
)

// maxMerchantBytes caps recognized merchant names.
const maxMerchantBytes = 255

var (
	ErrUnsupportedContent = errors.New("content type not supported by extractor")
	ErrQueueFull          = errors.New("ocr queue is full")
	ErrPoolClosed         = errors.New("ocr pool is shut down")
	ErrNoText             = errors.New("no text recognized")
)

// Input is one receipt handed to an extractor.
type Input struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (in Input) IsImage() bool {
	return strings.HasPrefix(in.ContentType, "image/")
}

// Fields is the structured result of a receipt extraction.
type Fields struct {
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Merchant   string          `json:"merchant"`
	Date       *time.Time      `json:"date,omitempty"`
	Confidence float64         `json:"confidence"`
	Source     string          `json:"source"`
	RawText    string          `json:"raw_text,omitempty"`
}

type Extractor interface {
	Name() string
	Extract(ctx context.Context, in Input) (*Fields, error)
}

// Placeholder is returned whenever extraction fails.
func Placeholder(currency string) Fields {
	return Fields{
		Amount:   decimal.Zero,
		Currency: currency,
		Source:   SourcePlaceholder,
	}
}

// Normalize clamps the fields into their valid ranges: non-negative
// amount with two places, upper-case currency, confidence in [0,1].
func (f *Fields) Normalize(defaultCurrency string) {
	if f.Amount.IsNegative() {
		f.Amount = decimal.Zero
	}
	f.Amount = f.Amount.Round(2)

	f.Currency = strings.ToUpper(strings.TrimSpace(f.Currency))
	if validation.ValidateCurrency(f.Currency) != nil {
		f.Currency = defaultCurrency
	}

	f.Merchant = truncate(strings.TrimSpace(f.Merchant), maxMerchantBytes)

	switch {
	case f.Confidence < 0:
		f.Confidence = 0
	case f.Confidence > 1:
		f.Confidence = 1
	}
}

// Run extracts fields and never fails: on error it returns the
// placeholder fields together with the error for the caller to record.
func Run(ctx context.Context, ex Extractor, in Input, defaultCurrency string) (Fields, error) {
	fields, err := ex.Extract(ctx, in)
	if err != nil {
		return Placeholder(defaultCurrency), err
	}
	if fields == nil {
		return Placeholder(defaultCurrency), ErrNoText
	}

	out := *fields
	out.Normalize(defaultCurrency)
	return out, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
