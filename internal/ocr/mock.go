package ocr

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const mockConfidence = 0.85

// MockExtractor returns fixed demo fields for every receipt.
type MockExtractor struct {
	Currency string
	now      func() time.Time
}

func NewMockExtractor(currency string) *MockExtractor {
	return &MockExtractor{Currency: currency, now: time.Now}
}

func (m *MockExtractor) Name() string { return SourceMock }

func (m *MockExtractor) Extract(ctx context.Context, _ Input) (*Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	today := m.now().UTC().Truncate(24 * time.Hour)
	return &Fields{
		Amount:     decimal.RequireFromString("42.50"),
		Currency:   m.Currency,
		Merchant:   "Demo Coffee Shop",
		Date:       &today,
		Confidence: mockConfidence,
		Source:     SourceMock,
	}, nil
}
