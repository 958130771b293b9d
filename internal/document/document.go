package document

import (
	"time"

	"github.com/shopspring/decimal"

	documentDatamodel "github.com/frahmantamala/expenseflow/internal/core/datamodel/document"
	"github.com/frahmantamala/expenseflow/internal/ocr"
)

const (
	StatusUploaded  = "uploaded"
	StatusProcessed = "processed"
)

// AllowedContentTypes are the sniffed types accepted on upload.
var AllowedContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/gif":       true,
	"image/tiff":      true,
	"application/pdf": true,
}

type Document struct {
	ID              string      `json:"id"`
	UserID          int64       `json:"user_id"`
	Filename        string      `json:"filename"`
	ContentType     string      `json:"content_type"`
	SizeBytes       int64       `json:"size_bytes"`
	StorageKey      string      `json:"-"`
	Status          string      `json:"status"`
	Extracted       *Extraction `json:"extracted,omitempty"`
	ExtractionError *string     `json:"extraction_error,omitempty"`
	ExpenseID       *int64      `json:"expense_id,omitempty"`
	UploadedAt      time.Time   `json:"uploaded_at"`
	ProcessedAt     *time.Time  `json:"processed_at,omitempty"`
}

type Extraction struct {
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Merchant   string          `json:"merchant"`
	Date       *time.Time      `json:"date,omitempty"`
	Confidence float64         `json:"confidence"`
	Source     string          `json:"source"`
	RawText    string          `json:"raw_text,omitempty"`
}

func (d *Document) IsProcessed() bool {
	return d.Status == StatusProcessed
}

func (d *Document) IsLinked() bool {
	return d.ExpenseID != nil
}

func ExtractionFromFields(f ocr.Fields) Extraction {
	return Extraction{
		Amount:     f.Amount,
		Currency:   f.Currency,
		Merchant:   f.Merchant,
		Date:       f.Date,
		Confidence: f.Confidence,
		Source:     f.Source,
		RawText:    f.RawText,
	}
}

// Fields returns the extracted values in the shape expense submission
// reads; nil while the document is unprocessed.
func (d *Document) Fields() *ocr.Fields {
	if d.Extracted == nil {
		return nil
	}
	return &ocr.Fields{
		Amount:     d.Extracted.Amount,
		Currency:   d.Extracted.Currency,
		Merchant:   d.Extracted.Merchant,
		Date:       d.Extracted.Date,
		Confidence: d.Extracted.Confidence,
		Source:     d.Extracted.Source,
	}
}

func ToDataModel(d *Document) *documentDatamodel.Document {
	dm := &documentDatamodel.Document{
		ID:              d.ID,
		UserID:          d.UserID,
		Filename:        d.Filename,
		ContentType:     d.ContentType,
		SizeBytes:       d.SizeBytes,
		StorageKey:      d.StorageKey,
		Status:          d.Status,
		ExtractionError: d.ExtractionError,
		ExpenseID:       d.ExpenseID,
		UploadedAt:      d.UploadedAt,
		ProcessedAt:     d.ProcessedAt,
	}
	if d.Extracted != nil {
		dm.ExtractedAmount = d.Extracted.Amount
		dm.ExtractedCurrency = d.Extracted.Currency
		dm.ExtractedMerchant = d.Extracted.Merchant
		dm.ExtractedDate = d.Extracted.Date
		dm.Confidence = d.Extracted.Confidence
		dm.ExtractionSource = d.Extracted.Source
		dm.RawText = d.Extracted.RawText
	}
	return dm
}

func FromDataModel(dm *documentDatamodel.Document) *Document {
	d := &Document{
		ID:              dm.ID,
		UserID:          dm.UserID,
		Filename:        dm.Filename,
		ContentType:     dm.ContentType,
		SizeBytes:       dm.SizeBytes,
		StorageKey:      dm.StorageKey,
		Status:          dm.Status,
		ExtractionError: dm.ExtractionError,
		ExpenseID:       dm.ExpenseID,
		UploadedAt:      dm.UploadedAt,
		ProcessedAt:     dm.ProcessedAt,
	}
	if dm.Status == StatusProcessed {
		d.Extracted = &Extraction{
			Amount:     dm.ExtractedAmount,
			Currency:   dm.ExtractedCurrency,
			Merchant:   dm.ExtractedMerchant,
			Date:       dm.ExtractedDate,
			Confidence: dm.Confidence,
			Source:     dm.ExtractionSource,
			RawText:    dm.RawText,
		}
	}
	return d
}
