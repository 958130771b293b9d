package document

import (
	"time"

	"github.com/shopspring/decimal"
)

type Document struct {
	ID                string          `gorm:"primaryKey;size:36"`
	UserID            int64           `gorm:"column:user_id;not null;index"`
	Filename          string          `gorm:"column:filename;not null"`
	ContentType       string          `gorm:"column:content_type;not null"`
	SizeBytes         int64           `gorm:"column:size_bytes;not null"`
	StorageKey        string          `gorm:"column:storage_key;not null"`
	Status            string          `gorm:"column:status;default:uploaded"`
	ExtractedAmount   decimal.Decimal `gorm:"column:extracted_amount;type:numeric(14,2);default:0"`
	ExtractedCurrency string          `gorm:"column:extracted_currency"`
	ExtractedMerchant string          `gorm:"column:extracted_merchant"`
	ExtractedDate     *time.Time      `gorm:"column:extracted_date;type:date"`
	Confidence        float64         `gorm:"column:confidence;default:0"`
	ExtractionSource  string          `gorm:"column:extraction_source"`
	RawText           string          `gorm:"column:raw_text"`
	ExtractionError   *string         `gorm:"column:extraction_error"`
	ExpenseID         *int64          `gorm:"column:expense_id"`
	UploadedAt        time.Time       `gorm:"column:uploaded_at"`
	ProcessedAt       *time.Time      `gorm:"column:processed_at"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
