package expense

import (
	"time"

	"github.com/shopspring/decimal"
)

type Expense struct {
	ID              int64           `gorm:"primaryKey"`
	UserID          int64           `gorm:"column:user_id;not null;index"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency        string          `gorm:"column:currency;size:3;not null"`
	Merchant        string          `gorm:"column:merchant"`
	Description     string          `gorm:"column:description"`
	Category        string          `gorm:"column:category;index"`
	DocumentID      *string         `gorm:"column:document_id;size:36"`
	ExpenseStatus   string          `gorm:"column:expense_status;default:pending_approval;index"`
	RejectionReason *string         `gorm:"column:rejection_reason"`
	ProcessedBy     *int64          `gorm:"column:processed_by"`
	ExpenseDate     time.Time       `gorm:"column:expense_date;type:date"`
	SubmittedAt     time.Time       `gorm:"column:submitted_at"`
	ProcessedAt     *time.Time      `gorm:"column:processed_at"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
