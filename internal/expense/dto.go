package expense

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateExpenseDTO is the submission payload. Amount, currency, merchant
// and expense_date may be omitted when document_id refers to a processed
// receipt; the extracted values fill them in.
type CreateExpenseDTO struct {
	Amount      *decimal.Decimal `json:"amount"`
	Currency    string           `json:"currency" validate:"omitempty,len=3"`
	Merchant    string           `json:"merchant" validate:"max=255"`
	Description string           `json:"description" validate:"max=500"`
	Category    string           `json:"category" validate:"required,max=64"`
	ExpenseDate string           `json:"expense_date"`
	DocumentID  string           `json:"document_id" validate:"omitempty,uuid"`
}

// UpdateExpenseDTO changes a pending expense; absent fields are kept.
type UpdateExpenseDTO struct {
	Amount      *decimal.Decimal `json:"amount"`
	Currency    *string          `json:"currency" validate:"omitempty,len=3"`
	Merchant    *string          `json:"merchant" validate:"omitempty,max=255"`
	Description *string          `json:"description" validate:"omitempty,max=500"`
	Category    *string          `json:"category" validate:"omitempty,max=64"`
	ExpenseDate *string          `json:"expense_date"`
}

type RejectExpenseDTO struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

const (
	ScopeMine = "mine"
	ScopeAll  = "all"
)

// ListQuery carries the raw list filters from the query string.
type ListQuery struct {
	Category string
	Status   string
	From     string
	To       string
	Scope    string
	Limit    int
	Offset   int
}

// ListFilter is the validated form handed to the repository. A nil
// UserID selects every user's expenses.
type ListFilter struct {
	UserID   *int64
	Category string
	Status   string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

type ExpensesResponse struct {
	Expenses []*Expense `json:"expenses"`
}

type StatusTotal struct {
	Status string          `json:"status"`
	Count  int64           `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

// StatsResponse summarizes the current month's expenses per status.
type StatsResponse struct {
	Month       string                 `json:"month"`
	Scope       string                 `json:"scope"`
	Count       int64                  `json:"count"`
	TotalAmount decimal.Decimal        `json:"total_amount"`
	ByStatus    map[string]StatusTotal `json:"by_status"`
}
