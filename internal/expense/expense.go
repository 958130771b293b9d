package expense

import (
	"time"

	"github.com/shopspring/decimal"

	expenseDatamodel "github.com/frahmantamala/expenseflow/internal/core/datamodel/expense"
)

const (
	ExpenseStatusPendingApproval = "pending_approval"
	ExpenseStatusApproved        = "approved"
	ExpenseStatusRejected        = "rejected"
)

var validStatuses = map[string]bool{
	ExpenseStatusPendingApproval: true,
	ExpenseStatusApproved:        true,
	ExpenseStatusRejected:        true,
}

func IsValidStatus(status string) bool {
	return validStatuses[status]
}

type Expense struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Merchant        string          `json:"merchant"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	DocumentID      *string         `json:"document_id,omitempty"`
	ExpenseStatus   string          `json:"expense_status"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	ProcessedBy     *int64          `json:"processed_by,omitempty"`
	ExpenseDate     time.Time       `json:"expense_date"`
	SubmittedAt     time.Time       `json:"submitted_at"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (e *Expense) IsPending() bool {
	return e.ExpenseStatus == ExpenseStatusPendingApproval
}

func (e *Expense) CanBeApproved() bool {
	return e.IsPending()
}

func (e *Expense) CanBeRejected() bool {
	return e.IsPending()
}

// ShouldBeAutoApproved reports whether amount is under a positive limit.
func ShouldBeAutoApproved(amount, limit decimal.Decimal) bool {
	return limit.IsPositive() && amount.LessThan(limit)
}

func (e *Expense) Approve(processedBy *int64, at time.Time) {
	e.ExpenseStatus = ExpenseStatusApproved
	e.ProcessedBy = processedBy
	e.ProcessedAt = &at
	e.UpdatedAt = at
}

func (e *Expense) Reject(processedBy int64, reason string, at time.Time) {
	e.ExpenseStatus = ExpenseStatusRejected
	e.ProcessedBy = &processedBy
	e.RejectionReason = &reason
	e.ProcessedAt = &at
	e.UpdatedAt = at
}

// Draft holds the resolved values of a submission.
type Draft struct {
	Amount      decimal.Decimal
	Currency    string
	Merchant    string
	Description string
	Category    string
	ExpenseDate time.Time
	DocumentID  *string
}

func NewExpense(userID int64, d Draft, autoApprovalLimit decimal.Decimal) *Expense {
	now := time.Now().UTC()

	expense := &Expense{
		UserID:        userID,
		Amount:        d.Amount,
		Currency:      d.Currency,
		Merchant:      d.Merchant,
		Description:   d.Description,
		Category:      d.Category,
		DocumentID:    d.DocumentID,
		ExpenseStatus: ExpenseStatusPendingApproval,
		ExpenseDate:   d.ExpenseDate,
		SubmittedAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if ShouldBeAutoApproved(expense.Amount, autoApprovalLimit) {
		expense.Approve(nil, now)
	}

	return expense
}

func ToDataModel(e *Expense) *expenseDatamodel.Expense {
	return &expenseDatamodel.Expense{
		ID:              e.ID,
		UserID:          e.UserID,
		Amount:          e.Amount,
		Currency:        e.Currency,
		Merchant:        e.Merchant,
		Description:     e.Description,
		Category:        e.Category,
		DocumentID:      e.DocumentID,
		ExpenseStatus:   e.ExpenseStatus,
		RejectionReason: e.RejectionReason,
		ProcessedBy:     e.ProcessedBy,
		ExpenseDate:     e.ExpenseDate,
		SubmittedAt:     e.SubmittedAt,
		ProcessedAt:     e.ProcessedAt,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func FromDataModel(e *expenseDatamodel.Expense) *Expense {
	return &Expense{
		ID:              e.ID,
		UserID:          e.UserID,
		Amount:          e.Amount,
		Currency:        e.Currency,
		Merchant:        e.Merchant,
		Description:     e.Description,
		Category:        e.Category,
		DocumentID:      e.DocumentID,
		ExpenseStatus:   e.ExpenseStatus,
		RejectionReason: e.RejectionReason,
		ProcessedBy:     e.ProcessedBy,
		ExpenseDate:     e.ExpenseDate.UTC(),
		SubmittedAt:     e.SubmittedAt,
		ProcessedAt:     e.ProcessedAt,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func FromDataModelSlice(expenses []*expenseDatamodel.Expense) []*Expense {
	result := make([]*Expense, len(expenses))
	for i, e := range expenses {
		result[i] = FromDataModel(e)
	}
	return result
}
