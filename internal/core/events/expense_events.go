package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypeExpenseSubmitted = "expense.submitted"
	EventTypeExpenseApproved  = "expense.approved"
	EventTypeExpenseRejected  = "expense.rejected"
)

// ExpenseSubmittedEvent is published synchronously so the document link
// commits or fails together with the submission.
type ExpenseSubmittedEvent struct {
	BaseEvent
	ExpenseID  int64           `json:"expense_id"`
	UserID     int64           `json:"user_id"`
	DocumentID string          `json:"document_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Category   string          `json:"category"`
}

func NewExpenseSubmittedEvent(expenseID, userID int64, documentID string, amount decimal.Decimal, currency, category string) *ExpenseSubmittedEvent {
	return &ExpenseSubmittedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeExpenseSubmitted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"expense_id":  expenseID,
				"user_id":     userID,
				"document_id": documentID,
				"amount":      amount.StringFixed(2),
				"currency":    currency,
				"category":    category,
			},
		},
		ExpenseID:  expenseID,
		UserID:     userID,
		DocumentID: documentID,
		Amount:     amount,
		Currency:   currency,
		Category:   category,
	}
}

type ExpenseStatusChangedEvent struct {
	BaseEvent
	ExpenseID   int64  `json:"expense_id"`
	ProcessedBy int64  `json:"processed_by"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

func NewExpenseApprovedEvent(expenseID, processedBy int64) *ExpenseStatusChangedEvent {
	return newStatusChanged(EventTypeExpenseApproved, expenseID, processedBy, "approved", "")
}

func NewExpenseRejectedEvent(expenseID, processedBy int64, reason string) *ExpenseStatusChangedEvent {
	return newStatusChanged(EventTypeExpenseRejected, expenseID, processedBy, "rejected", reason)
}

func newStatusChanged(eventType string, expenseID, processedBy int64, status, reason string) *ExpenseStatusChangedEvent {
	return &ExpenseStatusChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"expense_id":   expenseID,
				"processed_by": processedBy,
				"status":       status,
				"reason":       reason,
			},
		},
		ExpenseID:   expenseID,
		ProcessedBy: processedBy,
		Status:      status,
		Reason:      reason,
	}
}
