package cmd

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/expenseflow/internal/core/events"
)

// registerAuditHandlers writes one log line per submission and decision.
func registerAuditHandlers(bus *events.EventBus, lg *slog.Logger) {
	bus.Subscribe(events.EventTypeExpenseSubmitted, func(ctx context.Context, event events.Event) error {
		submitted, ok := event.(*events.ExpenseSubmittedEvent)
		if !ok {
			return nil
		}
		lg.InfoContext(ctx, "expense submitted",
			"event_id", event.EventID(),
			"expense_id", submitted.ExpenseID,
			"user_id", submitted.UserID,
			"amount", submitted.Amount.StringFixed(2),
			"currency", submitted.Currency,
			"category", submitted.Category,
			"document_id", submitted.DocumentID)
		return nil
	})

	decision := func(ctx context.Context, event events.Event) error {
		changed, ok := event.(*events.ExpenseStatusChangedEvent)
		if !ok {
			return nil
		}

		attrs := []any{
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"expense_id", changed.ExpenseID,
			"status", changed.Status,
		}
		if changed.ProcessedBy == 0 {
			attrs = append(attrs, "processed_by", "auto")
		} else {
			attrs = append(attrs, "processed_by", changed.ProcessedBy)
		}
		if changed.Reason != "" {
			attrs = append(attrs, "reason", changed.Reason)
		}

		lg.InfoContext(ctx, "expense decision", attrs...)
		return nil
	}

	bus.Subscribe(events.EventTypeExpenseApproved, decision)
	bus.Subscribe(events.EventTypeExpenseRejected, decision)
}
