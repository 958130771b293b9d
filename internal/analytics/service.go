package analytics

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/core/common/validation"
	"github.com/frahmantamala/expenseflow/internal/expense"
)

type RepositoryAPI interface {
	Rows(ctx context.Context, filter Filter) ([]Row, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Summarize recomputes the report from the current expense rows.
func (s *Service) Summarize(ctx context.Context, user *internal.User, q Query) (*Report, error) {
	filter, err := s.buildFilter(user, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.Rows(ctx, filter)
	if err != nil {
		s.logger.Error("failed to load analytics rows", "error", err, "user_id", user.ID)
		return nil, internal.NewInternalError("failed to compute analytics", err)
	}

	report := Aggregate(rows)
	report.Scope = ScopeMine
	if filter.UserID == nil {
		report.Scope = ScopeAll
	}
	report.Status = filter.Status
	if filter.From != nil {
		report.From = filter.From.Format("2006-01-02")
	}
	if filter.To != nil {
		report.To = filter.To.Format("2006-01-02")
	}
	report.GeneratedAt = s.now().UTC()

	s.logger.Debug("analytics computed",
		"user_id", user.ID,
		"scope", report.Scope,
		"rows", len(rows))

	return &report, nil
}

func (s *Service) buildFilter(user *internal.User, q Query) (Filter, error) {
	var filter Filter

	switch strings.ToLower(strings.TrimSpace(q.Scope)) {
	case "", ScopeMine:
		id := user.ID
		filter.UserID = &id
	case ScopeAll:
		if !user.IsManager() {
			return Filter{}, internal.ErrInsufficientPerms.WithDetails(map[string]string{"scope": ScopeAll})
		}
	default:
		return Filter{}, internal.NewValidationFieldError("scope", "scope must be mine or all", internal.ErrCodeValidationFailed)
	}

	filter.Status = strings.TrimSpace(q.Status)
	if filter.Status != "" && !expense.IsValidStatus(filter.Status) {
		return Filter{}, internal.NewValidationFieldError("status", "status must be one of pending_approval approved rejected", internal.ErrCodeInvalidExpenseStatus)
	}

	if q.From != "" {
		from, appErr := validation.ParseDate("from", q.From)
		if appErr != nil {
			return Filter{}, appErr
		}
		from = day(from)
		filter.From = &from
	}
	if q.To != "" {
		to, appErr := validation.ParseDate("to", q.To)
		if appErr != nil {
			return Filter{}, appErr
		}
		to = day(to)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return Filter{}, internal.NewValidationFieldError("to", "to must not be before from", internal.ErrCodeInvalidDate)
	}

	return filter, nil
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
