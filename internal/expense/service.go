package expense

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/core/common/validation"
	"github.com/frahmantamala/expenseflow/internal/core/events"
	"github.com/frahmantamala/expenseflow/internal/ocr"
)

type RepositoryAPI interface {
	Create(ctx context.Context, expense *Expense) error
	GetByID(ctx context.Context, id int64) (*Expense, error)
	List(ctx context.Context, filter ListFilter) ([]*Expense, int64, error)
	// UpdatePending saves the editable fields while the expense is still
	// pending and reports whether it did.
	UpdatePending(ctx context.Context, expense *Expense) (bool, error)
	// UpdateStatus moves a pending expense to status and reports whether it did.
	UpdateStatus(ctx context.Context, expense *Expense) (bool, error)
	ClearDocument(ctx context.Context, id int64) error
	StatusTotals(ctx context.Context, userID *int64, from, to time.Time) ([]StatusTotal, error)
}

type CategoryResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

type DocumentLinker interface {
	PrepareLink(ctx context.Context, userID int64, documentID string) (*ocr.Fields, error)
}

type Options struct {
	DefaultCurrency   string
	AutoApprovalLimit decimal.Decimal
}

// Service handles expense business logic
type Service struct {
	repo       RepositoryAPI
	categories CategoryResolver
	documents  DocumentLinker
	publisher  events.Publisher
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repo RepositoryAPI, categories CategoryResolver, documents DocumentLinker, publisher events.Publisher, opts Options, logger *slog.Logger) *Service {
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "USD"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		categories: categories,
		documents:  documents,
		publisher:  publisher,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateExpense validates and stores a submission, prefilling missing
// values from the referenced document and linking it to the new expense.
func (s *Service) CreateExpense(ctx context.Context, user *internal.User, dto CreateExpenseDTO) (*Expense, error) {
	dto.Currency = strings.ToUpper(strings.TrimSpace(dto.Currency))
	dto.DocumentID = strings.TrimSpace(dto.DocumentID)
	if appErr := validation.Struct(&dto); appErr != nil {
		return nil, appErr
	}

	category, err := s.categories.Resolve(ctx, dto.Category)
	if err != nil {
		return nil, err
	}

	var receipt *ocr.Fields
	if dto.DocumentID != "" {
		if s.documents == nil {
			return nil, internal.ErrDocumentNotFound
		}
		receipt, err = s.documents.PrepareLink(ctx, user.ID, dto.DocumentID)
		if err != nil {
			return nil, err
		}
	}

	draft, err := s.draft(dto, category, receipt)
	if err != nil {
		return nil, err
	}

	expense := NewExpense(user.ID, draft, s.opts.AutoApprovalLimit)
	if err := s.repo.Create(ctx, expense); err != nil {
		s.logger.Error("failed to create expense", "error", err, "user_id", user.ID)
		return nil, internal.NewInternalError("failed to create expense", err)
	}

	s.publishSubmitted(ctx, expense)

	if expense.ExpenseStatus == ExpenseStatusApproved {
		s.logger.Info("expense auto-approved",
			"expense_id", expense.ID,
			"amount", expense.Amount.StringFixed(2),
			"limit", s.opts.AutoApprovalLimit.StringFixed(2))
		s.publish(ctx, events.NewExpenseApprovedEvent(expense.ID, 0))
	}

	s.logger.Info("expense created successfully",
		"expense_id", expense.ID,
		"user_id", user.ID,
		"amount", expense.Amount.StringFixed(2),
		"currency", expense.Currency,
		"category", expense.Category,
		"status", expense.ExpenseStatus)

	return expense, nil
}

func (s *Service) draft(dto CreateExpenseDTO, category string, receipt *ocr.Fields) (Draft, error) {
	d := Draft{
		Currency:    dto.Currency,
		Merchant:    strings.TrimSpace(dto.Merchant),
		Description: strings.TrimSpace(dto.Description),
		Category:    category,
	}

	if dto.Amount != nil {
		d.Amount = *dto.Amount
	} else if receipt != nil {
		d.Amount = receipt.Amount
	} else {
		return Draft{}, internal.NewValidationFieldError("amount", "amount is a required field", internal.ErrCodeInvalidAmount)
	}
	if appErr := validation.ValidateAmount("amount", d.Amount); appErr != nil {
		return Draft{}, appErr
	}
	d.Amount = d.Amount.Round(2)

	if d.Currency == "" && receipt != nil {
		d.Currency = receipt.Currency
	}
	if d.Currency == "" {
		d.Currency = s.opts.DefaultCurrency
	}
	if appErr := validation.ValidateCurrency(d.Currency); appErr != nil {
		return Draft{}, appErr
	}

	if d.Merchant == "" && receipt != nil {
		d.Merchant = receipt.Merchant
	}

	switch {
	case strings.TrimSpace(dto.ExpenseDate) != "":
		date, appErr := validation.ParseDate("expense_date", dto.ExpenseDate)
		if appErr != nil {
			return Draft{}, appErr
		}
		d.ExpenseDate = date
	case receipt != nil && receipt.Date != nil:
		d.ExpenseDate = *receipt.Date
	default:
		d.ExpenseDate = s.now()
	}
	d.ExpenseDate = truncateDay(d.ExpenseDate)
	if appErr := validation.ValidateExpenseDate(d.ExpenseDate); appErr != nil {
		return Draft{}, appErr
	}

	if dto.DocumentID != "" {
		id := dto.DocumentID
		d.DocumentID = &id
	}
	return d, nil
}

// publishSubmitted links the document through the synchronous event. If
// the document was linked by a concurrent submission meanwhile, the new
// expense keeps no document reference.
func (s *Service) publishSubmitted(ctx context.Context, expense *Expense) {
	if s.publisher == nil {
		return
	}

	documentID := ""
	if expense.DocumentID != nil {
		documentID = *expense.DocumentID
	}

	event := events.NewExpenseSubmittedEvent(expense.ID, expense.UserID, documentID, expense.Amount, expense.Currency, expense.Category)
	if err := s.publisher.PublishSync(ctx, event); err != nil {
		if documentID == "" {
			s.logger.Error("expense submitted handlers failed", "expense_id", expense.ID, "error", err)
			return
		}

		s.logger.Warn("document link failed, dropping document reference",
			"expense_id", expense.ID,
			"document_id", documentID,
			"error", err)
		if clearErr := s.repo.ClearDocument(context.WithoutCancel(ctx), expense.ID); clearErr != nil {
			s.logger.Error("failed to clear document reference", "expense_id", expense.ID, "error", clearErr)
			return
		}
		expense.DocumentID = nil
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

// GetExpenseByID returns the expense to its owner or a manager.
func (s *Service) GetExpenseByID(ctx context.Context, user *internal.User, id int64) (*Expense, error) {
	expense, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if expense.UserID != user.ID && !user.IsManager() {
		s.logger.Warn("unauthorized access to expense", "expense_id", id, "user_id", user.ID, "expense_user_id", expense.UserID)
		return nil, internal.ErrUnauthorizedAccess
	}

	return expense, nil
}

func (s *Service) load(ctx context.Context, id int64) (*Expense, error) {
	expense, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load expense", err)
	}
	if expense == nil {
		return nil, internal.ErrExpenseNotFound
	}
	return expense, nil
}

// ListExpenses returns the caller's expenses, or everyone's for managers
// asking for scope=all.
func (s *Service) ListExpenses(ctx context.Context, user *internal.User, q ListQuery) ([]*Expense, int64, error) {
	filter, err := s.buildFilter(user, q)
	if err != nil {
		return nil, 0, err
	}

	expenses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list expenses", "error", err, "user_id", user.ID)
		return nil, 0, internal.NewInternalError("failed to list expenses", err)
	}
	if expenses == nil {
		expenses = []*Expense{}
	}
	return expenses, total, nil
}

func (s *Service) buildFilter(user *internal.User, q ListQuery) (ListFilter, error) {
	filter := ListFilter{
		Category: strings.ToLower(strings.TrimSpace(q.Category)),
		Status:   strings.TrimSpace(q.Status),
		Limit:    q.Limit,
		Offset:   q.Offset,
	}

	userID, err := s.scopeUser(user, q.Scope)
	if err != nil {
		return ListFilter{}, err
	}
	filter.UserID = userID

	if filter.Status != "" && !IsValidStatus(filter.Status) {
		return ListFilter{}, internal.NewValidationFieldError("status", "status must be one of pending_approval approved rejected", internal.ErrCodeInvalidExpenseStatus)
	}

	if q.From != "" {
		from, appErr := validation.ParseDate("from", q.From)
		if appErr != nil {
			return ListFilter{}, appErr
		}
		from = truncateDay(from)
		filter.From = &from
	}
	if q.To != "" {
		to, appErr := validation.ParseDate("to", q.To)
		if appErr != nil {
			return ListFilter{}, appErr
		}
		to = truncateDay(to)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return ListFilter{}, internal.NewValidationFieldError("to", "to must not be before from", internal.ErrCodeInvalidDate)
	}

	return filter, nil
}

// scopeUser maps the scope parameter to a user filter; nil means everyone.
func (s *Service) scopeUser(user *internal.User, scope string) (*int64, error) {
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case "", ScopeMine:
		id := user.ID
		return &id, nil
	case ScopeAll:
		if !user.IsManager() {
			return nil, internal.ErrInsufficientPerms.WithDetails(map[string]string{"scope": ScopeAll})
		}
		return nil, nil
	default:
		return nil, internal.NewValidationFieldError("scope", "scope must be mine or all", internal.ErrCodeValidationFailed)
	}
}

// UpdateExpense edits the caller's own expense while it is pending.
func (s *Service) UpdateExpense(ctx context.Context, user *internal.User, id int64, dto UpdateExpenseDTO) (*Expense, error) {
	if appErr := validation.Struct(&dto); appErr != nil {
		return nil, appErr
	}

	expense, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if expense.UserID != user.ID {
		return nil, internal.ErrUnauthorizedAccess
	}
	if !expense.IsPending() {
		return nil, internal.ErrCannotModifyExpense.WithDetails(map[string]string{"status": expense.ExpenseStatus})
	}

	if dto.Amount != nil {
		if appErr := validation.ValidateAmount("amount", *dto.Amount); appErr != nil {
			return nil, appErr
		}
		expense.Amount = dto.Amount.Round(2)
	}
	if dto.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*dto.Currency))
		if appErr := validation.ValidateCurrency(currency); appErr != nil {
			return nil, appErr
		}
		expense.Currency = currency
	}
	if dto.Merchant != nil {
		expense.Merchant = strings.TrimSpace(*dto.Merchant)
	}
	if dto.Description != nil {
		expense.Description = strings.TrimSpace(*dto.Description)
	}
	if dto.Category != nil {
		category, err := s.categories.Resolve(ctx, *dto.Category)
		if err != nil {
			return nil, err
		}
		expense.Category = category
	}
	if dto.ExpenseDate != nil {
		date, appErr := validation.ParseDate("expense_date", *dto.ExpenseDate)
		if appErr != nil {
			return nil, appErr
		}
		date = truncateDay(date)
		if appErr := validation.ValidateExpenseDate(date); appErr != nil {
			return nil, appErr
		}
		expense.ExpenseDate = date
	}
	expense.UpdatedAt = s.now().UTC()

	updated, err := s.repo.UpdatePending(ctx, expense)
	if err != nil {
		return nil, internal.NewInternalError("failed to update expense", err)
	}
	if !updated {
		return nil, internal.ErrCannotModifyExpense
	}

	s.logger.Info("expense updated", "expense_id", id, "user_id", user.ID)
	return expense, nil
}

func (s *Service) ApproveExpense(ctx context.Context, user *internal.User, id int64) (*Expense, error) {
	if !user.HasPermission(internal.PermissionApproveExpenses) {
		s.logger.Warn("approve expense denied: insufficient permissions",
			"expense_id", id,
			"manager_id", user.ID,
			"permissions", user.Permissions)
		return nil, internal.ErrInsufficientPerms
	}

	expense, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !expense.CanBeApproved() {
		s.logger.Warn("cannot approve expense in current status",
			"expense_id", id,
			"current_status", expense.ExpenseStatus)
		return nil, internal.ErrInvalidExpenseStatus
	}

	managerID := user.ID
	expense.Approve(&managerID, s.now().UTC())
	if err := s.transition(ctx, expense); err != nil {
		return nil, err
	}

	s.logger.Info("expense approved successfully",
		"expense_id", id,
		"manager_id", user.ID,
		"amount", expense.Amount.StringFixed(2))
	s.publish(ctx, events.NewExpenseApprovedEvent(id, user.ID))

	return expense, nil
}

func (s *Service) RejectExpense(ctx context.Context, user *internal.User, id int64, dto RejectExpenseDTO) (*Expense, error) {
	if !user.HasPermission(internal.PermissionRejectExpenses) {
		s.logger.Warn("reject expense denied: insufficient permissions",
			"expense_id", id,
			"manager_id", user.ID,
			"permissions", user.Permissions)
		return nil, internal.ErrInsufficientPerms
	}

	dto.Reason = strings.TrimSpace(dto.Reason)
	if appErr := validation.Struct(&dto); appErr != nil {
		return nil, appErr
	}

	expense, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !expense.CanBeRejected() {
		s.logger.Warn("cannot reject expense in current status",
			"expense_id", id,
			"current_status", expense.ExpenseStatus)
		return nil, internal.ErrInvalidExpenseStatus
	}

	expense.Reject(user.ID, dto.Reason, s.now().UTC())
	if err := s.transition(ctx, expense); err != nil {
		return nil, err
	}

	s.logger.Info("expense rejected successfully",
		"expense_id", id,
		"manager_id", user.ID,
		"reason", dto.Reason)
	s.publish(ctx, events.NewExpenseRejectedEvent(id, user.ID, dto.Reason))

	return expense, nil
}

func (s *Service) transition(ctx context.Context, expense *Expense) error {
	ok, err := s.repo.UpdateStatus(ctx, expense)
	if err != nil {
		s.logger.Error("failed to update expense status", "error", err, "expense_id", expense.ID)
		return internal.NewInternalError("failed to update expense status", err)
	}
	if !ok {
		return internal.ErrInvalidExpenseStatus
	}
	return nil
}

// GetStats summarizes the current calendar month per status.
func (s *Service) GetStats(ctx context.Context, user *internal.User, scope string) (*StatsResponse, error) {
	userID, err := s.scopeUser(user, scope)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	totals, err := s.repo.StatusTotals(ctx, userID, from, to)
	if err != nil {
		return nil, internal.NewInternalError("failed to compute expense stats", err)
	}

	stats := &StatsResponse{
		Month:       from.Format("2006-01"),
		Scope:       ScopeMine,
		TotalAmount: decimal.Zero,
		ByStatus:    make(map[string]StatusTotal, len(validStatuses)),
	}
	if userID == nil {
		stats.Scope = ScopeAll
	}
	for status := range validStatuses {
		stats.ByStatus[status] = StatusTotal{Status: status, Total: decimal.Zero}
	}
	for _, t := range totals {
		t.Total = t.Total.Round(2)
		stats.ByStatus[t.Status] = t
		stats.Count += t.Count
		stats.TotalAmount = stats.TotalAmount.Add(t.Total)
	}

	return stats, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
