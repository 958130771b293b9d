package expense

import (
	"context"
	"net/http"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/transport"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type ServiceAPI interface {
	CreateExpense(ctx context.Context, user *internal.User, dto CreateExpenseDTO) (*Expense, error)
	GetExpenseByID(ctx context.Context, user *internal.User, id int64) (*Expense, error)
	ListExpenses(ctx context.Context, user *internal.User, q ListQuery) ([]*Expense, int64, error)
	UpdateExpense(ctx context.Context, user *internal.User, id int64, dto UpdateExpenseDTO) (*Expense, error)
	ApproveExpense(ctx context.Context, user *internal.User, id int64) (*Expense, error)
	RejectExpense(ctx context.Context, user *internal.User, id int64, dto RejectExpenseDTO) (*Expense, error)
	GetStats(ctx context.Context, user *internal.User, scope string) (*StatsResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*internal.User, bool) {
	user, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, r, internal.ErrMissingToken)
		return nil, false
	}
	return user, true
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var dto CreateExpenseDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	expense, err := h.Service.CreateExpense(r.Context(), user, dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusCreated, expense)
}

func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	expenseID, err := h.ParseInt64Param(r, "id")
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	expense, err := h.Service.GetExpenseByID(r.Context(), user, expenseID)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, expense)
}

// ListExpenses supports category, status, from, to, scope, limit and offset.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	limit, err := h.QueryInt(r, "limit", defaultPageSize)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	offset, err := h.QueryInt(r, "offset", 0)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	query := r.URL.Query()
	expenses, total, err := h.Service.ListExpenses(r.Context(), user, ListQuery{
		Category: query.Get("category"),
		Status:   query.Get("status"),
		From:     query.Get("from"),
		To:       query.Get("to"),
		Scope:    query.Get("scope"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WritePage(w, ExpensesResponse{Expenses: expenses}, transport.PageMeta{Total: total, Limit: limit, Offset: offset})
}

func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	expenseID, err := h.ParseInt64Param(r, "id")
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	var dto UpdateExpenseDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	expense, err := h.Service.UpdateExpense(r.Context(), user, expenseID, dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, expense)
}

func (h *Handler) ApproveExpense(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	expenseID, err := h.ParseInt64Param(r, "id")
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	expense, err := h.Service.ApproveExpense(r.Context(), user, expenseID)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, expense)
}

func (h *Handler) RejectExpense(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	expenseID, err := h.ParseInt64Param(r, "id")
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	var dto RejectExpenseDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	expense, err := h.Service.RejectExpense(r.Context(), user, expenseID, dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, expense)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	stats, err := h.Service.GetStats(r.Context(), user, r.URL.Query().Get("scope"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, stats)
}
