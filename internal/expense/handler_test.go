package expense_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/expense"
	"github.com/frahmantamala/expenseflow/internal/transport"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Total  int64 `json:"total"`
		Limit  int   `json:"limit"`
		Offset int   `json:"offset"`
	} `json:"meta"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

var _ = Describe("Expense Handler", func() {
	var (
		router *chi.Mux
		actor  *internal.User
	)

	do := func(method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(raw)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var env envelope
		Expect(json.Unmarshal(rec.Body.Bytes(), &env)).To(Succeed())
		return rec, env
	}

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		service := expense.NewService(newMockExpenseRepository(), stubCategories{}, stubDocuments{}, &recordingPublisher{},
			expense.Options{DefaultCurrency: "USD"}, logger)
		handler := expense.NewHandler(transport.NewBaseHandler(logger), service)

		actor = &internal.User{ID: 1, Permissions: []string{internal.PermissionCreateExpenses}}

		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(internal.ContextWithUser(r.Context(), actor)))
			})
		})
		router.Post("/expenses", handler.CreateExpense)
		router.Get("/expenses", handler.ListExpenses)
		router.Get("/expenses/stats", handler.GetStats)
		router.Get("/expenses/{id}", handler.GetExpense)
		router.Put("/expenses/{id}", handler.UpdateExpense)
		router.Patch("/expenses/{id}/approve", handler.ApproveExpense)
		router.Patch("/expenses/{id}/reject", handler.RejectExpense)
	})

	It("creates an expense and returns 201", func() {
		rec, env := do(http.MethodPost, "/expenses", map[string]interface{}{
			"amount": 12.5, "category": "meals", "expense_date": "2024-03-15",
		})
		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(env.Success).To(BeTrue())

		var exp expense.Expense
		Expect(json.Unmarshal(env.Data, &exp)).To(Succeed())
		Expect(exp.ID).To(Equal(int64(1)))
		Expect(exp.Amount.StringFixed(2)).To(Equal("12.50"))
		Expect(exp.ExpenseStatus).To(Equal(expense.ExpenseStatusPendingApproval))
	})

	It("rejects unknown fields and malformed bodies", func() {
		rec, env := do(http.MethodPost, "/expenses", map[string]interface{}{"amount": 1, "category": "meals", "tip": 3})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(env.Error.Code).To(Equal(string(internal.ErrCodeInvalidBody)))
	})

	It("lists with pagination meta", func() {
		for i := 0; i < 3; i++ {
			rec, _ := do(http.MethodPost, "/expenses", map[string]interface{}{"amount": 1, "category": "meals"})
			Expect(rec.Code).To(Equal(http.StatusCreated))
		}

		rec, env := do(http.MethodGet, "/expenses?limit=2", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(env.Meta).NotTo(BeNil())
		Expect(env.Meta.Total).To(Equal(int64(3)))
		Expect(env.Meta.Limit).To(Equal(2))

		rec, env = do(http.MethodGet, "/expenses?limit=-1", nil)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(env.Success).To(BeFalse())
	})

	It("returns 400 for non numeric ids and 404 for missing ones", func() {
		rec, env := do(http.MethodGet, "/expenses/abc", nil)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(env.Error.Code).To(Equal(string(internal.ErrCodeInvalidID)))

		rec, env = do(http.MethodGet, "/expenses/42", nil)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(env.Error.Code).To(Equal(string(internal.ErrCodeExpenseNotFound)))
	})

	It("forbids approval without permission", func() {
		rec, _ := do(http.MethodPost, "/expenses", map[string]interface{}{"amount": 1, "category": "meals"})
		Expect(rec.Code).To(Equal(http.StatusCreated))

		rec, env := do(http.MethodPatch, "/expenses/1/approve", nil)
		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(env.Error.Code).To(Equal(string(internal.ErrCodeInsufficientPerms)))
	})

	It("approves, then refuses edits with 409", func() {
		rec, _ := do(http.MethodPost, "/expenses", map[string]interface{}{"amount": 1, "category": "meals"})
		Expect(rec.Code).To(Equal(http.StatusCreated))

		actor.Permissions = append(actor.Permissions, internal.PermissionApproveExpenses)
		rec, _ = do(http.MethodPatch, "/expenses/1/approve", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec, env := do(http.MethodPut, "/expenses/1", map[string]interface{}{"amount": 2})
		Expect(rec.Code).To(Equal(http.StatusConflict))
		Expect(env.Error.Code).To(Equal(string(internal.ErrCodeCannotModifyExpense)))
	})

	It("serves monthly stats", func() {
		rec, env := do(http.MethodGet, "/expenses/stats", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var stats expense.StatsResponse
		Expect(json.Unmarshal(env.Data, &stats)).To(Succeed())
		Expect(stats.Scope).To(Equal(expense.ScopeMine))
		Expect(stats.ByStatus).To(HaveKey(expense.ExpenseStatusRejected))

		rec, _ = do(http.MethodGet, "/expenses/stats?scope=all", nil)
		Expect(rec.Code).To(Equal(http.StatusForbidden))
	})
})
