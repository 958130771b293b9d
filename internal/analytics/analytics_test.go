package analytics_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/analytics"
	"github.com/frahmantamala/expenseflow/internal/transport"
)

func TestAnalytics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Analytics Suite")
}

func row(amount, category, status, date string) analytics.Row {
	d, err := time.Parse("2006-01-02", date)
	Expect(err).NotTo(HaveOccurred())
	return analytics.Row{
		Amount:      decimal.RequireFromString(amount),
		Currency:    "USD",
		Category:    category,
		Status:      status,
		ExpenseDate: d,
	}
}

type stubRepo struct {
	rows   []analytics.Row
	err    error
	filter analytics.Filter
}

func (s *stubRepo) Rows(_ context.Context, filter analytics.Filter) ([]analytics.Row, error) {
	s.filter = filter
	return s.rows, s.err
}

var _ = Describe("Aggregate", func() {
	It("returns an empty report for no rows", func() {
		report := analytics.Aggregate(nil)
		Expect(report.Count).To(BeZero())
		Expect(report.Total.IsZero()).To(BeTrue())
		Expect(report.Average.IsZero()).To(BeTrue())
		Expect(report.ByCategory).To(BeEmpty())
		Expect(report.ByCategory).NotTo(BeNil())
		Expect(report.ByMonth).To(BeEmpty())
	})

	It("groups by category and month", func() {
		report := analytics.Aggregate([]analytics.Row{
			row("10.00", "meals", "approved", "2024-03-02"),
			row("30.00", "travel", "pending_approval", "2024-02-10"),
			row("20.00", "meals", "approved", "2024-03-20"),
			row("40.00", "office", "approved", "2024-01-05"),
		})

		Expect(report.Count).To(Equal(int64(4)))
		Expect(report.Total.StringFixed(2)).To(Equal("100.00"))
		Expect(report.Average.StringFixed(2)).To(Equal("25.00"))

		Expect(report.ByCategory).To(HaveLen(3))
		Expect(report.ByCategory[0].Category).To(Equal("office"))
		Expect(report.ByCategory[0].Percentage.StringFixed(2)).To(Equal("40.00"))
		// meals and travel tie at 30; names break the tie
		Expect(report.ByCategory[1].Category).To(Equal("meals"))
		Expect(report.ByCategory[1].Count).To(Equal(int64(2)))
		Expect(report.ByCategory[2].Category).To(Equal("travel"))

		Expect(report.ByMonth).To(HaveLen(3))
		Expect(report.ByMonth[0].Month).To(Equal("2024-01"))
		Expect(report.ByMonth[2].Month).To(Equal("2024-03"))
		Expect(report.ByMonth[2].Total.StringFixed(2)).To(Equal("30.00"))

		Expect(report.ByStatus["approved"].Count).To(Equal(int64(3)))
		Expect(report.ByCurrency["USD"].Total.StringFixed(2)).To(Equal("100.00"))
	})

	It("reflects a newly added expense in its category total", func() {
		rows := []analytics.Row{row("5", "meals", "approved", "2024-03-02")}
		before := analytics.Aggregate(rows)

		rows = append(rows, row("7.5", "meals", "pending_approval", "2024-03-03"))
		after := analytics.Aggregate(rows)

		Expect(before.ByCategory[0].Total.StringFixed(2)).To(Equal("5.00"))
		Expect(after.ByCategory[0].Total.StringFixed(2)).To(Equal("12.50"))
	})

	It("keeps percentages at zero when every amount is zero", func() {
		report := analytics.Aggregate([]analytics.Row{row("0", "meals", "approved", "2024-03-02")})
		Expect(report.ByCategory[0].Percentage.IsZero()).To(BeTrue())
	})
})

var _ = Describe("Service", func() {
	var (
		repo     *stubRepo
		service  *analytics.Service
		employee *internal.User
		manager  *internal.User
	)

	BeforeEach(func() {
		repo = &stubRepo{rows: []analytics.Row{row("10", "meals", "approved", "2024-03-02")}}
		service = analytics.NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
		employee = &internal.User{ID: 3}
		manager = &internal.User{ID: 4, Permissions: []string{internal.PermissionViewAllExpenses}}
	})

	It("scopes to the caller by default", func() {
		report, err := service.Summarize(context.Background(), employee, analytics.Query{From: "2024-03-01", To: "2024-03-31"})
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Scope).To(Equal(analytics.ScopeMine))
		Expect(report.From).To(Equal("2024-03-01"))
		Expect(*repo.filter.UserID).To(Equal(int64(3)))
		Expect(repo.filter.Status).To(BeEmpty())
	})

	It("allows scope=all for managers only", func() {
		report, err := service.Summarize(context.Background(), manager, analytics.Query{Scope: "all"})
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Scope).To(Equal(analytics.ScopeAll))
		Expect(repo.filter.UserID).To(BeNil())

		_, err = service.Summarize(context.Background(), employee, analytics.Query{Scope: "all"})
		Expect(errors.Is(err, internal.ErrInsufficientPerms)).To(BeTrue())
	})

	It("validates filters", func() {
		_, err := service.Summarize(context.Background(), employee, analytics.Query{Status: "lost"})
		Expect(err).To(HaveOccurred())
		_, err = service.Summarize(context.Background(), employee, analytics.Query{From: "2024-04-01", To: "2024-03-01"})
		Expect(err).To(HaveOccurred())
		_, err = service.Summarize(context.Background(), employee, analytics.Query{Scope: "team"})
		Expect(err).To(HaveOccurred())
	})

	It("hides repository failures behind an internal error", func() {
		repo.err = errors.New("connection reset")
		_, err := service.Summarize(context.Background(), employee, analytics.Query{})
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Type).To(Equal(internal.ErrorTypeInternal))
	})
})

var _ = Describe("Export", func() {
	var report analytics.Report

	BeforeEach(func() {
		report = analytics.Aggregate([]analytics.Row{
			row("10", "meals", "approved", "2024-03-02"),
			row("30", "travel", "approved", "2024-02-02"),
		})
		report.Scope = analytics.ScopeMine
	})

	It("writes the three tables as CSV", func() {
		var buf bytes.Buffer
		Expect(analytics.WriteCSV(&buf, &report)).To(Succeed())

		reader := csv.NewReader(&buf)
		reader.FieldsPerRecord = -1
		records, err := reader.ReadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(ContainElement([]string{"total", "40.00"}))
		Expect(records).To(ContainElement([]string{"category", "count", "total", "percentage"}))
		Expect(records).To(ContainElement([]string{"travel", "1", "30.00", "75.00"}))
		Expect(records).To(ContainElement([]string{"2024-02", "1", "30.00"}))
	})

	It("writes a workbook with one sheet per table", func() {
		var buf bytes.Buffer
		Expect(analytics.WriteXLSX(&buf, &report)).To(Succeed())

		f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		Expect(f.GetSheetList()).To(Equal([]string{"Summary", "By Category", "By Month"}))

		rows, err := f.GetRows("By Category")
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(3))
		Expect(rows[1][0]).To(Equal("travel"))
		Expect(rows[1][2]).To(Equal("30"))
	})
})

var _ = Describe("Handler", func() {
	var handler *analytics.Handler

	serve := func(fn http.HandlerFunc, target string, user *internal.User) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if user != nil {
			req = req.WithContext(internal.ContextWithUser(req.Context(), user))
		}
		rec := httptest.NewRecorder()
		fn(rec, req)
		return rec
	}

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		repo := &stubRepo{rows: []analytics.Row{row("12.5", "meals", "approved", "2024-03-02")}}
		handler = analytics.NewHandler(transport.NewBaseHandler(logger), analytics.NewService(repo, logger))
	})

	It("returns the report in the success envelope", func() {
		rec := serve(handler.GetAnalytics, "/api/analytics", &internal.User{ID: 1})
		Expect(rec.Code).To(Equal(http.StatusOK))

		var body struct {
			Success bool `json:"success"`
			Data    struct {
				Count      int64 `json:"count"`
				ByCategory []struct {
					Category string `json:"category"`
				} `json:"by_category"`
			} `json:"data"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Success).To(BeTrue())
		Expect(body.Data.Count).To(Equal(int64(1)))
		Expect(body.Data.ByCategory[0].Category).To(Equal("meals"))
	})

	It("requires an authenticated user", func() {
		rec := serve(handler.GetAnalytics, "/api/analytics", nil)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("exports csv by default and xlsx on request", func() {
		rec := serve(handler.Export, "/api/analytics/export", &internal.User{ID: 1})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(Equal(analytics.ContentTypeCSV))
		Expect(rec.Header().Get("Content-Disposition")).To(ContainSubstring(".csv"))

		rec = serve(handler.Export, "/api/analytics/export?format=xlsx", &internal.User{ID: 1})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(Equal(analytics.ContentTypeXLSX))
		Expect(rec.Body.Bytes()[:2]).To(Equal([]byte("PK")))
	})

	It("rejects unknown formats", func() {
		rec := serve(handler.Export, "/api/analytics/export?format=pdf", &internal.User{ID: 1})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})
