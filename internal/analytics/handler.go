package analytics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/transport"
)

type ServiceAPI interface {
	Summarize(ctx context.Context, user *internal.User, q Query) (*Report, error)
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

func queryFrom(r *http.Request) Query {
	q := r.URL.Query()
	return Query{
		From:   q.Get("from"),
		To:     q.Get("to"),
		Scope:  q.Get("scope"),
		Status: q.Get("status"),
	}
}

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	user, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, r, internal.ErrMissingToken)
		return
	}

	report, err := h.Service.Summarize(r.Context(), user, queryFrom(r))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, report)
}

// Export streams the report as a CSV file or XLSX workbook.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	user, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, r, internal.ErrMissingToken)
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatXLSX {
		h.HandleError(w, r, internal.NewValidationFieldError("format", "format must be csv or xlsx", internal.ErrCodeValidationFailed))
		return
	}

	report, err := h.Service.Summarize(r.Context(), user, queryFrom(r))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	var (
		buf         bytes.Buffer
		contentType = ContentTypeCSV
	)
	if format == FormatXLSX {
		contentType = ContentTypeXLSX
		err = WriteXLSX(&buf, report)
	} else {
		err = WriteCSV(&buf, report)
	}
	if err != nil {
		h.HandleError(w, r, internal.NewInternalError("failed to render export", err))
		return
	}

	filename := fmt.Sprintf("expense-analytics-%s.%s", report.GeneratedAt.Format("20060102"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
