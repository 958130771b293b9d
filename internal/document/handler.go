package document

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/transport"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	multipartMemory = 8 << 20
)

type ServiceAPI interface {
	Upload(ctx context.Context, userID int64, in UploadInput) (*Document, error)
	Process(ctx context.Context, userID int64, id string) (*Document, error)
	Get(ctx context.Context, userID int64, id string) (*Document, error)
	List(ctx context.Context, userID int64, limit, offset int) ([]*Document, int64, error)
	OpenFile(ctx context.Context, userID int64, id string) (*Document, io.ReadCloser, error)
	MaxUploadBytes() int64
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

// Upload accepts multipart form data with the receipt in the "file" field.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	maxBytes := h.Service.MaxUploadBytes()
	// room for the multipart envelope around the file
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartMemory)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.HandleError(w, r, internal.ErrFileTooLarge)
			return
		}
		h.HandleError(w, r, internal.ErrInvalidFile.WithCause(err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.HandleError(w, r, internal.ErrInvalidFile)
		return
	}
	defer file.Close()

	if header.Size > maxBytes {
		h.HandleError(w, r, internal.ErrFileTooLarge)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		h.HandleError(w, r, internal.ErrInvalidFile.WithCause(err))
		return
	}

	process := true
	if raw := firstNonEmpty(r.FormValue("process"), r.URL.Query().Get("process")); raw != "" {
		process, err = strconv.ParseBool(raw)
		if err != nil {
			h.HandleError(w, r, internal.NewValidationFieldError("process", "process must be true or false", internal.ErrCodeValidationFailed))
			return
		}
	}

	doc, err := h.Service.Upload(r.Context(), user.ID, UploadInput{
		Filename: header.Filename,
		Data:     data,
		Process:  process,
	})
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusCreated, doc)
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
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

	docs, total, err := h.Service.List(r.Context(), user.ID, limit, offset)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WritePage(w, DocumentsResponse{Documents: docs}, transport.PageMeta{Total: total, Limit: limit, Offset: offset})
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	doc, err := h.Service.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, doc)
}

func (h *Handler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	doc, err := h.Service.Process(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, doc)
}

// GetDocumentFile streams the stored bytes with the sniffed content type.
func (h *Handler) GetDocumentFile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	doc, rc, err := h.Service.OpenFile(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": doc.Filename}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.Logger.Warn("failed to stream document", "document_id", doc.ID, "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
