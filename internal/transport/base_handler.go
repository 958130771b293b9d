package transport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"

	apperrors "github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/pkg/logger"
)

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// SuccessResponse is the envelope for every successful JSON response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Meta    interface{} `json:"meta,omitempty"`
}

// PageMeta accompanies paginated list responses.
type PageMeta struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a raw JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *BaseHandler) WriteSuccess(w http.ResponseWriter, status int, data interface{}) {
	h.WriteJSON(w, status, SuccessResponse{Success: true, Data: data})
}

func (h *BaseHandler) WritePage(w http.ResponseWriter, data interface{}, meta PageMeta) {
	h.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true, Data: data, Meta: meta})
}

// WriteError writes the failure envelope for appErr.
func (h *BaseHandler) WriteError(w http.ResponseWriter, appErr *apperrors.AppError) {
	status, body := appErr.ToHTTPResponse()
	h.WriteJSON(w, status, body)
}

// HandleError maps any error to the failure envelope. Internal causes
// are logged and never written to the client.
func (h *BaseHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.AsAppError(err)

	lg := logger.FromOr(r.Context(), h.Logger)

	if appErr.Type == apperrors.ErrorTypeInternal {
		lg.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		appErr = apperrors.NewInternalError("internal server error", nil)
	} else {
		lg.Warn("request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"code", appErr.Code,
			"status", appErr.StatusCode)
	}

	h.WriteError(w, appErr)
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func (h *BaseHandler) DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apperrors.ErrInvalidBody
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.ErrInvalidBody.WithMessage("request body is empty")
		}
		return apperrors.ErrInvalidBody.WithMessage("invalid request body: " + err.Error())
	}
	return nil
}

// ParseInt64Param reads a positive integer URL parameter.
func (h *BaseHandler) ParseInt64Param(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.ErrInvalidID
	}
	return id, nil
}

// QueryInt reads an integer query value, falling back to def when absent.
func (h *BaseHandler) QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperrors.NewValidationFieldError(name, name+" must be a non-negative integer", apperrors.ErrCodeValidationFailed)
	}
	return v, nil
}

// ExtractTokenFromHeader extracts Bearer token from Authorization header
func (h *BaseHandler) ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authHeader[7:])
}
