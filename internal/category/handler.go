package category

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/expenseflow/internal/transport"
)

type ServiceAPI interface {
	GetAllCategories(ctx context.Context) ([]CategoryResponse, error)
	GetCategoryByName(ctx context.Context, name string) (*CategoryResponse, error)
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

func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Service.GetAllCategories(r.Context())
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, CategoriesResponse{
		Categories: categories,
		Count:      len(categories),
	})
}

func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := h.Service.GetCategoryByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, category)
}
