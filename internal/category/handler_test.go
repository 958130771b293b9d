package category_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/expenseflow/internal/category"
	categoryPostgres "github.com/frahmantamala/expenseflow/internal/category/postgres"
	"github.com/frahmantamala/expenseflow/internal/core/database"
	"github.com/frahmantamala/expenseflow/internal/transport"
)

type categoriesEnvelope struct {
	Success bool                        `json:"success"`
	Data    category.CategoriesResponse `json:"data"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   struct {
		Type string `json:"type"`
		Code string `json:"code"`
	} `json:"error"`
}

var _ = Describe("Category Handler Integration", func() {
	var (
		db     *gorm.DB
		router *chi.Mux
	)

	BeforeEach(func() {
		var err error
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		db, err = database.OpenInMemory()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = database.Close(db) })

		repo := categoryPostgres.NewCategoryRepository(db)
		service := category.NewService(repo, slogger)
		_, err = service.EnsureDefaults(context.Background())
		Expect(err).NotTo(HaveOccurred())

		handler := category.NewHandler(transport.NewBaseHandler(slogger), service)
		router = chi.NewRouter()
		router.Get("/categories", handler.GetCategories)
		router.Get("/categories/{name}", handler.GetCategory)
	})

	It("should list the seeded categories in a success envelope", func() {
		req := httptest.NewRequest(http.MethodGet, "/categories", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("Content-Type")).To(ContainSubstring("application/json"))

		var body categoriesEnvelope
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		Expect(body.Success).To(BeTrue())
		Expect(body.Data.Categories).To(HaveLen(len(category.Defaults)))
		Expect(body.Data.Categories[0].Name).To(Equal("accommodation"))
		Expect(body.Data.Count).To(Equal(len(category.Defaults)))
	})

	It("should return one category by name, case-insensitively", func() {
		req := httptest.NewRequest(http.MethodGet, "/categories/Travel", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"name":"travel"`))
	})

	It("should return a 404 failure envelope for unknown names", func() {
		req := httptest.NewRequest(http.MethodGet, "/categories/yachts", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusNotFound))

		var body errorEnvelope
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		Expect(body.Success).To(BeFalse())
		Expect(body.Error.Code).To(Equal("CATEGORY_NOT_FOUND"))
		Expect(body.Message).To(Equal("Category not found"))
	})
})
