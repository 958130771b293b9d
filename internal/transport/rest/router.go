package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/analytics"
	"github.com/frahmantamala/expenseflow/internal/auth"
	"github.com/frahmantamala/expenseflow/internal/category"
	"github.com/frahmantamala/expenseflow/internal/document"
	"github.com/frahmantamala/expenseflow/internal/expense"
	"github.com/frahmantamala/expenseflow/internal/transport"
	"github.com/frahmantamala/expenseflow/internal/transport/middleware"
	"github.com/frahmantamala/expenseflow/internal/transport/swagger"
	"github.com/frahmantamala/expenseflow/internal/user"
)

const openAPIPath = "/openapi.yml"

// Handlers groups the domain handlers mounted under /api. A nil handler
// leaves its routes out.
type Handlers struct {
	Auth      *auth.Handler
	RBAC      *auth.RBACAuthorization
	User      *user.Handler
	Category  *category.Handler
	Expense   *expense.Handler
	Document  *document.Handler
	Analytics *analytics.Handler
}

type Options struct {
	AllowedOrigins []string
	Version        string
	OpenAPISpec    []byte
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, h Handlers, opts Options, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db, opts.Version)
	base := transport.NewBaseHandler(logger)

	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		base.HandleError(w, r, internal.NewNotFoundError("route not found", "ROUTE_NOT_FOUND"))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		base.HandleError(w, r, internal.NewUnsupportedError("method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed))
	})

	if len(opts.OpenAPISpec) > 0 {
		router.Get(openAPIPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(opts.OpenAPISpec)
		})
		router.Handle("/swagger/*", swagger.Handler(openAPIPath))
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/health/ready", healthHandler.readinessHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if h.Auth != nil {
			r.Route("/auth", func(sr chi.Router) {
				sr.Post("/login", h.Auth.Login)
				sr.Post("/refresh", h.Auth.RefreshToken)
				sr.With(h.Auth.AuthMiddleware).Post("/logout", h.Auth.Logout)
				if h.User != nil {
					sr.With(h.Auth.AuthMiddleware).Get("/me", h.User.GetCurrentUser)
				}
			})
		}

		// Categories are public reference data
		if h.Category != nil {
			r.Get("/categories", h.Category.GetCategories)
			r.Get("/categories/{name}", h.Category.GetCategory)
		}

		if h.Auth == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			if h.Expense != nil {
				pr.Route("/expenses", func(er chi.Router) {
					er.Get("/", h.Expense.ListExpenses)
					er.Get("/stats", h.Expense.GetStats)
					er.Get("/{id}", h.Expense.GetExpense)
					er.Put("/{id}", h.Expense.UpdateExpense)

					if h.RBAC != nil {
						er.With(h.RBAC.RequireCreateExpense()).Post("/", h.Expense.CreateExpense)
						er.With(h.RBAC.RequireApproveExpense()).Patch("/{id}/approve", h.Expense.ApproveExpense)
						er.With(h.RBAC.RequireRejectExpense()).Patch("/{id}/reject", h.Expense.RejectExpense)
					} else {
						er.Post("/", h.Expense.CreateExpense)
						er.Patch("/{id}/approve", h.Expense.ApproveExpense)
						er.Patch("/{id}/reject", h.Expense.RejectExpense)
					}
				})
			}

			if h.Document != nil {
				pr.Route("/documents", func(dr chi.Router) {
					if h.RBAC != nil {
						dr.With(h.RBAC.RequireUploadDocuments()).Post("/upload", h.Document.Upload)
					} else {
						dr.Post("/upload", h.Document.Upload)
					}
					dr.Get("/", h.Document.ListDocuments)
					dr.Get("/{id}", h.Document.GetDocument)
					dr.Get("/{id}/file", h.Document.GetDocumentFile)
					dr.Post("/{id}/process", h.Document.ProcessDocument)
				})
			}

			if h.Analytics != nil {
				pr.Get("/analytics", h.Analytics.GetAnalytics)
				pr.Get("/analytics/export", h.Analytics.Export)
			}
		})
	})
}
