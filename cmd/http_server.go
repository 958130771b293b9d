package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frahmantamala/expenseflow/api"
	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/analytics"
	analyticsPostgres "github.com/frahmantamala/expenseflow/internal/analytics/postgres"
	"github.com/frahmantamala/expenseflow/internal/auth"
	authPostgres "github.com/frahmantamala/expenseflow/internal/auth/postgres"
	"github.com/frahmantamala/expenseflow/internal/category"
	categoryPostgres "github.com/frahmantamala/expenseflow/internal/category/postgres"
	"github.com/frahmantamala/expenseflow/internal/core/database"
	"github.com/frahmantamala/expenseflow/internal/core/events"
	"github.com/frahmantamala/expenseflow/internal/document"
	documentPostgres "github.com/frahmantamala/expenseflow/internal/document/postgres"
	"github.com/frahmantamala/expenseflow/internal/expense"
	expensePostgres "github.com/frahmantamala/expenseflow/internal/expense/postgres"
	"github.com/frahmantamala/expenseflow/internal/ocr"
	"github.com/frahmantamala/expenseflow/internal/storage"
	"github.com/frahmantamala/expenseflow/internal/transport"
	"github.com/frahmantamala/expenseflow/internal/transport/rest"
	"github.com/frahmantamala/expenseflow/internal/user"
	userPostgres "github.com/frahmantamala/expenseflow/internal/user/postgres"
	"github.com/frahmantamala/expenseflow/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config      *internal.Config
	DB          *gorm.DB
	Router      *chi.Mux
	Logger      *slog.Logger
	OCRPool     *ocr.Pool
	Revocations auth.RevocationStore
}

func startHTTPServer() {
	deps, err := initializeDependencies(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "version", Version)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), deps.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.Close()
			os.Exit(1)
		}
	}

	deps.Close()
	deps.Logger.Info("Server stopped")
}

// Close releases everything the server holds, in reverse start order.
func (d *Dependencies) Close() {
	if d.OCRPool != nil {
		d.OCRPool.Shutdown()
	}
	if closer, ok := d.Revocations.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			d.Logger.Error("Revocation store close error", "error", err)
		}
	}
	if err := database.Close(d.DB); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.L()

	db, err := database.Open(cfg.Database, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			_ = database.Close(db)
			return nil, err
		}
	}

	return NewDependencies(ctx, cfg, db, lg)
}

// NewDependencies builds the full application over an open, migrated
// database. The returned Dependencies own db and close it in Close.
func NewDependencies(ctx context.Context, cfg *internal.Config, db *gorm.DB, lg *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, DB: db, Logger: lg}
	router, err := buildRouter(ctx, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Router = router
	return deps, nil
}

// buildRouter wires repositories, services and handlers over an open
// database and mounts them on a new router.
func buildRouter(ctx context.Context, deps *Dependencies) (*chi.Mux, error) {
	cfg, db, lg := deps.Config, deps.DB, deps.Logger

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB: %w", err)
	}
	readerDriver := "sqlite3"
	if cfg.Database.Driver == "postgres" {
		readerDriver = "pgx"
	}
	reader := sqlx.NewDb(sqlDB, readerDriver)

	categoryService := category.NewService(categoryPostgres.NewCategoryRepository(db), lg)
	created, err := categoryService.EnsureDefaults(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to seed default categories: %w", err)
	}
	if created > 0 {
		lg.Info("default categories created", "count", created)
	}

	if cfg.Cache.RedisURL != "" {
		store, err := auth.NewRedisRevocationStore(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		deps.Revocations = store
	} else {
		deps.Revocations = auth.NewMemoryRevocationStore()
	}

	var blobs storage.BlobStore
	if cfg.Storage.InMemory {
		blobs = storage.NewMemoryStore()
	} else {
		fileStore, err := storage.NewFileStore(cfg.Storage.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare upload directory: %w", err)
		}
		blobs = fileStore
	}

	extractor, err := ocr.NewFromConfig(cfg.OCR, cfg.Expense.DefaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to configure ocr: %w", err)
	}
	deps.OCRPool = ocr.NewPool(extractor, ocr.PoolConfig{
		MaxWorkers: cfg.OCR.MaxWorkers,
		QueueSize:  cfg.OCR.QueueSize,
		JobTimeout: cfg.OCR.Timeout,
	}, lg)

	bus := events.NewEventBus(lg)

	documentService := document.NewService(documentPostgres.NewDocumentRepository(db), blobs, deps.OCRPool, document.Options{
		MaxUploadBytes:  cfg.Storage.MaxUploadBytes,
		DefaultCurrency: cfg.Expense.DefaultCurrency,
	}, lg)
	documentService.Subscribe(bus)
	registerAuditHandlers(bus, lg)

	expenseService := expense.NewService(expensePostgres.NewExpenseRepository(db), categoryService, documentService, bus, expense.Options{
		DefaultCurrency:   cfg.Expense.DefaultCurrency,
		AutoApprovalLimit: cfg.Expense.AutoApprovalLimit(),
	}, lg)

	authService := auth.NewService(
		authPostgres.NewRepository(db),
		auth.NewJWTTokenGenerator(
			cfg.Security.JWTAccessSecret,
			cfg.Security.JWTRefreshSecret,
			cfg.Security.AccessTokenDuration,
			cfg.Security.RefreshTokenDuration,
		),
		deps.Revocations,
		auth.Options{
			DemoMode:           cfg.Security.DemoMode,
			BCryptCost:         cfg.Security.BCryptCost,
			DefaultPermissions: cfg.Security.DefaultPermissions,
		},
		lg,
	)

	analyticsService := analytics.NewService(analyticsPostgres.NewReader(reader), lg)
	userService := user.NewService(userPostgres.NewUserRepository(db))

	if _, err := api.Load(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}

	base := transport.NewBaseHandler(lg)
	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, sqlDB, rest.Handlers{
		Auth:      auth.NewHandler(base, authService),
		RBAC:      auth.NewRBACAuthorization(auth.NewPermissionChecker(), base),
		User:      user.NewHandler(base, userService),
		Category:  category.NewHandler(base, categoryService),
		Expense:   expense.NewHandler(base, expenseService),
		Document:  document.NewHandler(base, documentService),
		Analytics: analytics.NewHandler(base, analyticsService),
	}, rest.Options{
		AllowedOrigins: cfg.Server.Origins(),
		Version:        Version,
		OpenAPISpec:    api.Spec,
	}, lg)

	if cfg.Security.DemoMode {
		lg.Warn("demo mode enabled: unknown emails are provisioned on login")
	}
	return router, nil
}
