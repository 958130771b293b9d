package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/auth"
	authPostgres "github.com/frahmantamala/expenseflow/internal/auth/postgres"
	"github.com/frahmantamala/expenseflow/internal/category"
	categoryPostgres "github.com/frahmantamala/expenseflow/internal/category/postgres"
	"github.com/frahmantamala/expenseflow/internal/core/database"
	expenseDatamodel "github.com/frahmantamala/expenseflow/internal/core/datamodel/expense"
	"github.com/frahmantamala/expenseflow/internal/expense"
	"github.com/frahmantamala/expenseflow/pkg/logger"
)

const seedPassword = "password"

type seedUser struct {
	Email       string
	Name        string
	Permissions []string
}

var seedUsers = []seedUser{
	{
		Email:       "admin@expenseflow.local",
		Name:        "Admin",
		Permissions: []string{internal.PermissionAdmin},
	},
	{
		Email: "manager@expenseflow.local",
		Name:  "Manager",
		Permissions: []string{
			internal.PermissionViewExpenses,
			internal.PermissionCreateExpenses,
			internal.PermissionUploadDocuments,
			internal.PermissionViewAllExpenses,
			internal.PermissionApproveExpenses,
			internal.PermissionRejectExpenses,
		},
	},
	{
		Email: "employee@expenseflow.local",
		Name:  "Employee",
		Permissions: []string{
			internal.PermissionViewExpenses,
			internal.PermissionCreateExpenses,
			internal.PermissionUploadDocuments,
		},
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with default categories, demo users and sample expenses for development.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		if cfg.Database.IsInMemory() {
			log.Fatalf("refusing to seed an in-memory database; set database.source to a file or postgres DSN")
		}

		lg := logger.L()
		db, err := database.Open(cfg.Database, lg)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer database.Close(db)

		if err := database.AutoMigrate(db); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}

		ctx := context.Background()
		if clearData {
			if err := clearSeedData(db); err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			fmt.Println("Cleared documents, expenses and users")
		}

		created, err := category.NewService(categoryPostgres.NewCategoryRepository(db), lg).EnsureDefaults(ctx)
		if err != nil {
			log.Fatalf("failed to seed categories: %v", err)
		}
		fmt.Printf("Seeded categories (%d changed)\n", created)

		hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), cfg.Security.BCryptCost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}

		repo := authPostgres.NewRepository(db)
		userIDs := make(map[string]int64, len(seedUsers))
		for _, u := range seedUsers {
			id, err := ensureSeedUser(ctx, db, repo, u, string(hash))
			if err != nil {
				log.Fatalf("failed to seed user %s: %v", u.Email, err)
			}
			userIDs[u.Email] = id
			fmt.Println("Seeded user:", u.Email)
		}

		n, err := seedExpenses(db, userIDs["employee@expenseflow.local"], userIDs["manager@expenseflow.local"], cfg.Expense.DefaultCurrency)
		if err != nil {
			log.Fatalf("failed to seed expenses: %v", err)
		}
		fmt.Printf("Seeded %d sample expenses\n", n)
		fmt.Printf("Demo password for all users: %s\n", seedPassword)
	},
}

func clearSeedData(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"documents", "expenses", "user_permissions", "users"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// ensureSeedUser creates the user or, if it exists, only tops up its
// permissions.
func ensureSeedUser(ctx context.Context, db *gorm.DB, repo *authPostgres.Repository, u seedUser, hash string) (int64, error) {
	existing, err := repo.GetCredentials(ctx, u.Email)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.UserID, authPostgres.GrantPermissions(db.WithContext(ctx), existing.UserID, u.Permissions)
	}

	return repo.CreateUser(ctx, auth.NewAccount{
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: hash,
		Permissions:  u.Permissions,
	})
}

// seedExpenses adds a spread of expenses over the last three months,
// once per employee.
func seedExpenses(db *gorm.DB, employeeID, managerID int64, currency string) (int, error) {
	var count int64
	if err := db.Model(&expenseDatamodel.Expense{}).Where("user_id = ?", employeeID).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	samples := []struct {
		daysAgo     int
		amount      string
		category    string
		merchant    string
		description string
		status      string
	}{
		{2, "18.40", "meals", "Corner Bistro", "Team lunch", expense.ExpenseStatusPendingApproval},
		{5, "245.00", "travel", "City Rail", "Client visit tickets", expense.ExpenseStatusPendingApproval},
		{12, "59.99", "software", "Cloud Tools", "Monthly subscription", expense.ExpenseStatusApproved},
		{33, "120.00", "office", "Paper & Co", "Printer cartridges", expense.ExpenseStatusApproved},
		{47, "980.00", "office", "Tech Store", "Monitor", expense.ExpenseStatusRejected},
		{70, "36.75", "transport", "Metro Cabs", "Airport taxi", expense.ExpenseStatusApproved},
	}

	rows := make([]expenseDatamodel.Expense, 0, len(samples))
	for _, s := range samples {
		date := today.AddDate(0, 0, -s.daysAgo)
		row := expenseDatamodel.Expense{
			UserID:        employeeID,
			Amount:        decimal.RequireFromString(s.amount),
			Currency:      currency,
			Merchant:      s.merchant,
			Description:   s.description,
			Category:      s.category,
			ExpenseStatus: s.status,
			ExpenseDate:   date,
			SubmittedAt:   date.Add(9 * time.Hour),
		}
		if s.status != expense.ExpenseStatusPendingApproval {
			processedAt := row.SubmittedAt.Add(24 * time.Hour)
			processor := managerID
			row.ProcessedAt = &processedAt
			row.ProcessedBy = &processor
		}
		if s.status == expense.ExpenseStatusRejected {
			reason := "Needs prior approval"
			row.RejectionReason = &reason
		}
		rows = append(rows, row)
	}

	if err := db.Create(&rows).Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}
