package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	expenseDatamodel "github.com/frahmantamala/expenseflow/internal/core/datamodel/expense"
	"github.com/frahmantamala/expenseflow/internal/expense"
)

// ExpenseRepository implements the expense.RepositoryAPI interface using GORM
type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) expense.RepositoryAPI {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) Create(ctx context.Context, exp *expense.Expense) error {
	dm := expense.ToDataModel(exp)
	if err := r.db.WithContext(ctx).Create(dm).Error; err != nil {
		return err
	}
	exp.ID = dm.ID
	exp.CreatedAt = dm.CreatedAt
	exp.UpdatedAt = dm.UpdatedAt
	return nil
}

// GetByID returns nil, nil when the expense does not exist.
func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*expense.Expense, error) {
	var dm expenseDatamodel.Expense
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return expense.FromDataModel(&dm), nil
}

func (r *ExpenseRepository) List(ctx context.Context, filter expense.ListFilter) ([]*expense.Expense, int64, error) {
	query := r.db.WithContext(ctx).Model(&expenseDatamodel.Expense{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Status != "" {
		query = query.Where("expense_status = ?", filter.Status)
	}
	if filter.From != nil {
		query = query.Where("expense_date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("expense_date <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*expenseDatamodel.Expense
	err := query.
		Order("expense_date DESC").
		Order("id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	return expense.FromDataModelSlice(rows), total, nil
}

func (r *ExpenseRepository) UpdatePending(ctx context.Context, exp *expense.Expense) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&expenseDatamodel.Expense{}).
		Where("id = ? AND expense_status = ?", exp.ID, expense.ExpenseStatusPendingApproval).
		Updates(map[string]interface{}{
			"amount":       exp.Amount,
			"currency":     exp.Currency,
			"merchant":     exp.Merchant,
			"description":  exp.Description,
			"category":     exp.Category,
			"expense_date": exp.ExpenseDate,
			"updated_at":   exp.UpdatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdateStatus only moves pending expenses so concurrent decisions
// cannot overwrite each other.
func (r *ExpenseRepository) UpdateStatus(ctx context.Context, exp *expense.Expense) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&expenseDatamodel.Expense{}).
		Where("id = ? AND expense_status = ?", exp.ID, expense.ExpenseStatusPendingApproval).
		Updates(map[string]interface{}{
			"expense_status":   exp.ExpenseStatus,
			"processed_by":     exp.ProcessedBy,
			"rejection_reason": exp.RejectionReason,
			"processed_at":     exp.ProcessedAt,
			"updated_at":       exp.UpdatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *ExpenseRepository) ClearDocument(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&expenseDatamodel.Expense{}).
		Where("id = ?", id).
		Update("document_id", nil).Error
}

func (r *ExpenseRepository) StatusTotals(ctx context.Context, userID *int64, from, to time.Time) ([]expense.StatusTotal, error) {
	query := r.db.WithContext(ctx).
		Model(&expenseDatamodel.Expense{}).
		Select("expense_status AS status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("expense_date >= ? AND expense_date < ?", from, to)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	var totals []expense.StatusTotal
	err := query.Group("expense_status").Order("expense_status").Scan(&totals).Error
	return totals, err
}
