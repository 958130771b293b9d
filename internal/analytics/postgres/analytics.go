package postgres

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/expenseflow/internal/analytics"
)

// Reader loads aggregation rows with plain SQL through sqlx.
type Reader struct {
	db *sqlx.DB
}

func NewReader(db *sqlx.DB) analytics.RepositoryAPI {
	return &Reader{db: db}
}

const rowsQuery = `SELECT amount, currency, category, expense_status, expense_date FROM expenses`

func (r *Reader) Rows(ctx context.Context, filter analytics.Filter) ([]analytics.Row, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Status != "" {
		where = append(where, "expense_status = ?")
		args = append(args, filter.Status)
	} else {
		where = append(where, "expense_status <> ?")
		args = append(args, "rejected")
	}
	if filter.From != nil {
		where = append(where, "expense_date >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where = append(where, "expense_date <= ?")
		args = append(args, *filter.To)
	}

	query := rowsQuery
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY expense_date, id"

	rows := []analytics.Row{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return rows, nil
}
