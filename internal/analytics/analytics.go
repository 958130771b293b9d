package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Row is the slice of an expense the aggregation needs.
type Row struct {
	Amount      decimal.Decimal `db:"amount"`
	Currency    string          `db:"currency"`
	Category    string          `db:"category"`
	Status      string          `db:"expense_status"`
	ExpenseDate time.Time       `db:"expense_date"`
}

type Bucket struct {
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type CategoryTotal struct {
	Category   string          `json:"category"`
	Count      int64           `json:"count"`
	Total      decimal.Decimal `json:"total"`
	Percentage decimal.Decimal `json:"percentage"`
}

type MonthTotal struct {
	Month string          `json:"month"`
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// Report is the aggregated view over a set of expenses. Totals add
// amounts across currencies; ByCurrency keeps them apart.
type Report struct {
	Scope       string            `json:"scope"`
	Status      string            `json:"status,omitempty"`
	From        string            `json:"from,omitempty"`
	To          string            `json:"to,omitempty"`
	Count       int64             `json:"count"`
	Total       decimal.Decimal   `json:"total"`
	Average     decimal.Decimal   `json:"average"`
	ByCategory  []CategoryTotal   `json:"by_category"`
	ByMonth     []MonthTotal      `json:"by_month"`
	ByStatus    map[string]Bucket `json:"by_status"`
	ByCurrency  map[string]Bucket `json:"by_currency"`
	GeneratedAt time.Time         `json:"generated_at"`
}

var hundred = decimal.NewFromInt(100)

// Aggregate computes totals, category and month breakdowns over rows.
func Aggregate(rows []Row) Report {
	report := Report{
		Total:      decimal.Zero,
		Average:    decimal.Zero,
		ByCategory: []CategoryTotal{},
		ByMonth:    []MonthTotal{},
		ByStatus:   map[string]Bucket{},
		ByCurrency: map[string]Bucket{},
	}

	categories := map[string]*CategoryTotal{}
	months := map[string]*MonthTotal{}

	for _, row := range rows {
		amount := row.Amount.Round(2)
		report.Count++
		report.Total = report.Total.Add(amount)

		c, ok := categories[row.Category]
		if !ok {
			c = &CategoryTotal{Category: row.Category, Total: decimal.Zero}
			categories[row.Category] = c
		}
		c.Count++
		c.Total = c.Total.Add(amount)

		key := row.ExpenseDate.UTC().Format("2006-01")
		m, ok := months[key]
		if !ok {
			m = &MonthTotal{Month: key, Total: decimal.Zero}
			months[key] = m
		}
		m.Count++
		m.Total = m.Total.Add(amount)

		report.ByStatus[row.Status] = addTo(report.ByStatus[row.Status], amount)
		report.ByCurrency[row.Currency] = addTo(report.ByCurrency[row.Currency], amount)
	}

	if report.Count > 0 {
		report.Average = report.Total.Div(decimal.NewFromInt(report.Count)).Round(2)
	}

	for _, c := range categories {
		c.Percentage = decimal.Zero
		if report.Total.IsPositive() {
			c.Percentage = c.Total.Mul(hundred).Div(report.Total).Round(2)
		}
		report.ByCategory = append(report.ByCategory, *c)
	}
	sort.Slice(report.ByCategory, func(i, j int) bool {
		a, b := report.ByCategory[i], report.ByCategory[j]
		if cmp := a.Total.Cmp(b.Total); cmp != 0 {
			return cmp > 0
		}
		return a.Category < b.Category
	})

	for _, m := range months {
		report.ByMonth = append(report.ByMonth, *m)
	}
	sort.Slice(report.ByMonth, func(i, j int) bool {
		return report.ByMonth[i].Month < report.ByMonth[j].Month
	})

	return report
}

func addTo(b Bucket, amount decimal.Decimal) Bucket {
	b.Count++
	b.Total = b.Total.Add(amount)
	return b
}
