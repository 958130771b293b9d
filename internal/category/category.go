package category

import (
	"strings"
	"time"

	categoryDatamodel "github.com/frahmantamala/expenseflow/internal/core/datamodel/category"
)

type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Defaults is the fixed category set seeded at first boot.
var Defaults = []Category{
	{Name: "travel", Description: "Flights, trains and other business travel"},
	{Name: "meals", Description: "Meals and client entertainment"},
	{Name: "office", Description: "Office supplies and equipment"},
	{Name: "software", Description: "Software licenses and subscriptions"},
	{Name: "transport", Description: "Taxis, fuel, parking and local transport"},
	{Name: "accommodation", Description: "Hotels and lodging"},
	{Name: "utilities", Description: "Phone, internet and utilities"},
	{Name: "other", Description: "Anything that fits no other category"},
}

// Normalize turns user input into the canonical category slug.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (c *Category) IsActiveCategory() bool {
	return c.IsActive
}

func (c *Category) ToResponse() CategoryResponse {
	return CategoryResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		IsActive:    c.IsActive,
	}
}

func (c *Category) Activate() {
	c.IsActive = true
	c.UpdatedAt = time.Now()
}

func NewCategory(name, description string) *Category {
	now := time.Now()
	return &Category{
		Name:        Normalize(name),
		Description: description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func ToDataModel(c *Category) *categoryDatamodel.ExpenseCategory {
	return &categoryDatamodel.ExpenseCategory{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func FromDataModel(c *categoryDatamodel.ExpenseCategory) *Category {
	return &Category{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
