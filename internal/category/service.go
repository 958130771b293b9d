package category

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/expenseflow/internal"
	categoryDatamodel "github.com/frahmantamala/expenseflow/internal/core/datamodel/category"
)

type RepositoryAPI interface {
	GetAll(ctx context.Context) ([]*categoryDatamodel.ExpenseCategory, error)
	GetByID(ctx context.Context, id int64) (*categoryDatamodel.ExpenseCategory, error)
	GetByName(ctx context.Context, name string) (*categoryDatamodel.ExpenseCategory, error)
	Create(ctx context.Context, category *categoryDatamodel.ExpenseCategory) error
	Update(ctx context.Context, category *categoryDatamodel.ExpenseCategory) error
	Delete(ctx context.Context, id int64) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) GetAllCategories(ctx context.Context) ([]CategoryResponse, error) {
	dataCategories, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Error("failed to get categories from repository", "error", err)
		return nil, internal.NewInternalError("failed to get categories", err)
	}

	responses := make([]CategoryResponse, 0, len(dataCategories))
	for _, dataCategory := range dataCategories {
		domainCategory := FromDataModel(dataCategory)
		if domainCategory.IsActiveCategory() {
			responses = append(responses, domainCategory.ToResponse())
		}
	}

	s.logger.Debug("retrieved categories", "count", len(responses))
	return responses, nil
}

// GetCategoryByName looks up an active category, ignoring case and
// surrounding whitespace.
func (s *Service) GetCategoryByName(ctx context.Context, name string) (*CategoryResponse, error) {
	dataCategory, err := s.repo.GetByName(ctx, Normalize(name))
	if err != nil {
		s.logger.Error("failed to get category from repository", "name", name, "error", err)
		return nil, internal.NewInternalError("failed to get category", err)
	}
	if dataCategory == nil || !dataCategory.IsActive {
		return nil, internal.ErrCategoryNotFound
	}

	response := FromDataModel(dataCategory).ToResponse()
	return &response, nil
}

// Resolve maps a user supplied category to its canonical name.
func (s *Service) Resolve(ctx context.Context, name string) (string, error) {
	normalized := Normalize(name)
	if normalized == "" {
		return "", internal.NewValidationFieldError("category", "category is required", internal.ErrCodeInvalidCategory)
	}

	category, err := s.GetCategoryByName(ctx, normalized)
	if err != nil {
		if appErr, ok := internal.IsAppError(err); ok && appErr.Code == internal.ErrCodeCategoryNotFound {
			s.logger.Warn("unknown category", "name", name)
			return "", internal.ErrInvalidCategory.WithDetails(map[string]string{"category": name})
		}
		return "", err
	}
	return category.Name, nil
}

func (s *Service) IsValidCategory(ctx context.Context, name string) bool {
	_, err := s.Resolve(ctx, name)
	return err == nil
}

func (s *Service) Create(ctx context.Context, name, description string) (*Category, error) {
	category := NewCategory(name, description)
	if category.Name == "" {
		return nil, internal.NewValidationFieldError("name", "name is required", internal.ErrCodeValidationFailed)
	}

	existing, err := s.repo.GetByName(ctx, category.Name)
	if err != nil {
		return nil, internal.NewInternalError("failed to check category", err)
	}
	if existing != nil {
		return nil, internal.NewConflictError("category already exists", internal.ErrCodeValidationFailed)
	}

	data := ToDataModel(category)
	if err := s.repo.Create(ctx, data); err != nil {
		s.logger.Error("failed to create category", "name", category.Name, "error", err)
		return nil, internal.NewInternalError("failed to create category", err)
	}
	return FromDataModel(data), nil
}

// EnsureDefaults creates any missing default category and reactivates
// defaults that were deactivated. It returns how many rows changed.
func (s *Service) EnsureDefaults(ctx context.Context) (int, error) {
	changed := 0
	for _, def := range Defaults {
		existing, err := s.repo.GetByName(ctx, def.Name)
		if err != nil {
			return changed, err
		}

		if existing == nil {
			if err := s.repo.Create(ctx, ToDataModel(NewCategory(def.Name, def.Description))); err != nil {
				return changed, err
			}
			changed++
			continue
		}

		if !existing.IsActive {
			category := FromDataModel(existing)
			category.Activate()
			if err := s.repo.Update(ctx, ToDataModel(category)); err != nil {
				return changed, err
			}
			changed++
		}
	}

	if changed > 0 {
		s.logger.Info("default categories ensured", "changed", changed)
	}
	return changed, nil
}
