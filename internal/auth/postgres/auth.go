package auth

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/auth"
	userDatamodel "github.com/frahmantamala/expenseflow/internal/core/datamodel/user"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// GetCredentials returns nil, nil for an unknown email.
func (r *Repository) GetCredentials(ctx context.Context, email string) (*auth.Credentials, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &auth.Credentials{
		UserID:       u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
	}, nil
}

// CreateUser inserts the user and grants the named permissions,
// creating permission rows that do not exist yet.
func (r *Repository) CreateUser(ctx context.Context, account auth.NewAccount) (int64, error) {
	u := userDatamodel.User{
		Email:        account.Email,
		Name:         account.Name,
		PasswordHash: account.PasswordHash,
		IsActive:     true,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		return GrantPermissions(tx, u.ID, account.Permissions)
	})
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

// GrantPermissions is idempotent; it is shared with the seeder.
func GrantPermissions(tx *gorm.DB, userID int64, names []string) error {
	for _, name := range names {
		perm := userDatamodel.Permission{Name: name}
		if err := tx.Where(userDatamodel.Permission{Name: name}).FirstOrCreate(&perm).Error; err != nil {
			return err
		}

		link := userDatamodel.UserPermission{UserID: userID, PermissionID: perm.ID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetUserWithPermissions returns the principal and whether the account
// is active. A missing user yields nil, false, nil.
func (r *Repository) GetUserWithPermissions(ctx context.Context, userID int64) (*internal.User, bool, error) {
	var u userDatamodel.User
	db := r.db.WithContext(ctx)
	if err := db.First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	permissions := []string{}
	err := db.Table("permissions").
		Joins("JOIN user_permissions ON user_permissions.permission_id = permissions.id").
		Where("user_permissions.user_id = ?", userID).
		Order("permissions.name ASC").
		Pluck("permissions.name", &permissions).Error
	if err != nil {
		return nil, false, err
	}

	return &internal.User{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Permissions: permissions,
	}, u.IsActive, nil
}
