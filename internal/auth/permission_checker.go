package auth

import (
	"context"

	"github.com/frahmantamala/expenseflow/internal"
)

type PermissionChecker interface {
	HasPermission(ctx context.Context, user *internal.User, permission string) (bool, error)
	CanApproveExpenses(user *internal.User) bool
	CanRejectExpenses(user *internal.User) bool
	CanViewAllExpenses(user *internal.User) bool
	CanAccessResource(user *internal.User, ownerID int64) bool
	IsManager(user *internal.User) bool
	IsAdmin(user *internal.User) bool
}

// DefaultPermissionChecker decides from the permissions loaded with the
// user; admin implies every permission.
type DefaultPermissionChecker struct{}

func NewPermissionChecker() *DefaultPermissionChecker {
	return &DefaultPermissionChecker{}
}

func (c *DefaultPermissionChecker) HasPermission(_ context.Context, user *internal.User, permission string) (bool, error) {
	if user == nil {
		return false, nil
	}
	return user.HasPermission(permission), nil
}

func (c *DefaultPermissionChecker) CanApproveExpenses(user *internal.User) bool {
	return user != nil && user.HasPermission(internal.PermissionApproveExpenses)
}

func (c *DefaultPermissionChecker) CanRejectExpenses(user *internal.User) bool {
	return user != nil && user.HasPermission(internal.PermissionRejectExpenses)
}

func (c *DefaultPermissionChecker) CanViewAllExpenses(user *internal.User) bool {
	return user != nil && user.IsManager()
}

// CanAccessResource allows owners and managers.
func (c *DefaultPermissionChecker) CanAccessResource(user *internal.User, ownerID int64) bool {
	if user == nil {
		return false
	}
	return user.ID == ownerID || user.IsManager()
}

func (c *DefaultPermissionChecker) IsManager(user *internal.User) bool {
	return user != nil && user.IsManager()
}

func (c *DefaultPermissionChecker) IsAdmin(user *internal.User) bool {
	return user != nil && user.HasPermission(internal.PermissionAdmin)
}
