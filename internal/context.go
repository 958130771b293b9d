package internal

import "context"

type ctxKey string

const ContextUserKey ctxKey = "user"

// Permission names granted to users.
const (
	PermissionAdmin           = "admin"
	PermissionViewExpenses    = "view_expenses"
	PermissionCreateExpenses  = "create_expenses"
	PermissionViewAllExpenses = "view_all_expenses"
	PermissionApproveExpenses = "approve_expenses"
	PermissionRejectExpenses  = "reject_expenses"
	PermissionUploadDocuments = "upload_documents"
)

// User is the authenticated principal attached to a request.
type User struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

func (u *User) HasPermission(permission string) bool {
	for _, p := range u.Permissions {
		if p == permission || p == PermissionAdmin {
			return true
		}
	}
	return false
}

func (u *User) HasAnyPermission(permissions ...string) bool {
	for _, p := range permissions {
		if u.HasPermission(p) {
			return true
		}
	}
	return false
}

// IsManager reports whether the user may see and act on other users' expenses.
func (u *User) IsManager() bool {
	return u.HasAnyPermission(PermissionViewAllExpenses, PermissionApproveExpenses, PermissionRejectExpenses)
}

func UserFromContext(ctx context.Context) (*User, bool) {
	if ctx == nil {
		return nil, false
	}
	u, ok := ctx.Value(ContextUserKey).(*User)
	return u, ok && u != nil
}

func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, ContextUserKey, user)
}
