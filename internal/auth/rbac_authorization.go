package auth

import (
	"net/http"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/transport"
)

type RBACAuthorization struct {
	*transport.BaseHandler
	checker PermissionChecker
}

func NewRBACAuthorization(checker PermissionChecker, base *transport.BaseHandler) *RBACAuthorization {
	return &RBACAuthorization{
		BaseHandler: base,
		checker:     checker,
	}
}

// Middleware requires the named permission. It must run after AuthMiddleware.
func (ra *RBACAuthorization) Middleware(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := internal.UserFromContext(r.Context())
			if !ok {
				ra.HandleError(w, r, internal.ErrMissingToken)
				return
			}

			allowed, err := ra.checker.HasPermission(r.Context(), user, permission)
			if err != nil {
				ra.HandleError(w, r, internal.NewInternalError("authorization check failed", err))
				return
			}

			if !allowed {
				ra.Logger.WarnContext(r.Context(), "access denied: insufficient permissions",
					"user_id", user.ID,
					"required_permission", permission,
					"user_permissions", user.Permissions)
				ra.HandleError(w, r, internal.ErrInsufficientPerms.WithDetails(map[string]string{
					"required_permission": permission,
				}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (ra *RBACAuthorization) RequireApproveExpense() func(http.Handler) http.Handler {
	return ra.Middleware(internal.PermissionApproveExpenses)
}

func (ra *RBACAuthorization) RequireRejectExpense() func(http.Handler) http.Handler {
	return ra.Middleware(internal.PermissionRejectExpenses)
}

func (ra *RBACAuthorization) RequireUploadDocuments() func(http.Handler) http.Handler {
	return ra.Middleware(internal.PermissionUploadDocuments)
}

func (ra *RBACAuthorization) RequireCreateExpense() func(http.Handler) http.Handler {
	return ra.Middleware(internal.PermissionCreateExpenses)
}
