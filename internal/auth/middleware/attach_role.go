package auth

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/mind-engage/quizdesk/internal/db"
	"github.com/mind-engage/quizdesk/internal/rbac"
)

// AttachRoleFromDB replaces the token's role with the stored one so role
// changes apply before the token expires. Deleted users are rejected unless
// allowClaimFallback is set (offline mode).
func AttachRoleFromDB(dbh *sqlx.DB, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)
			claimRole := rbac.RoleFromContext(ctx)

			var role string
			err := dbh.GetContext(ctx, &role, `SELECT role FROM users WHERE id=$1`, sub)
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case db.IsNoRows(err) && allowClaimFallback && claimRole != "":
				next.ServeHTTP(w, r)
			default:
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
