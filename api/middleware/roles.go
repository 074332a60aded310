package middleware

import (
	"net/http"

	"github.com/angelmondragon/vowvendors-backend/api/responses"
	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vowvendors-backend/pkg/errors"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
)

// RequireRole admits requests whose token carries any of the given roles.
// It must run after Auth.
func RequireRole(logg *logger.Logger, roles ...enums.Role) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[string(role)] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[RoleFromContext(r.Context())]; !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
