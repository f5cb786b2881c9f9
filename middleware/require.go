package middleware

import (
	"net/http"

	"github.com/planlane/authcore"
	"github.com/planlane/authcore/rbac"
)

// RequireCapability validates the bearer token and rejects grants whose role
// does not hold the capability. Authentication failures get 401, authorization
// failures 403.
func RequireCapability(engine *authcore.Engine, capability string) func(http.Handler) http.Handler {
	return requireGrant(engine, func(grant *authcore.Grant) error {
		return engine.Authorize(grant, capability)
	})
}

// RequireRole validates the bearer token and rejects grants ranking below min.
func RequireRole(engine *authcore.Engine, min rbac.Role) func(http.Handler) http.Handler {
	return requireGrant(engine, func(grant *authcore.Grant) error {
		return engine.AuthorizeAtLeast(grant, min)
	})
}

func requireGrant(engine *authcore.Engine, check func(*authcore.Grant) error) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			grant, ok := GrantFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err := check(grant); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
