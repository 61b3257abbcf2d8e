package auth

import (
	"net/http"
	"slices"

	"github.com/keepswell/keepswell-api/internal/identity"
)

type Scope string

const (
	ScopeJournalsRead  Scope = "journals:read"
	ScopePromptsSelect Scope = "prompts:select"
	ScopeSendsWrite    Scope = "sends:write"
	ScopeWildcard      Scope = "*"
)

// RequireScope limits service principals to routes their key is scoped for.
// End users pass through; journal ownership is checked by the services.
func RequireScope(scope Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if identity.UserFromContext(ctx) != nil {
				next.ServeHTTP(w, r)
				return
			}

			sk := identity.ServiceFromContext(ctx)
			if sk == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !slices.Contains(sk.Scopes, string(scope)) && !slices.Contains(sk.Scopes, string(ScopeWildcard)) {
				writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// UserOnly rejects service principals; owner-only routes use it.
func UserOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity.UserFromContext(r.Context()) == nil {
			writeError(w, http.StatusForbidden, "user authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
