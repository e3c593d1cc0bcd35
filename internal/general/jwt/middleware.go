package jwt

import (
	"net/http"

	"service-hub/internal/domain/user"
)

// AuthMiddlewareFunc guards an HTTP route: it verifies the bearer token,
// checks the role, and passes the claims down via the request context.
func AuthMiddlewareFunc(mgr *Manager, allowedRoles ...user.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, status := authenticate(mgr, r, allowedRoles)
			if status != 0 {
				http.Error(w, http.StatusText(status), status)
				return
			}
			next(w, r.WithContext(InjectClaims(r.Context(), claims)))
		}
	}
}

func authenticate(mgr *Manager, r *http.Request, allowed []user.Role) (*Claims, int) {
	raw, err := FromAuthorization(r)
	if err != nil {
		return nil, http.StatusUnauthorized
	}
	claims, err := mgr.ParseAndValidate(raw)
	if err != nil {
		return nil, http.StatusUnauthorized
	}
	if err := RoleAllowed(claims, allowed...); err != nil {
		return nil, http.StatusForbidden
	}
	return claims, 0
}

// RequireClaims extracts JWT claims from the request context.
func RequireClaims(r *http.Request) *Claims {
	c, _ := FromContext(r.Context())
	return c
}
