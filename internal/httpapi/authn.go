package httpapi

import (
	"net/http"
	"strings"

	"authgrid.org/internal/rbac"
)

// publicPaths are reachable without a bearer token.
var publicPaths = map[string]struct{}{
	"/v1/auth/token": {},
	"/healthz":       {},
	"/readyz":        {},
	"/metrics":       {},
}

// withAuth verifies the bearer token on protected routes and installs the
// authenticated principal into the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := publicPaths[r.URL.Path]; ok || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		raw := bearerToken(r)
		if raw == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="authgrid"`)
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := a.svc.VerifyToken(raw)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="authgrid", error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		principal := rbac.NewPrincipal(claims.UserName, claims.Permissions)
		ctx := rbac.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ensurePermissions rejects the request unless the principal holds every key.
// It returns true when the caller may proceed.
func ensurePermissions(w http.ResponseWriter, r *http.Request, keys ...string) bool {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	for _, key := range keys {
		if !principal.HasPermission(key) {
			writeError(w, r, http.StatusForbidden, "insufficient permissions")
			return false
		}
	}
	return true
}

// actorFrom resolves the audit actor for a mutation: the authenticated
// principal's user name, else the X-Actor header.
func actorFrom(r *http.Request) rbac.Actor {
	if principal, ok := rbac.PrincipalFromContext(r.Context()); ok && principal.UserName != "" {
		return rbac.Actor(principal.UserName)
	}
	return rbac.Actor(strings.TrimSpace(r.Header.Get("X-Actor")))
}
