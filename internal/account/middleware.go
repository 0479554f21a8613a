package account

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const principalKey contextKey = "principal"

// Middleware authenticates requests against the token service and makes the
// resolved principal available to handlers through the request context.
type Middleware struct {
	tokens *TokenService
}

func NewMiddleware(tokens *TokenService) *Middleware {
	return &Middleware{tokens: tokens}
}

func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{errCodeInvalidToken, "authentication required"})
			return
		}

		principal, err := m.tokens.VerifyAccess(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{errCodeInvalidToken, "invalid or expired token"})
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the access token from the Authorization header or the
// accessToken cookie, in that order.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}

	if cookie, err := r.Cookie("accessToken"); err == nil {
		return cookie.Value
	}
	return ""
}

// PrincipalFrom returns the authenticated principal resolved by RequireAuth.
func PrincipalFrom(r *http.Request) (*Principal, bool) {
	principal, ok := r.Context().Value(principalKey).(*Principal)
	return principal, ok
}
