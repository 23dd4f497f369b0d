package middleware

import (
	"context"
	"net/http"
	"strings"

	"isp-portal/pkg/utils"

	"go.uber.org/zap"
)

// Authenticator resolves a bearer token into the operator behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (utils.Principal, error)
}

// Auth validates the Bearer JWT and its backing session, then stores the
// principal in the request context.
func Auth(auth Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.ResponseUnauthorized(w, "Missing authorization token")
				return
			}

			scheme, token, found := strings.Cut(authHeader, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				utils.ResponseUnauthorized(w, "Invalid token format. Use: Bearer <token>")
				return
			}

			principal, err := auth.Authenticate(r.Context(), strings.TrimSpace(token))
			if err != nil {
				logger.Warn("Rejected bearer token",
					zap.String("path", r.URL.Path),
					zap.String("ip", clientIP(r)),
					zap.Error(err),
				)
				utils.ResponseUnauthorized(w, "Invalid or expired session")
				return
			}

			ctx := utils.SetPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets the request through when the principal holds one of roles.
// It must run after Auth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := utils.GetPrincipal(r.Context())
			if !ok {
				utils.ResponseUnauthorized(w, "Authentication required")
				return
			}

			for _, role := range roles {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			utils.ResponseForbidden(w, "Insufficient role for this operation")
		})
	}
}
