package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ghclone/ghclone/internal/models"
	"github.com/ghclone/ghclone/internal/service"
	"github.com/sirupsen/logrus"
)

type contextKey string

const claimsKey contextKey = "claims"

// Authenticator resolves a bearer token to the session it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*service.Claims, error)
}

type AuthMiddleware struct {
	auth   Authenticator
	logger *logrus.Logger
}

func NewAuthMiddleware(auth Authenticator, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		auth:   auth,
		logger: logger,
	}
}

// ClaimsFromContext returns the claims stored by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*service.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*service.Claims)
	return claims, ok
}

// WithClaims stores claims in ctx the way RequireAuth does.
func WithClaims(ctx context.Context, claims *service.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Anything else yields "".
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			respondWithMessage(w, http.StatusUnauthorized, "Access denied. No token provided.")
			return
		}

		claims, err := m.auth.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrUnauthorized):
				respondWithMessage(w, http.StatusUnauthorized, "Access denied. No token provided.")
			case errors.Is(err, models.ErrForbidden):
				m.logger.WithError(err).Debug("Token verification failed")
				respondWithMessage(w, http.StatusForbidden, "Invalid or expired token.")
			case errors.Is(err, models.ErrUnavailable):
				m.logger.WithError(err).Error("Token denylist unavailable")
				respondWithMessage(w, http.StatusServiceUnavailable, "Service temporarily unavailable.")
			default:
				m.logger.WithError(err).Error("Token verification error")
				respondWithMessage(w, http.StatusInternalServerError, "Internal server error.")
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func respondWithMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
