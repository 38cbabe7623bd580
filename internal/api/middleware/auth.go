package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"canditrack/internal/common"
	"canditrack/internal/common/security"
	"canditrack/internal/domain/model"

	"github.com/go-chi/jwtauth/v5"
)

type contextKey string

const (
	UserIDCtxKey   contextKey = "userID"
	UserRoleCtxKey contextKey = "userRole"
)

// Authenticator admits requests carrying a valid operator token verified by
// jwtauth.Verifier, and puts the operator's id and role in the context.
func Authenticator(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())
			switch {
			case errors.Is(err, jwtauth.ErrNoTokenFound), err == nil && token == nil:
				common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
				return
			case errors.Is(err, jwtauth.ErrExpired):
				logger.Info("operator token expired", "path", r.URL.Path)
				common.RespondWithError(w, http.StatusUnauthorized, "Token expired")
				return
			case err != nil:
				logger.Warn("operator token rejected", "path", r.URL.Path, "err", err)
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			userID, err := security.GetUserIDFromClaims(claims)
			if err != nil {
				logger.Warn("operator token without user id", "path", r.URL.Path, "err", err)
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims")
				return
			}
			role, err := security.GetUserRoleFromClaims(claims)
			if err != nil || !model.IsValidRole(role) {
				logger.Warn("operator token with unknown role", "path", r.URL.Path, "user_id", userID, "role", role)
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDCtxKey, userID)
			ctx = context.WithValue(ctx, UserRoleCtxKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly must run after Authenticator.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if role, _ := GetUserRoleFromContext(r.Context()); role != model.RoleAdmin {
			common.RespondWithError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDCtxKey).(string)
	return userID, ok
}

func GetUserRoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(UserRoleCtxKey).(string)
	return role, ok
}
