// Package middlewarectx содержит HTTP middleware: проверку JWT с
// прокладкой identity в контекст запроса и ограничение частоты запросов.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	libjwt "github.com/medguard/platform-access/internal/lib/jwt"
	"github.com/medguard/platform-access/internal/http/response"
	"github.com/medguard/platform-access/internal/lib/sl"
)

// Key тип ключей контекста HTTP-запроса.
type Key string

const (
	// User ключ имени пользователя в контексте.
	User Key = "username"
	// UserUID ключ uid пользователя в контексте.
	UserUID Key = "user_uid"
	// Role ключ роли пользователя в контексте.
	Role Key = "role"
)

// TokenValidator описывает сервис проверки JWT.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*libjwt.CustomClaims, error)
}

// JWTMiddleware проверяет токен из заголовка Authorization.
// При успехе кладет username, uid и роль в контекст запроса,
// иначе отвечает 401 Unauthorized.
func JWTMiddleware(authService TokenValidator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"
			authHeader := r.Header.Get("Authorization")

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := authService.ValidateToken(r.Context(), tokenStr)
			if err != nil {
				log.Error("invalid or expired token", sl.Err(err))
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}
			ctx := context.WithValue(r.Context(), User, claims.Username)
			ctx = context.WithValue(ctx, UserUID, claims.UserUID)
			ctx = context.WithValue(ctx, Role, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
