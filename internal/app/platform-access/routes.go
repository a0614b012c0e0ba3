// Package platformaccess предоставляет маршруты для основного приложения.
package platformaccess

import (
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/medguard/platform-access/internal/http/handlers/access/activate"
	"github.com/medguard/platform-access/internal/http/handlers/access/check"
	"github.com/medguard/platform-access/internal/http/handlers/access/grantbeta"
	"github.com/medguard/platform-access/internal/http/handlers/access/track"
	"github.com/medguard/platform-access/internal/http/handlers/auth/login"
	"github.com/medguard/platform-access/internal/http/handlers/auth/register"
	"github.com/medguard/platform-access/internal/http/handlers/auth/verify"
	"github.com/medguard/platform-access/internal/http/handlers/health"
	"github.com/medguard/platform-access/internal/http/handlers/referral/code"
	"github.com/medguard/platform-access/internal/http/middlewarectx"
	"github.com/medguard/platform-access/internal/obs"
	accessservice "github.com/medguard/platform-access/internal/services/access"
	authservice "github.com/medguard/platform-access/internal/services/auth"
	referralservice "github.com/medguard/platform-access/internal/services/referral"

	"log/slog"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, authService *authservice.Service, accessService *accessservice.Service, referralService *referralservice.Service) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		obs.Instrument,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, authService).ServeHTTP)
		r.Post("/login", login.New(logger, authService).ServeHTTP)
		r.Get("/health", health.New(logger).ServeHTTP)
		r.Get("/referral/code", code.New(logger, referralService).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(authService, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/verify", verify.New(logger, authService).ServeHTTP)
			r.Get("/access", check.New(logger, accessService).ServeHTTP)
			r.Post("/access/trial", activate.New(logger, accessService).ServeHTTP)
			r.Post("/access/usage", track.New(logger, accessService).ServeHTTP)
			r.Post("/access/beta", grantbeta.New(logger, accessService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Документация Swagger
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
