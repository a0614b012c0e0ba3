// Package platformaccess собирает HTTP-сервис контроллера доступа:
// хранилище, кеш, клиента биллинга, сервисы и маршруты.
package platformaccess

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/medguard/platform-access/internal/billing"
	"github.com/medguard/platform-access/internal/cache"
	"github.com/medguard/platform-access/internal/config"
	"github.com/medguard/platform-access/internal/lib/jwt"
	"github.com/medguard/platform-access/internal/migrations"
	"github.com/medguard/platform-access/internal/obs"
	accessservice "github.com/medguard/platform-access/internal/services/access"
	authservice "github.com/medguard/platform-access/internal/services/auth"
	referralservice "github.com/medguard/platform-access/internal/services/referral"
	"github.com/medguard/platform-access/internal/storage"
)

// App HTTP-сервис контроллера доступа.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *storage.Storage
}

// New инициализирует зависимости и собирает App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	billingClient := billing.NewClient(cfg.BillingAPIURL, cfg.BillingSecretKey, cfg.BillingTimeout)
	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	authService := authservice.NewService(db, jwtMaker)
	accessService := accessservice.NewService(db, billingClient, cacheRedis,
		cfg.TrialLimits, cfg.BillingCacheTTL, logger)
	referralService := referralservice.NewService(db, logger)

	obs.Init()

	router := chi.NewRouter()
	RegisterRoutes(router, logger, authService, accessService, referralService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.db.DB.Close()
		return err
	}
}
