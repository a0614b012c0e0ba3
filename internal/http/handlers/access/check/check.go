// Package check реализует HTTP-обработчик проверки доступа к платформе.
//
// Обработчик валидирует имя платформы, извлекает uid пользователя из
// контекста и возвращает результат определения доступа: режим, остаток
// дней и счетчики использования.
package check

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/medguard/platform-access/internal/errs"
	"github.com/medguard/platform-access/internal/http/middlewarectx"
	"github.com/medguard/platform-access/internal/http/response"
	"github.com/medguard/platform-access/internal/lib/sl"
	"github.com/medguard/platform-access/internal/models"
	"github.com/medguard/platform-access/internal/obs"
)

// Service описывает интерфейс определения доступа.
type Service interface {
	DetermineAccess(ctx context.Context, userUID string, platform models.Platform) (*models.AccessStatus, error)
}

// Handler управляет HTTP-запросами проверки доступа.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Проверить доступ к платформе
// @Description Возвращает текущий режим доступа пользователя к платформе.
// @Tags Access
// @Security BearerAuth
// @Produce json
// @Param platform query string true "Идентификатор платформы"
// @Success 200 {object} response.Response "Результат определения доступа"
// @Failure 400 {object} response.ErrorResponse "Неизвестная платформа"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера или биллинга"
// @Router /access [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access.check"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	platform := models.Platform(r.URL.Query().Get("platform"))
	if platform == "" {
		log.Error("platform query parameter missing")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("platform is required"))
		return
	}

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	status, err := h.service.DetermineAccess(r.Context(), userUID, platform)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidPlatform):
			log.Error("unknown platform", slog.String("platform", string(platform)))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("unknown platform"))
		case errors.Is(err, errs.ErrUserNotFound):
			log.Error("user not found", sl.Err(err))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		default:
			log.Error("failed to determine access", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not determine access"))
		}
		return
	}

	obs.ObserveAccessDecision(string(platform), string(status.AccessType), status.CanAccess)
	log.Info("access determined",
		slog.String("platform", string(platform)),
		slog.String("access_type", string(status.AccessType)),
		slog.Bool("can_access", status.CanAccess))
	render.JSON(w, r, response.OKWithData(status))
}
