// Package track реализует HTTP-обработчик учета действий пользователя.
//
// Закрытый доступ означает отказ со статусом 403 и исходным сообщением
// определения доступа; счетчик при этом не меняется.
package track

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/medguard/platform-access/internal/errs"
	"github.com/medguard/platform-access/internal/http/middlewarectx"
	"github.com/medguard/platform-access/internal/http/response"
	"github.com/medguard/platform-access/internal/lib/sl"
	"github.com/medguard/platform-access/internal/models"
	accessservice "github.com/medguard/platform-access/internal/services/access"
)

// Request тело запроса на учет действия.
type Request struct {
	Platform string         `json:"platform" validate:"required"`
	Action   string         `json:"action" validate:"required"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Service описывает интерфейс учета действий.
type Service interface {
	TrackUsage(ctx context.Context, userUID string, platform models.Platform,
		action string, metadata map[string]any) (*models.UsageStats, error)
}

// Handler управляет HTTP-запросами учета действий.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Учесть действие пользователя
// @Description Инкрементирует счетчик использования и возвращает обновленные лимиты.
// @Tags Access
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body Request true "Платформа, действие и метаданные"
// @Success 200 {object} response.Response "Обновленные счетчики"
// @Failure 400 {object} response.ErrorResponse "Нет действия или неизвестная платформа"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Доступ закрыт"
// @Router /access/usage [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access.track"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	stats, err := h.service.TrackUsage(r.Context(), userUID, models.Platform(req.Platform), req.Action, req.Metadata)
	if err != nil {
		var denied *accessservice.DeniedError
		switch {
		case errors.As(err, &denied):
			log.Error("access denied", slog.String("reason", denied.Status.Message))
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("access denied: "+denied.Status.Message))
		case errors.Is(err, errs.ErrInvalidPlatform):
			log.Error("unknown platform", slog.String("platform", req.Platform))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("unknown platform"))
		case errors.Is(err, errs.ErrUserNotFound):
			log.Error("user not found", sl.Err(err))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		default:
			log.Error("failed to track usage", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not track usage"))
		}
		return
	}

	log.Info("usage tracked",
		slog.String("platform", req.Platform),
		slog.String("action", req.Action),
		slog.Int("usage_count", stats.UsageCount))
	render.JSON(w, r, response.OKWithData(stats))
}
