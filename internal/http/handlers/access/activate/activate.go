// Package activate реализует HTTP-обработчик активации пробного периода.
package activate

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
)

// Request тело запроса на активацию.
type Request struct {
	Platform string `json:"platform" validate:"required"`
}

// Service описывает интерфейс активации пробного периода.
type Service interface {
	ActivateTrial(ctx context.Context, userUID string, platform models.Platform) (*models.TrialWindow, error)
}

// Handler управляет HTTP-запросами активации пробного периода.
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
// @Summary Активировать пробный период
// @Description Запускает 14-дневный триал платформы для текущего пользователя.
// @Tags Access
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body Request true "Платформа"
// @Success 200 {object} response.Response "Окно пробного периода"
// @Failure 400 {object} response.ErrorResponse "Неизвестная платформа или триал уже использован"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Контакты не подтверждены"
// @Router /access/trial [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access.activate"
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

	window, err := h.service.ActivateTrial(r.Context(), userUID, models.Platform(req.Platform))
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidPlatform):
			log.Error("unknown platform", slog.String("platform", req.Platform))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("unknown platform"))
		case errors.Is(err, errs.ErrEmailNotVerified):
			log.Error("email not verified")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("email not verified"))
		case errors.Is(err, errs.ErrPhoneNotVerified):
			log.Error("phone not verified")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("phone not verified"))
		case errors.Is(err, errs.ErrTrialAlreadyActive):
			log.Error("trial already active")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("trial already active"))
		case errors.Is(err, errs.ErrTrialAlreadyUsed):
			log.Error("trial already used")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("trial already used"))
		case errors.Is(err, errs.ErrUserNotFound):
			log.Error("user not found", sl.Err(err))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		default:
			log.Error("failed to activate trial", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not activate trial"))
		}
		return
	}

	log.Info("trial activated", slog.String("platform", req.Platform))
	render.JSON(w, r, response.OKWithData(window))
}
