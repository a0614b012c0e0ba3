// Package verify реализует HTTP-обработчик фиксации подтвержденного контакта.
//
// Проверку кода подтверждения выполняет внешний сервис верификации;
// сюда приходит только факт успешного завершения, обработчик
// проставляет соответствующий флаг на учетной записи.
package verify

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
)

// Request тело запроса подтверждения контакта.
type Request struct {
	Channel string `json:"channel" validate:"required,oneof=email phone"`
}

// Service описывает интерфейс фиксации подтверждения.
type Service interface {
	ConfirmContact(ctx context.Context, userUID, channel string) error
}

// Handler управляет HTTP-запросами подтверждения контакта.
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
// @Summary Подтвердить контакт
// @Description Фиксирует подтверждение email или телефона текущего пользователя.
// @Tags Auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body Request true "Канал подтверждения"
// @Success 200 {object} response.Response "Контакт подтвержден"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Router /verify [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.verify"
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

	if err := h.service.ConfirmContact(r.Context(), userUID, req.Channel); err != nil {
		if errors.Is(err, errs.ErrUserNotFound) {
			log.Error("user not found", sl.Err(err))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to confirm contact", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not confirm contact"))
		return
	}

	log.Info("contact confirmed", slog.String("channel", req.Channel))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"channel": req.Channel,
	}))
}
