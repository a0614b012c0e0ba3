// Package grantbeta реализует административный HTTP-обработчик выдачи
// бета-доступа. Право на операцию определяет роль admin из токена,
// проверка выполняется один раз на границе.
package grantbeta

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

// Request тело запроса на выдачу бета-доступа.
type Request struct {
	UserEmail string `json:"user_email" validate:"required,email"`
	BetaDays  int    `json:"beta_days,omitempty" validate:"omitempty,min=1,max=365"`
}

// Service описывает интерфейс выдачи бета-доступа.
type Service interface {
	GrantBeta(ctx context.Context, targetEmail string, betaDays int) (*models.BetaGrant, error)
}

// Handler управляет HTTP-запросами выдачи бета-доступа.
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
// @Summary Выдать бета-доступ
// @Description Выдает пользователю бета-доступ на указанное число дней (по умолчанию 60).
// @Tags Access
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body Request true "Email пользователя и срок"
// @Success 200 {object} response.Response "Параметры выданного доступа"
// @Failure 400 {object} response.ErrorResponse "Плохой email, срок или повторная выдача"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Нет роли admin"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Router /access/beta [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access.grantbeta"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	role, _ := r.Context().Value(middlewarectx.Role).(string)
	if role != "admin" {
		log.Error("admin role required", slog.String("role", role))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("admin role required"))
		return
	}

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

	grant, err := h.service.GrantBeta(r.Context(), req.UserEmail, req.BetaDays)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidBetaDays):
			log.Error("invalid beta days", slog.Int("days", req.BetaDays))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("beta days must be between 1 and 365"))
		case errors.Is(err, errs.ErrUserNotFound):
			log.Error("target user not found", slog.String("email", req.UserEmail))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		case errors.Is(err, errs.ErrAlreadyBetaTester):
			log.Error("already beta tester", slog.String("email", req.UserEmail))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("user is already a beta tester"))
		default:
			log.Error("failed to grant beta access", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not grant beta access"))
		}
		return
	}

	log.Info("beta access granted",
		slog.String("email", grant.Email), slog.Int("days", grant.BetaDays))
	render.JSON(w, r, response.OKWithData(grant))
}
