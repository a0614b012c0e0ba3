// Package code реализует HTTP-обработчик выпуска реферального кода.
package code

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/medguard/platform-access/internal/errs"
	"github.com/medguard/platform-access/internal/http/response"
	"github.com/medguard/platform-access/internal/lib/sl"
	"github.com/medguard/platform-access/internal/models"
)

// Service описывает интерфейс выпуска реферальных кодов.
type Service interface {
	GetOrCreateCode(ctx context.Context, userUID string) (*models.ReferralCode, error)
}

// Handler управляет HTTP-запросами реферальных кодов.
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
// @Summary Получить реферальный код
// @Description Возвращает реферальный код пользователя, выпуская его при первом обращении.
// @Tags Referral
// @Produce json
// @Param user_id query string true "UID пользователя"
// @Success 200 {object} response.Response "Код и признак первого выпуска"
// @Failure 400 {object} response.ErrorResponse "Нет user_id"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Исчерпаны попытки генерации"
// @Router /referral/code [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.referral.code"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID := r.URL.Query().Get("user_id")
	if userUID == "" {
		log.Error("user_id query parameter missing")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("user_id is required"))
		return
	}

	result, err := h.service.GetOrCreateCode(r.Context(), userUID)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrUserNotFound):
			log.Error("user not found", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		case errors.Is(err, errs.ErrReferralExhausted):
			log.Error("referral code generation exhausted", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not generate unique referral code"))
		default:
			log.Error("failed to get referral code", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not get referral code"))
		}
		return
	}

	log.Info("referral code returned", slog.Bool("is_new", result.IsNew))
	render.JSON(w, r, response.OKWithData(result))
}
