// Package scheduler реализует периодические задачи контроллера доступа:
// рассылку напоминаний об истекающих сегодня триалах и подтягивание
// хранимого trial_status для уже истекших окон.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/medguard/platform-access/internal/lib/rabbitmq"
	"github.com/medguard/platform-access/internal/lib/sl"
	"github.com/medguard/platform-access/internal/models"
)

// Repository определяет методы хранилища, нужные планировщику.
type Repository interface {
	// FindTrialsExpiringToday возвращает активные триалы с окном,
	// заканчивающимся сегодня.
	FindTrialsExpiringToday(ctx context.Context) ([]*models.TrialExpiryInfo, error)
	// SweepExpiredTrials переводит просроченные триалы в expired.
	SweepExpiredTrials(ctx context.Context) (int64, error)
}

// Service реализует задачи планировщика.
type Service struct {
	repo Repository
	log  *slog.Logger
}

// NewService создает Service.
func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// NotifyExpiringTrials раз в сутки публикует напоминания об истекающих
// сегодня триалах в очередь уведомлений. Первый проход — сразу при старте.
func (s *Service) NotifyExpiringTrials(ctx context.Context, channel *amqp.Channel) {
	s.runNotifyExpiringTrials(ctx, channel)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runNotifyExpiringTrials(ctx, channel)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) runNotifyExpiringTrials(ctx context.Context, channel *amqp.Channel) {
	s.log.Info("looking for trials expiring today")
	infos, err := s.repo.FindTrialsExpiringToday(ctx)
	if err != nil {
		s.log.Error("failed to find expiring trials", sl.Err(err))
		return
	}
	if len(infos) == 0 {
		s.log.Info("no expiring trials found")
		return
	}
	s.log.Info("found expiring trials", slog.Int("count", len(infos)))
	for _, info := range infos {
		err = rabbitmq.PublishMessage(channel, rabbitmq.NotificationsExchange,
			rabbitmq.TrialExpiringRoutingKey, info)
		if err != nil {
			s.log.Error("failed to publish message", sl.Err(err))
		}
	}
}

// SweepExpiredTrials раз в сутки приводит хранимый trial_status
// в соответствие с датами. На определение доступа это не влияет:
// истечение и так перепроверяется на каждом чтении.
func (s *Service) SweepExpiredTrials(ctx context.Context) {
	s.runSweepExpiredTrials(ctx)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSweepExpiredTrials(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) runSweepExpiredTrials(ctx context.Context) {
	count, err := s.repo.SweepExpiredTrials(ctx)
	if err != nil {
		s.log.Error("failed to sweep expired trials", sl.Err(err))
		return
	}
	if count > 0 {
		s.log.Info("marked trials expired", slog.Int64("count", count))
	}
}
