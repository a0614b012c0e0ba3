// Package sender содержит сборку приложения отправки писем.
package sender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/medguard/platform-access/internal/config"
	"github.com/medguard/platform-access/internal/lib/rabbitmq"
	"github.com/medguard/platform-access/internal/lib/smtp"
	senderservice "github.com/medguard/platform-access/internal/services/sender"
)

// App представляет приложение отправки уведомлений.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.Service
	logger        *slog.Logger
}

// New создает новый экземпляр приложения отправки уведомлений.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitURL, cfg.RabbitMaxRetries, cfg.RabbitRetryDelay)
	if err != nil {
		return nil, err
	}

	queues := rabbitmq.GetNotificationQueues()
	ch, err := rabbitmq.SetupChannel(conn, queues)
	if err != nil {
		conn.Close()
		return nil, err
	}

	newTransport := smtp.NewTransport(cfg, logger)
	senderService := senderservice.NewService(newTransport, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

// Run запускает потребителя очереди уведомлений.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.TrialExpiringQueue, a.senderService.SendTrialExpiringNotice)
	if err != nil {
		a.logger.Error("failed to start trial_expiring_queue consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
