// Package sender отправляет письма-напоминания об истекающих триалах.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/medguard/platform-access/internal/lib/sl"
	"github.com/medguard/platform-access/internal/lib/smtp"
	"github.com/medguard/platform-access/internal/models"
)

// Service потребляет сообщения очереди уведомлений и отправляет письма.
type Service struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// NewService создает Service.
func NewService(transport smtp.TransportInterface, log *slog.Logger) *Service {
	return &Service{
		transport: transport,
		log:       log,
	}
}

// SendTrialExpiringNotice отправляет пользователю письмо о том,
// что пробный период платформы заканчивается сегодня.
func (s *Service) SendTrialExpiringNotice(body []byte) error {
	var info models.TrialExpiryInfo
	if err := json.Unmarshal(body, &info); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	to := []string{info.Email}
	subject := fmt.Sprintf("Your %s trial ends today", info.Platform)
	bodyText := fmt.Sprintf(
		"Hi %s,\n\nYour free trial of %s ends today (%s).\n\nUpgrade to a paid plan to keep full access.",
		info.Username, info.Platform, info.TrialEndDate.Format("2006-01-02"))

	return s.sendEmail(to, subject, bodyText)
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", sl.Err(err))
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write message", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}

	s.log.Info("trial expiry notice sent", slog.String("to", strings.Join(to, ";")))
	return client.Quit()
}
