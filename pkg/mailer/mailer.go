package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/coachdesk/academy-api/pkg/config"
)

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, toName, toEmail, subject, body string) error
}

// SendgridSender delivers mail through the SendGrid v3 API.
type SendgridSender struct {
	key  string
	from *sgmail.Email
}

// NewSendgridSender constructs a SendGrid-backed sender.
func NewSendgridSender(cfg config.MailConfig) *SendgridSender {
	return &SendgridSender{
		key:  cfg.SendgridKey,
		from: sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
	}
}

// Send delivers a plain-text message to a single recipient.
func (s *SendgridSender) Send(ctx context.Context, toName, toEmail, subject, body string) error {
	message := sgmail.NewSingleEmail(s.from, subject, sgmail.NewEmail(toName, toEmail), body, "")
	req := sendgrid.GetRequest(s.key, "/v3/mail/send", "https://api.sendgrid.com")
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid responded %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// ConsoleSender logs messages instead of delivering them. Used in
// development and whenever no SendGrid key is configured.
type ConsoleSender struct {
	logger *zap.Logger
}

// NewConsoleSender constructs a console sender.
func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSender{logger: logger}
}

// Send writes the message to the log.
func (s *ConsoleSender) Send(ctx context.Context, toName, toEmail, subject, body string) error {
	s.logger.Info("outgoing email",
		zap.String("to", toEmail),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

// FromConfig picks the SendGrid sender when a key is configured and
// falls back to the console sender otherwise.
func FromConfig(cfg config.MailConfig, logger *zap.Logger) Sender {
	if cfg.SendgridKey != "" {
		return NewSendgridSender(cfg)
	}
	return NewConsoleSender(logger)
}
