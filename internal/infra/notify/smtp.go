package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/dmarykin/authcore/internal/core/port"
	"github.com/dmarykin/authcore/internal/infra/config"
	"github.com/dmarykin/authcore/internal/infra/logger"
)

// SMTPNotifier delivers messages over plain SMTP with optional auth.
type SMTPNotifier struct {
	cfg    config.SMTPSettings
	logger *zap.Logger
}

// NewSMTPNotifier constructs an SMTP-backed notifier.
func NewSMTPNotifier(cfg config.SMTPSettings, log *zap.Logger) (*SMTPNotifier, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp notifier: host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("smtp notifier: from address is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &SMTPNotifier{cfg: cfg, logger: log}, nil
}

// Deliver sends a single plain-text message. The send itself is not
// interruptible mid-flight; the context is checked before dialing.
func (n *SMTPNotifier) Deliver(ctx context.Context, destination, subject, body string) error {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return fmt.Errorf("destination is required")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := strings.Join([]string{
		"From: " + n.cfg.From,
		"To: " + destination,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, n.cfg.From, []string{destination}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	n.logger.Debug("mail delivered",
		zap.String("destination", logger.MaskEmail(destination)),
		zap.String("subject", subject),
	)

	return nil
}

var _ port.Notifier = (*SMTPNotifier)(nil)
