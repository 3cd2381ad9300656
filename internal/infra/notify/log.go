package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/dmarykin/authcore/internal/core/port"
	"github.com/dmarykin/authcore/internal/infra/logger"
)

// LogNotifier writes deliveries to the log instead of sending them. Used in
// development environments without an SMTP relay. The body is logged verbatim
// so the recovery code is readable during local testing.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a logging notifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{logger: log}
}

// Deliver logs the message and reports success.
func (n *LogNotifier) Deliver(_ context.Context, destination, subject, body string) error {
	n.logger.Info("stub delivery",
		zap.String("destination", logger.MaskEmail(destination)),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

var _ port.Notifier = (*LogNotifier)(nil)
