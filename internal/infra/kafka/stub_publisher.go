package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dmarykin/authcore/internal/core/domain"
	"github.com/dmarykin/authcore/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAccountRegistered logs account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	payload := map[string]any{
		"username":      event.Username,
		"email":         event.Email,
		"phone":         event.Phone,
		"registered_at": event.RegisteredAt,
	}
	p.logEvent(eventAccountRegistered, event.AccountID, event.RegisteredAt, payload)
	return nil
}

// PublishAccountLocked logs account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	payload := map[string]any{
		"failed_attempts": event.FailedAttempts,
		"locked_until":    event.LockedUntil,
		"locked_at":       event.LockedAt,
	}
	p.logEvent(eventAccountLocked, event.AccountID, event.LockedAt, payload)
	return nil
}

// PublishPasswordChanged logs account.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"changed_at": event.ChangedAt,
		"reason":     event.Reason,
	}
	p.logEvent(eventPasswordChanged, event.AccountID, event.ChangedAt, payload)
	return nil
}

// PublishPasswordResetRequested logs account.password.reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := map[string]any{
		"request_id":         event.RequestID,
		"requested_at":       event.RequestedAt,
		"masked_destination": event.MaskedDestination,
		"expires_at":         event.ExpiresAt,
	}
	p.logEvent(eventPasswordResetRequested, event.AccountID, event.RequestedAt, payload)
	return nil
}

// PublishAccountDeactivated logs account.deactivated events.
func (p *StubPublisher) PublishAccountDeactivated(_ context.Context, event domain.AccountDeactivatedEvent) error {
	payload := map[string]any{
		"deactivated_at": event.DeactivatedAt,
	}
	p.logEvent(eventAccountDeactivated, event.AccountID, event.DeactivatedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
