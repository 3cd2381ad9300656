package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmarykin/authcore/internal/core/domain"
	"github.com/dmarykin/authcore/internal/core/port"
	"github.com/dmarykin/authcore/internal/infra/logger"
	"github.com/dmarykin/authcore/internal/infra/security"
	"github.com/dmarykin/authcore/internal/repository"
)

const deactivationMarker = "#deleted#"

// RegistrationService coordinates account creation and deactivation.
type RegistrationService struct {
	accounts          port.AccountRepository
	passwordValidator *security.PasswordValidator
	events            port.EventPublisher
	logger            *zap.Logger
	now               func() time.Time
}

// RegisterInput carries the payload for a registration request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Phone    *string
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(accounts port.AccountRepository, validator *security.PasswordValidator, events port.EventPublisher, log *zap.Logger) *RegistrationService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &RegistrationService{
		accounts:          accounts,
		passwordValidator: validator,
		events:            events,
		logger:            log,
		now:               time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *RegistrationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Register creates a new active account with a hashed password.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*domain.Account, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("email is malformed")
	}

	if err := s.passwordValidator.Validate(input.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	hash, err := security.HashSecret(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	account := domain.Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Phone:        trimPhone(input.Phone),
		PasswordHash: hash,
		IsActive:     true,
		RegisteredAt: now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, ErrUsernameTaken
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, ErrEmailTaken
		default:
			return nil, fmt.Errorf("create account: %w", err)
		}
	}

	s.publishRegisteredEvent(ctx, account)

	sanitized := account
	sanitized.PasswordHash = ""
	return &sanitized, nil
}

// Deactivate soft-deletes an account. The unique identifiers are defaced so
// the original username and email become available for re-registration.
func (s *RegistrationService) Deactivate(ctx context.Context, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lookup account: %w", err)
	}

	if !account.IsActive {
		return nil
	}

	suffix := deactivationMarker + shortID()
	if err := s.accounts.Deactivate(ctx, account.ID, account.Username+suffix, account.Email+suffix); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("deactivate account: %w", err)
	}

	s.publishDeactivatedEvent(ctx, account.ID)

	return nil
}

func (s *RegistrationService) publishRegisteredEvent(ctx context.Context, account domain.Account) {
	if s.events == nil {
		return
	}

	event := domain.AccountRegisteredEvent{
		EventID:      uuid.NewString(),
		AccountID:    account.ID,
		Username:     account.Username,
		Email:        account.Email,
		Phone:        account.Phone,
		RegisteredAt: account.RegisteredAt,
	}

	if err := s.events.PublishAccountRegistered(ctx, event); err != nil {
		s.logger.Warn("publish account registered event failed",
			zap.String("account_id", account.ID),
			zap.String("email", logger.MaskEmail(account.Email)),
			zap.Error(err))
	}
}

func (s *RegistrationService) publishDeactivatedEvent(ctx context.Context, accountID string) {
	if s.events == nil {
		return
	}

	event := domain.AccountDeactivatedEvent{
		EventID:       uuid.NewString(),
		AccountID:     accountID,
		DeactivatedAt: s.now().UTC(),
	}

	if err := s.events.PublishAccountDeactivated(ctx, event); err != nil {
		s.logger.Warn("publish account deactivated event failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

func trimPhone(phone *string) *string {
	if phone == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*phone)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func shortID() string {
	id := uuid.NewString()
	return strings.ReplaceAll(id, "-", "")[:8]
}
