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
	"github.com/dmarykin/authcore/internal/infra/config"
	"github.com/dmarykin/authcore/internal/infra/logger"
	"github.com/dmarykin/authcore/internal/infra/security"
	"github.com/dmarykin/authcore/internal/repository"
)

const (
	defaultResetCodeTTL    = 10 * time.Minute
	defaultResetCodeLength = 6

	resetRequestRateLimitScope = "password_reset_request"
	resetGuessRateLimitScope   = "password_reset_guess"

	passwordChangeReason = "password_change"
	passwordResetReason  = "password_reset"

	resetMailSubject = "Your password reset code"
)

// PasswordResetService coordinates the recovery-code flow and authenticated
// password changes.
type PasswordResetService struct {
	cfg               *config.AppConfig
	accounts          port.AccountRepository
	rateLimits        port.RateLimitStore
	notifier          port.Notifier
	events            port.EventPublisher
	passwordValidator *security.PasswordValidator
	logger            *zap.Logger

	now        func() time.Time
	codeTTL    time.Duration
	codeLength int
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(cfg *config.AppConfig, accounts port.AccountRepository, rateLimits port.RateLimitStore, notifier port.Notifier, events port.EventPublisher, validator *security.PasswordValidator, log *zap.Logger) *PasswordResetService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}

	codeTTL := defaultResetCodeTTL
	codeLength := defaultResetCodeLength
	if cfg != nil {
		if cfg.Reset.CodeTTL > 0 {
			codeTTL = cfg.Reset.CodeTTL
		}
		if cfg.Reset.CodeLength > 0 {
			codeLength = cfg.Reset.CodeLength
		}
	}

	return &PasswordResetService{
		cfg:               cfg,
		accounts:          accounts,
		rateLimits:        rateLimits,
		notifier:          notifier,
		events:            events,
		passwordValidator: validator,
		logger:            log,
		now:               time.Now,
		codeTTL:           codeTTL,
		codeLength:        codeLength,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *PasswordResetService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// RequestPasswordReset issues a recovery code and delivers it out-of-band.
//
// The response is identical whether or not the email resolves to an active
// account, so the endpoint cannot be used to probe for registered addresses.
// A newly issued code supersedes any outstanding one. If delivery fails the
// stored code is rolled back and ErrDeliveryFailed is returned: the caller
// already proved knowledge of the address by receiving nothing.
func (s *PasswordResetService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("email is required")
	}

	now := s.now().UTC()
	if err := s.enforceRateLimit(ctx, resetRequestRateLimitScope, email, s.resetRequestLimit(), now); err != nil {
		return err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Masked: same outcome as the success path.
			return nil
		}
		return fmt.Errorf("lookup account: %w", err)
	}
	if !account.IsActive {
		return nil
	}

	code, err := security.GenerateNumericCode(s.codeLength)
	if err != nil {
		return fmt.Errorf("generate recovery code: %w", err)
	}

	codeHash, err := security.HashSecret(code)
	if err != nil {
		return fmt.Errorf("hash recovery code: %w", err)
	}

	expiresAt := now.Add(s.codeTTL)
	if err := s.accounts.SetResetCode(ctx, account.ID, codeHash, expiresAt); err != nil {
		return fmt.Errorf("store recovery code: %w", err)
	}

	body := fmt.Sprintf("Your password reset code is %s. It expires in %d minutes.", code, int(s.codeTTL.Minutes()))
	if err := s.notifier.Deliver(ctx, account.Email, resetMailSubject, body); err != nil {
		// Roll back so the undelivered code cannot be guessed later.
		if clearErr := s.accounts.ClearResetCode(ctx, account.ID); clearErr != nil {
			s.logger.Warn("roll back undelivered recovery code failed",
				zap.String("account_id", account.ID), zap.Error(clearErr))
		}
		s.logger.Warn("recovery code delivery failed",
			zap.String("account_id", account.ID),
			zap.String("email", logger.MaskEmail(account.Email)),
			zap.Error(err))
		return ErrDeliveryFailed
	}

	s.publishResetRequestedEvent(ctx, account, now, expiresAt)

	return nil
}

// VerifyResetCode checks a recovery code without consuming it.
func (s *PasswordResetService) VerifyResetCode(ctx context.Context, email, code string) error {
	account, err := s.lookupForCode(ctx, email)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if err := s.enforceRateLimit(ctx, resetGuessRateLimitScope, account.ID, s.resetGuessLimit(), now); err != nil {
		return err
	}

	if err := s.checkCode(account, code, now); err != nil {
		return err
	}

	s.resetGuessWindow(ctx, account.ID)
	return nil
}

// ResetPassword consumes a recovery code and installs a new password.
//
// The single store update that swaps the hash also clears the recovery code,
// zeroes the lockout state, and stamps password_changed_at, which implicitly
// revokes every bearer token issued before this moment.
func (s *PasswordResetService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := s.passwordValidator.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrNewPasswordInvalid, err)
	}

	account, err := s.lookupForCode(ctx, email)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if err := s.enforceRateLimit(ctx, resetGuessRateLimitScope, account.ID, s.resetGuessLimit(), now); err != nil {
		return err
	}

	if err := s.checkCode(account, code, now); err != nil {
		return err
	}

	hash, err := security.HashSecret(newPassword)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	if err := s.accounts.UpdatePassword(ctx, account.ID, hash, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}

	s.resetGuessWindow(ctx, account.ID)
	s.publishPasswordChangedEvent(ctx, account.ID, now, passwordResetReason)

	return nil
}

// ChangePassword updates an authenticated account's password after verifying
// the current one.
func (s *PasswordResetService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	if currentPassword == "" {
		return ErrCurrentPasswordInvalid
	}

	if err := s.passwordValidator.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrNewPasswordInvalid, err)
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lookup account: %w", err)
	}
	if !account.IsActive {
		return ErrInactiveAccount
	}

	matches, err := security.VerifySecret(currentPassword, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify current password: %w", err)
	}
	if !matches {
		return ErrCurrentPasswordInvalid
	}

	if same, err := security.VerifySecret(newPassword, account.PasswordHash); err != nil {
		return fmt.Errorf("compare new password: %w", err)
	} else if same {
		return fmt.Errorf("%w: must differ from the current password", ErrNewPasswordInvalid)
	}

	hash, err := security.HashSecret(newPassword)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	now := s.now().UTC()
	if err := s.accounts.UpdatePassword(ctx, account.ID, hash, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}

	s.publishPasswordChangedEvent(ctx, account.ID, now, passwordChangeReason)

	return nil
}

// lookupForCode resolves an email for the verify/reset paths. Unknown and
// inactive accounts collapse into the invalid-code error so the endpoints
// leak nothing the request endpoint hides.
func (s *PasswordResetService) lookupForCode(ctx context.Context, email string) (*domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if !account.IsActive {
		return nil, ErrInvalidOrExpiredCode
	}

	return account, nil
}

func (s *PasswordResetService) checkCode(account *domain.Account, code string, now time.Time) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrInvalidOrExpiredCode
	}

	if !account.HasActiveResetCode(now) {
		return ErrInvalidOrExpiredCode
	}

	ok, err := security.VerifySecret(code, *account.ResetCodeHash)
	if err != nil {
		return fmt.Errorf("verify recovery code: %w", err)
	}
	if !ok {
		return ErrInvalidOrExpiredCode
	}

	return nil
}

func (s *PasswordResetService) resetRequestLimit() int {
	if s.cfg == nil {
		return 0
	}
	return s.cfg.RateLimit.ResetRequestMaxAttempts
}

func (s *PasswordResetService) resetGuessLimit() int {
	if s.cfg == nil {
		return 0
	}
	return s.cfg.RateLimit.ResetGuessMaxAttempts
}

// enforceRateLimit applies a sliding window for the scope/key pair. Store
// failures are logged and treated as allowed: a degraded Redis must not take
// password recovery down with it.
func (s *PasswordResetService) enforceRateLimit(ctx context.Context, scope, key string, limit int, now time.Time) error {
	if s.rateLimits == nil || limit <= 0 {
		return nil
	}

	window := time.Hour
	if s.cfg != nil && s.cfg.RateLimit.WindowDuration > 0 {
		window = s.cfg.RateLimit.WindowDuration
	}

	storageKey := fmt.Sprintf("%s:%s", scope, key)

	if err := s.rateLimits.TrimWindow(ctx, storageKey, window, now); err != nil {
		s.logger.Warn("rate limit trim failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	count, err := s.rateLimits.CountAttempts(ctx, storageKey, window, now)
	if err != nil {
		s.logger.Warn("rate limit count failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	if count >= limit {
		retryAfter := time.Duration(0)
		if oldest, ok, err := s.rateLimits.OldestAttempt(ctx, storageKey, window, now); err == nil && ok {
			if reset := oldest.Add(window); reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if err != nil {
			s.logger.Warn("rate limit oldest lookup failed", zap.String("scope", scope), zap.Error(err))
		}
		return &RateLimitExceededError{Scope: scope, RetryAfter: retryAfter}
	}

	if err := s.rateLimits.RecordAttempt(ctx, storageKey, now); err != nil {
		s.logger.Warn("rate limit record failed", zap.String("scope", scope), zap.Error(err))
	}

	return nil
}

func (s *PasswordResetService) resetGuessWindow(ctx context.Context, accountID string) {
	if s.rateLimits == nil {
		return
	}

	storageKey := fmt.Sprintf("%s:%s", resetGuessRateLimitScope, accountID)
	if err := s.rateLimits.Reset(ctx, storageKey); err != nil {
		s.logger.Warn("reset guess window failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

func (s *PasswordResetService) publishResetRequestedEvent(ctx context.Context, account *domain.Account, requestedAt, expiresAt time.Time) {
	if s.events == nil {
		return
	}

	event := domain.PasswordResetRequestedEvent{
		EventID:           uuid.NewString(),
		AccountID:         account.ID,
		RequestID:         uuid.NewString(),
		RequestedAt:       requestedAt,
		MaskedDestination: logger.MaskEmail(account.Email),
		ExpiresAt:         expiresAt,
	}

	if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
		s.logger.Warn("publish password reset requested event failed", zap.String("account_id", account.ID), zap.Error(err))
	}
}

func (s *PasswordResetService) publishPasswordChangedEvent(ctx context.Context, accountID string, changedAt time.Time, reason string) {
	if s.events == nil {
		return
	}

	event := domain.PasswordChangedEvent{
		EventID:   uuid.NewString(),
		AccountID: accountID,
		ChangedAt: changedAt,
		Reason:    reason,
	}

	if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
		s.logger.Warn("publish password changed event failed", zap.String("account_id", accountID), zap.Error(err))
	}
}
