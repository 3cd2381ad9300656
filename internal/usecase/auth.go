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
	"github.com/dmarykin/authcore/internal/infra/security"
	"github.com/dmarykin/authcore/internal/repository"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 10 * time.Minute
)

// AuthService coordinates login, lockout tracking, and token verification.
type AuthService struct {
	accounts port.AccountRepository
	tokens   *security.TokenIssuer
	events   port.EventPublisher
	logger   *zap.Logger

	lockoutThreshold int
	lockoutDuration  time.Duration
	now              func() time.Time
}

// LoginResult carries the issued token and the authenticated account.
type LoginResult struct {
	Token   string
	Account domain.Account
}

// TokenVerification reports the outcome of a successful token check.
// RefreshedToken is non-empty when the presented token entered its refresh
// window and a replacement was minted; the presented token remains valid.
type TokenVerification struct {
	AccountID      string
	Claims         *security.BearerClaims
	RefreshedToken string
}

// NewAuthService constructs an AuthService.
func NewAuthService(cfg *config.AppConfig, accounts port.AccountRepository, tokens *security.TokenIssuer, events port.EventPublisher, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}

	threshold := defaultLockoutThreshold
	duration := defaultLockoutDuration
	if cfg != nil {
		if cfg.Lockout.Threshold > 0 {
			threshold = cfg.Lockout.Threshold
		}
		if cfg.Lockout.Duration > 0 {
			duration = cfg.Lockout.Duration
		}
	}

	return &AuthService{
		accounts:         accounts,
		tokens:           tokens,
		events:           events,
		logger:           log,
		lockoutThreshold: threshold,
		lockoutDuration:  duration,
		now:              time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Login validates credentials and issues a bearer token.
//
// The lockout check runs before the password is hashed: attempts against a
// locked account are rejected without spending a hash verification. A lock
// whose expiry has passed is cleared on the spot; there is no background
// sweeper.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("identifier is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	account, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	now := s.now().UTC()

	if account.Locked(now) {
		return nil, &AccountLockedError{RetryAfter: account.LockRemaining(now)}
	}
	if account.LockedUntil != nil {
		// Expired lock observed on this attempt.
		if err := s.accounts.ClearLockout(ctx, account.ID); err != nil {
			return nil, fmt.Errorf("clear expired lockout: %w", err)
		}
		account.LockedUntil = nil
		account.FailedAttempts = 0
	}

	if !account.IsActive {
		return nil, ErrInactiveAccount
	}

	ok, err := security.VerifySecret(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.recordFailedAttempt(ctx, account.ID, now)
	}

	if err := s.accounts.RecordLoginSuccess(ctx, account.ID, now); err != nil {
		return nil, fmt.Errorf("record login success: %w", err)
	}

	token, _, err := s.tokens.Issue(account.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	sanitized := *account
	sanitized.PasswordHash = ""
	sanitized.FailedAttempts = 0
	sanitized.LockedUntil = nil
	sanitized.LastLogin = &now

	return &LoginResult{Token: token, Account: sanitized}, nil
}

// recordFailedAttempt bumps the failure counter as a single store operation
// and returns the error the caller should surface: the lockout error when
// this attempt tripped the threshold, invalid credentials otherwise.
func (s *AuthService) recordFailedAttempt(ctx context.Context, accountID string, now time.Time) error {
	result, err := s.accounts.IncrementAttemptsAndMaybeLock(ctx, accountID, s.lockoutThreshold, s.lockoutDuration, now)
	if err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}

	if result.Locked && result.LockedUntil != nil {
		s.publishLockedEvent(ctx, accountID, result, now)
		return &AccountLockedError{RetryAfter: result.LockedUntil.Sub(now)}
	}

	return ErrInvalidCredentials
}

// VerifyToken validates a bearer token and resolves its subject.
//
// Tokens issued before the subject's last password change are treated as
// revoked. When the remaining lifetime drops below the refresh threshold a
// replacement token is returned alongside the verification result.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*TokenVerification, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrTokenExpired):
			return nil, ErrExpiredAccessToken
		case errors.Is(err, security.ErrTokenNotActive):
			return nil, ErrTokenNotActive
		default:
			return nil, ErrInvalidAccessToken
		}
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubjectUnavailable
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if !account.IsActive {
		return nil, ErrSubjectUnavailable
	}

	if account.PasswordChangedAt != nil && claims.IssuedAt != nil {
		// iat carries second precision, the store sub-second; truncate before
		// comparing so a token minted in the same instant stays valid.
		if claims.IssuedAt.Time.Before(account.PasswordChangedAt.Truncate(time.Second)) {
			return nil, ErrInvalidAccessToken
		}
	}

	verification := &TokenVerification{
		AccountID: account.ID,
		Claims:    claims,
	}

	if s.tokens.ShouldRefresh(claims) {
		refreshed, _, err := s.tokens.Issue(account.ID)
		if err != nil {
			s.logger.Warn("mint replacement token failed", zap.String("account_id", account.ID), zap.Error(err))
		} else {
			verification.RefreshedToken = refreshed
		}
	}

	return verification, nil
}

func (s *AuthService) publishLockedEvent(ctx context.Context, accountID string, result port.LockoutResult, now time.Time) {
	if s.events == nil || result.LockedUntil == nil {
		return
	}

	event := domain.AccountLockedEvent{
		EventID:        uuid.NewString(),
		AccountID:      accountID,
		FailedAttempts: result.FailedAttempts,
		LockedUntil:    *result.LockedUntil,
		LockedAt:       now,
	}

	if err := s.events.PublishAccountLocked(ctx, event); err != nil {
		s.logger.Warn("publish account locked event failed", zap.String("account_id", accountID), zap.Error(err))
	}
}
