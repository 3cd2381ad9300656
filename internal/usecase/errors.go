package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAccountNotFound indicates the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidCredentials indicates the provided identifier or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInactiveAccount indicates the account has been deactivated.
	ErrInactiveAccount = errors.New("account is not active")
	// ErrUsernameTaken indicates the requested username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrEmailTaken indicates the requested email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrWeakPassword indicates the password failed policy validation.
	ErrWeakPassword = errors.New("password does not meet policy requirements")
	// ErrInvalidAccessToken indicates the provided token is malformed, has a bad
	// signature, or was implicitly revoked by a password change.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates the provided token has expired.
	ErrExpiredAccessToken = errors.New("access token expired")
	// ErrTokenNotActive indicates the token's not-before is still in the future,
	// typically clock skew between the issuing and verifying processes.
	ErrTokenNotActive = errors.New("access token not yet active")
	// ErrSubjectUnavailable indicates the token's subject no longer resolves to
	// an active account.
	ErrSubjectUnavailable = errors.New("token subject unavailable")
	// ErrInvalidOrExpiredCode indicates the recovery code does not match, has
	// expired, or was never issued. Callers cannot distinguish the three.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired recovery code")
	// ErrDeliveryFailed indicates the out-of-band notifier could not deliver the
	// recovery code; the stored code has been rolled back.
	ErrDeliveryFailed = errors.New("recovery code delivery failed")
	// ErrCurrentPasswordInvalid indicates the supplied current password does not match.
	ErrCurrentPasswordInvalid = errors.New("current password is incorrect")
	// ErrNewPasswordInvalid indicates the proposed password is unusable.
	ErrNewPasswordInvalid = errors.New("new password is invalid")
)

// AccountLockedError signals an active lockout. RetryAfter is the remaining
// lock duration at the time of the attempt.
type AccountLockedError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account temporarily locked, retry after %s", e.RetryAfter.Round(time.Second))
}

// RetryAfterSeconds returns the remaining lock duration rounded up to whole seconds.
func (e *AccountLockedError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	return secs
}

// RateLimitExceededError signals that a sliding-window limit was hit for a scope.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}
