package port

import (
	"context"
	"time"

	"github.com/dmarykin/authcore/internal/core/domain"
)

// LockoutResult reports the outcome of an atomic failed-attempt increment.
type LockoutResult struct {
	FailedAttempts int
	Locked         bool
	LockedUntil    *time.Time
}

// AccountRepository exposes persistence behavior for accounts.
//
// IncrementAttemptsAndMaybeLock and RecordLoginSuccess must execute as single
// store operations: two concurrent failed attempts reading the same counter
// and writing back independently would let both slip under the lock threshold.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// RecordLoginSuccess resets the failed-attempt counter, clears any lock,
	// and stamps last_login in one update.
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error

	// IncrementAttemptsAndMaybeLock bumps the failed-attempt counter and, when
	// the new count reaches threshold, sets the lock expiry to now+lockDuration.
	IncrementAttemptsAndMaybeLock(ctx context.Context, id string, threshold int, lockDuration time.Duration, now time.Time) (LockoutResult, error)

	// ClearLockout zeroes the counter and removes the lock expiry. Used when an
	// expired lock is observed on the next attempt.
	ClearLockout(ctx context.Context, id string) error

	// SetResetCode stores the hashed recovery code and its expiry, replacing
	// any previously issued code in the same update (supersession).
	SetResetCode(ctx context.Context, id string, codeHash string, expiresAt time.Time) error
	ClearResetCode(ctx context.Context, id string) error

	// UpdatePassword swaps the password hash, stamps password_changed_at, and
	// clears the recovery code and lockout state in one update.
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error

	// Deactivate flips the active flag and defaces the unique identifiers so
	// the originals become reusable.
	Deactivate(ctx context.Context, id string, defacedUsername, defacedEmail string) error
}
