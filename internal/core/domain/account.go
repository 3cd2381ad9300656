package domain

import "time"

// Account mirrors the persisted representation in the accounts table.
//
// PasswordHash is never serialized outward; transport models copy the fields
// they expose. ResetCodeHash holds the salted hash of the most recently
// issued recovery code, or nil when no code is outstanding.
type Account struct {
	ID                 string
	Username           string
	Email              string
	Phone              *string
	PasswordHash       string
	IsActive           bool
	FailedAttempts     int
	LockedUntil        *time.Time
	PasswordChangedAt  *time.Time
	ResetCodeHash      *string
	ResetCodeExpiresAt *time.Time
	LastLogin          *time.Time
	RegisteredAt       time.Time
}

// Locked reports whether a lockout is active at the provided instant.
// A lock-expiry in the past counts as unlocked; expired locks are cleared
// lazily on the next login attempt rather than by a background job.
func (a Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// LockRemaining returns how much of an active lockout is left at the provided
// instant, or zero when the account is not locked.
func (a Account) LockRemaining(now time.Time) time.Duration {
	if !a.Locked(now) {
		return 0
	}
	return a.LockedUntil.Sub(now)
}

// HasActiveResetCode reports whether an unexpired recovery code is stored for
// the account at the provided instant.
func (a Account) HasActiveResetCode(now time.Time) bool {
	return a.ResetCodeHash != nil && a.ResetCodeExpiresAt != nil && a.ResetCodeExpiresAt.After(now)
}
