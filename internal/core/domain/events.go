package domain

import "time"

// AccountRegisteredEvent represents the payload for auth.account.registered messages.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    string
	Username     string
	Email        string
	Phone        *string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// AccountLockedEvent represents the payload for auth.account.locked messages.
type AccountLockedEvent struct {
	EventID        string
	AccountID      string
	FailedAttempts int
	LockedUntil    time.Time
	LockedAt       time.Time
	Metadata       map[string]any
}

// PasswordChangedEvent represents the payload for auth.account.password.changed messages.
type PasswordChangedEvent struct {
	EventID   string
	AccountID string
	ChangedAt time.Time
	Reason    string
	Metadata  map[string]any
}

// PasswordResetRequestedEvent represents the payload for auth.account.password.reset_requested messages.
type PasswordResetRequestedEvent struct {
	EventID           string
	AccountID         string
	RequestID         string
	RequestedAt       time.Time
	MaskedDestination string
	ExpiresAt         time.Time
	Metadata          map[string]any
}

// AccountDeactivatedEvent represents the payload for auth.account.deactivated messages.
type AccountDeactivatedEvent struct {
	EventID       string
	AccountID     string
	DeactivatedAt time.Time
	Metadata      map[string]any
}
