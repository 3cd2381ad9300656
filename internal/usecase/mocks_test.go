package usecase

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dmarykin/authcore/internal/core/domain"
	"github.com/dmarykin/authcore/internal/core/port"
	"github.com/dmarykin/authcore/internal/infra/security"
	"github.com/dmarykin/authcore/internal/repository"
)

func TestMain(m *testing.M) {
	// Cheap hashing parameters so tests do not pay production argon2 cost.
	if err := security.ConfigureArgon2(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func mustHash(t *testing.T, secret string) string {
	t.Helper()
	hash, err := security.HashSecret(secret)
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}
	return hash
}

// accountStoreMock is a stateful in-memory stand-in for the accounts table.
// Its mutating methods mirror the single-update semantics of the real
// repository so the services observe the same state transitions.
type accountStoreMock struct {
	accounts map[string]*domain.Account

	createErr error

	createCalls         int
	recordSuccessCalls  int
	incrementCalls      int
	clearLockoutCalls   int
	setResetCodeCalls   int
	clearResetCodeCalls int
	updatePasswordCalls int
	deactivateCalls     int

	lastDefacedUsername string
	lastDefacedEmail    string
}

func newAccountStoreMock(accounts ...*domain.Account) *accountStoreMock {
	store := &accountStoreMock{accounts: make(map[string]*domain.Account)}
	for _, account := range accounts {
		copied := *account
		store.accounts[account.ID] = &copied
	}
	return store
}

func (m *accountStoreMock) Create(_ context.Context, account domain.Account) error {
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	copied := account
	m.accounts[account.ID] = &copied
	return nil
}

func (m *accountStoreMock) GetByID(_ context.Context, id string) (*domain.Account, error) {
	account, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *accountStoreMock) GetByIdentifier(_ context.Context, identifier string) (*domain.Account, error) {
	for _, account := range m.accounts {
		if account.Username == identifier || account.Email == strings.ToLower(identifier) {
			copied := *account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *accountStoreMock) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	for _, account := range m.accounts {
		if account.Email == strings.ToLower(email) {
			copied := *account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *accountStoreMock) RecordLoginSuccess(_ context.Context, id string, at time.Time) error {
	m.recordSuccessCalls++
	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil
	loginAt := at
	account.LastLogin = &loginAt
	return nil
}

func (m *accountStoreMock) IncrementAttemptsAndMaybeLock(_ context.Context, id string, threshold int, lockDuration time.Duration, now time.Time) (port.LockoutResult, error) {
	m.incrementCalls++
	account, ok := m.accounts[id]
	if !ok {
		return port.LockoutResult{}, repository.ErrNotFound
	}

	account.FailedAttempts++
	if account.FailedAttempts >= threshold {
		lockedUntil := now.Add(lockDuration)
		account.LockedUntil = &lockedUntil
	}

	result := port.LockoutResult{
		FailedAttempts: account.FailedAttempts,
		Locked:         account.FailedAttempts >= threshold,
	}
	if account.LockedUntil != nil {
		lockedUntil := *account.LockedUntil
		result.LockedUntil = &lockedUntil
	}
	return result, nil
}

func (m *accountStoreMock) ClearLockout(_ context.Context, id string) error {
	m.clearLockoutCalls++
	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil
	return nil
}

func (m *accountStoreMock) SetResetCode(_ context.Context, id string, codeHash string, expiresAt time.Time) error {
	m.setResetCodeCalls++
	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.ResetCodeHash = &codeHash
	expiry := expiresAt
	account.ResetCodeExpiresAt = &expiry
	return nil
}

func (m *accountStoreMock) ClearResetCode(_ context.Context, id string) error {
	m.clearResetCodeCalls++
	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.ResetCodeHash = nil
	account.ResetCodeExpiresAt = nil
	return nil
}

func (m *accountStoreMock) UpdatePassword(_ context.Context, id string, passwordHash string, changedAt time.Time) error {
	m.updatePasswordCalls++
	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.PasswordHash = passwordHash
	stamp := changedAt
	account.PasswordChangedAt = &stamp
	account.ResetCodeHash = nil
	account.ResetCodeExpiresAt = nil
	account.FailedAttempts = 0
	account.LockedUntil = nil
	return nil
}

func (m *accountStoreMock) Deactivate(_ context.Context, id string, defacedUsername, defacedEmail string) error {
	m.deactivateCalls++
	account, ok := m.accounts[id]
	if !ok || !account.IsActive {
		return repository.ErrNotFound
	}
	account.IsActive = false
	account.Username = defacedUsername
	account.Email = defacedEmail
	m.lastDefacedUsername = defacedUsername
	m.lastDefacedEmail = defacedEmail
	return nil
}

var _ port.AccountRepository = (*accountStoreMock)(nil)

type eventRecorderMock struct {
	registered      []domain.AccountRegisteredEvent
	locked          []domain.AccountLockedEvent
	passwordChanged []domain.PasswordChangedEvent
	resetRequested  []domain.PasswordResetRequestedEvent
	deactivated     []domain.AccountDeactivatedEvent
}

func (m *eventRecorderMock) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	m.registered = append(m.registered, event)
	return nil
}

func (m *eventRecorderMock) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	m.locked = append(m.locked, event)
	return nil
}

func (m *eventRecorderMock) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	m.passwordChanged = append(m.passwordChanged, event)
	return nil
}

func (m *eventRecorderMock) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	m.resetRequested = append(m.resetRequested, event)
	return nil
}

func (m *eventRecorderMock) PublishAccountDeactivated(_ context.Context, event domain.AccountDeactivatedEvent) error {
	m.deactivated = append(m.deactivated, event)
	return nil
}

var _ port.EventPublisher = (*eventRecorderMock)(nil)

type deliveryRecord struct {
	Destination string
	Subject     string
	Body        string
}

type notifierMock struct {
	failWith   error
	deliveries []deliveryRecord
}

func (m *notifierMock) Deliver(_ context.Context, destination, subject, body string) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.deliveries = append(m.deliveries, deliveryRecord{Destination: destination, Subject: subject, Body: body})
	return nil
}

var _ port.Notifier = (*notifierMock)(nil)

// rateLimitStoreMock keeps attempt timestamps in memory with the same
// window semantics as the Redis-backed store.
type rateLimitStoreMock struct {
	attempts map[string][]time.Time
}

func newRateLimitStoreMock() *rateLimitStoreMock {
	return &rateLimitStoreMock{attempts: make(map[string][]time.Time)}
}

func (m *rateLimitStoreMock) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	cutoff := reference.Add(-window)
	kept := m.attempts[identifier][:0]
	for _, at := range m.attempts[identifier] {
		if !at.Before(cutoff) {
			kept = append(kept, at)
		}
	}
	m.attempts[identifier] = kept
	return nil
}

func (m *rateLimitStoreMock) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	cutoff := reference.Add(-window)
	count := 0
	for _, at := range m.attempts[identifier] {
		if !at.Before(cutoff) && !at.After(reference) {
			count++
		}
	}
	return count, nil
}

func (m *rateLimitStoreMock) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	m.attempts[identifier] = append(m.attempts[identifier], at)
	return nil
}

func (m *rateLimitStoreMock) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	cutoff := reference.Add(-window)
	var oldest time.Time
	found := false
	for _, at := range m.attempts[identifier] {
		if at.Before(cutoff) || at.After(reference) {
			continue
		}
		if !found || at.Before(oldest) {
			oldest = at
			found = true
		}
	}
	return oldest, found, nil
}

func (m *rateLimitStoreMock) Reset(_ context.Context, identifier string) error {
	delete(m.attempts, identifier)
	return nil
}

var _ port.RateLimitStore = (*rateLimitStoreMock)(nil)
