package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/dmarykin/authcore/internal/core/domain"
	"github.com/dmarykin/authcore/internal/infra/config"
	"github.com/dmarykin/authcore/internal/infra/security"
)

var codePattern = regexp.MustCompile(`\d{6}`)

func newResetConfig() *config.AppConfig {
	return &config.AppConfig{
		Reset: config.ResetSettings{
			CodeTTL:    10 * time.Minute,
			CodeLength: 6,
		},
		RateLimit: config.RateLimitSettings{
			WindowDuration:          time.Hour,
			ResetRequestMaxAttempts: 3,
			ResetGuessMaxAttempts:   10,
		},
	}
}

func newResetFixture(t *testing.T, accounts ...*domain.Account) (*PasswordResetService, *accountStoreMock, *rateLimitStoreMock, *notifierMock, *eventRecorderMock) {
	t.Helper()
	store := newAccountStoreMock(accounts...)
	rateLimits := newRateLimitStoreMock()
	notifier := &notifierMock{}
	events := &eventRecorderMock{}
	svc := NewPasswordResetService(newResetConfig(), store, rateLimits, notifier, events, nil, nil)
	return svc, store, rateLimits, notifier, events
}

func deliveredCode(t *testing.T, notifier *notifierMock) string {
	t.Helper()
	if len(notifier.deliveries) == 0 {
		t.Fatalf("expected a delivered recovery code")
	}
	body := notifier.deliveries[len(notifier.deliveries)-1].Body
	code := codePattern.FindString(body)
	if code == "" {
		t.Fatalf("no recovery code found in delivery body %q", body)
	}
	return code
}

func TestPasswordResetService_Request_UnknownEmailMasked(t *testing.T) {
	svc, store, _, notifier, events := newResetFixture(t)

	if err := svc.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected masked nil for unknown email, got %v", err)
	}
	if len(notifier.deliveries) != 0 {
		t.Fatalf("expected no delivery for unknown email")
	}
	if store.setResetCodeCalls != 0 {
		t.Fatalf("expected no code stored for unknown email")
	}
	if len(events.resetRequested) != 0 {
		t.Fatalf("expected no event for unknown email")
	}
}

func TestPasswordResetService_Request_InactiveAccountMasked(t *testing.T) {
	account := &domain.Account{ID: "acct-off", Email: "off@example.com", IsActive: false}
	svc, store, _, notifier, _ := newResetFixture(t, account)

	if err := svc.RequestPasswordReset(context.Background(), "off@example.com"); err != nil {
		t.Fatalf("expected masked nil for inactive account, got %v", err)
	}
	if len(notifier.deliveries) != 0 || store.setResetCodeCalls != 0 {
		t.Fatalf("expected inactive account to be indistinguishable from unknown")
	}
}

func TestPasswordResetService_Request_StoresHashedCodeAndDelivers(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	account := &domain.Account{ID: "acct-reset", Email: "reset@example.com", IsActive: true}
	svc, store, _, notifier, events := newResetFixture(t, account)
	svc.WithClock(func() time.Time { return fixed })

	if err := svc.RequestPasswordReset(context.Background(), "Reset@Example.COM"); err != nil {
		t.Fatalf("RequestPasswordReset returned error: %v", err)
	}

	code := deliveredCode(t, notifier)
	if notifier.deliveries[0].Destination != account.Email {
		t.Fatalf("expected delivery to %s, got %s", account.Email, notifier.deliveries[0].Destination)
	}

	stored := store.accounts[account.ID]
	if stored.ResetCodeHash == nil {
		t.Fatalf("expected a stored code hash")
	}
	if *stored.ResetCodeHash == code {
		t.Fatalf("expected the code to be stored hashed, not in the clear")
	}
	if ok, err := security.VerifySecret(code, *stored.ResetCodeHash); err != nil || !ok {
		t.Fatalf("expected delivered code to match stored hash, ok=%v err=%v", ok, err)
	}
	if stored.ResetCodeExpiresAt == nil || !stored.ResetCodeExpiresAt.Equal(fixed.Add(10*time.Minute)) {
		t.Fatalf("expected expiry %v, got %v", fixed.Add(10*time.Minute), stored.ResetCodeExpiresAt)
	}

	if len(events.resetRequested) != 1 {
		t.Fatalf("expected one reset-requested event, got %d", len(events.resetRequested))
	}
	if events.resetRequested[0].MaskedDestination == account.Email {
		t.Fatalf("expected the event destination to be masked")
	}
}

func TestPasswordResetService_Request_SupersedesPreviousCode(t *testing.T) {
	account := &domain.Account{ID: "acct-super", Email: "super@example.com", IsActive: true}
	svc, _, _, notifier, _ := newResetFixture(t, account)

	if err := svc.RequestPasswordReset(context.Background(), account.Email); err != nil {
		t.Fatalf("first request: %v", err)
	}
	firstCode := deliveredCode(t, notifier)

	if err := svc.RequestPasswordReset(context.Background(), account.Email); err != nil {
		t.Fatalf("second request: %v", err)
	}
	secondCode := deliveredCode(t, notifier)

	if err := svc.VerifyResetCode(context.Background(), account.Email, secondCode); err != nil {
		t.Fatalf("expected the newest code to verify, got %v", err)
	}
	if firstCode != secondCode {
		if err := svc.VerifyResetCode(context.Background(), account.Email, firstCode); !errors.Is(err, ErrInvalidOrExpiredCode) {
			t.Fatalf("expected the superseded code to be rejected, got %v", err)
		}
	}
}

func TestPasswordResetService_Request_DeliveryFailureRollsBack(t *testing.T) {
	account := &domain.Account{ID: "acct-bounce", Email: "bounce@example.com", IsActive: true}
	svc, store, _, notifier, events := newResetFixture(t, account)
	notifier.failWith = fmt.Errorf("smtp: connection refused")

	err := svc.RequestPasswordReset(context.Background(), account.Email)
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if store.clearResetCodeCalls != 1 {
		t.Fatalf("expected the undelivered code rolled back, got %d clears", store.clearResetCodeCalls)
	}
	if stored := store.accounts[account.ID]; stored.ResetCodeHash != nil {
		t.Fatalf("expected no code left behind after rollback")
	}
	if len(events.resetRequested) != 0 {
		t.Fatalf("expected no event after failed delivery")
	}
}

func TestPasswordResetService_Request_RateLimited(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc, _, _, _, _ := newResetFixture(t)
	svc.WithClock(func() time.Time { return fixed })

	// Rate limiting applies before the account lookup, so even unknown
	// addresses burn attempts.
	for i := 0; i < 3; i++ {
		if err := svc.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}

	err := svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	var rateErr *RateLimitExceededError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitExceededError, got %v", err)
	}
	if rateErr.Scope != resetRequestRateLimitScope {
		t.Fatalf("expected scope %s, got %s", resetRequestRateLimitScope, rateErr.Scope)
	}
	if rateErr.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", rateErr.RetryAfter)
	}
}

func TestPasswordResetService_VerifyResetCode(t *testing.T) {
	account := &domain.Account{ID: "acct-verify-code", Email: "verify@example.com", IsActive: true}
	svc, _, _, notifier, _ := newResetFixture(t, account)

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	clock := base
	svc.WithClock(func() time.Time { return clock })

	if err := svc.RequestPasswordReset(context.Background(), account.Email); err != nil {
		t.Fatalf("request: %v", err)
	}
	code := deliveredCode(t, notifier)

	if err := svc.VerifyResetCode(context.Background(), account.Email, "000000"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		if code == "000000" {
			t.Skip("generated code collided with the probe value")
		}
		t.Fatalf("expected wrong code rejected, got %v", err)
	}

	if err := svc.VerifyResetCode(context.Background(), account.Email, code); err != nil {
		t.Fatalf("expected correct code accepted, got %v", err)
	}

	// Past the TTL even the correct code is dead.
	clock = base.Add(11 * time.Minute)
	if err := svc.VerifyResetCode(context.Background(), account.Email, code); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected expired code rejected, got %v", err)
	}
}

func TestPasswordResetService_VerifyResetCode_UnknownEmail(t *testing.T) {
	svc, _, _, _, _ := newResetFixture(t)

	if err := svc.VerifyResetCode(context.Background(), "nobody@example.com", "123456"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected unknown email to collapse into ErrInvalidOrExpiredCode, got %v", err)
	}
}

func TestPasswordResetService_VerifyResetCode_GuessWindowForgiven(t *testing.T) {
	account := &domain.Account{ID: "acct-guess", Email: "guess@example.com", IsActive: true}
	svc, _, rateLimits, notifier, _ := newResetFixture(t, account)
	svc.cfg.RateLimit.ResetGuessMaxAttempts = 3

	if err := svc.RequestPasswordReset(context.Background(), account.Email); err != nil {
		t.Fatalf("request: %v", err)
	}
	code := deliveredCode(t, notifier)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 2; i++ {
		if err := svc.VerifyResetCode(context.Background(), account.Email, wrong); !errors.Is(err, ErrInvalidOrExpiredCode) {
			t.Fatalf("guess %d: expected ErrInvalidOrExpiredCode, got %v", i+1, err)
		}
	}

	if err := svc.VerifyResetCode(context.Background(), account.Email, code); err != nil {
		t.Fatalf("expected correct code accepted before the limit, got %v", err)
	}

	// A successful verification forgives the accumulated guesses.
	guessKey := fmt.Sprintf("%s:%s", resetGuessRateLimitScope, account.ID)
	if attempts := rateLimits.attempts[guessKey]; len(attempts) != 0 {
		t.Fatalf("expected guess window reset, %d attempts remain", len(attempts))
	}
}

func TestPasswordResetService_VerifyResetCode_GuessRateLimited(t *testing.T) {
	account := &domain.Account{ID: "acct-hammer", Email: "hammer@example.com", IsActive: true}
	svc, _, _, notifier, _ := newResetFixture(t, account)
	svc.cfg.RateLimit.ResetGuessMaxAttempts = 3

	if err := svc.RequestPasswordReset(context.Background(), account.Email); err != nil {
		t.Fatalf("request: %v", err)
	}
	code := deliveredCode(t, notifier)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 3; i++ {
		if err := svc.VerifyResetCode(context.Background(), account.Email, wrong); !errors.Is(err, ErrInvalidOrExpiredCode) {
			t.Fatalf("guess %d: expected ErrInvalidOrExpiredCode, got %v", i+1, err)
		}
	}

	err := svc.VerifyResetCode(context.Background(), account.Email, code)
	var rateErr *RateLimitExceededError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitExceededError after exhausted guesses, got %v", err)
	}
	if rateErr.Scope != resetGuessRateLimitScope {
		t.Fatalf("expected scope %s, got %s", resetGuessRateLimitScope, rateErr.Scope)
	}
}

func TestPasswordResetService_ResetPassword_ConsumesCode(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	account := &domain.Account{
		ID:             "acct-consume",
		Email:          "consume@example.com",
		PasswordHash:   mustHash(t, "Old#Passw0rd"),
		IsActive:       true,
		FailedAttempts: 3,
	}
	svc, store, _, notifier, events := newResetFixture(t, account)
	svc.WithClock(func() time.Time { return fixed })

	if err := svc.RequestPasswordReset(context.Background(), account.Email); err != nil {
		t.Fatalf("request: %v", err)
	}
	code := deliveredCode(t, notifier)

	if err := svc.ResetPassword(context.Background(), account.Email, code, "Fresh#Passw0rd9"); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}

	stored := store.accounts[account.ID]
	if ok, err := security.VerifySecret("Fresh#Passw0rd9", stored.PasswordHash); err != nil || !ok {
		t.Fatalf("expected new password installed, ok=%v err=%v", ok, err)
	}
	if stored.ResetCodeHash != nil || stored.ResetCodeExpiresAt != nil {
		t.Fatalf("expected the recovery code consumed")
	}
	if stored.PasswordChangedAt == nil || !stored.PasswordChangedAt.Equal(fixed) {
		t.Fatalf("expected password_changed_at stamped at %v, got %v", fixed, stored.PasswordChangedAt)
	}
	if stored.FailedAttempts != 0 {
		t.Fatalf("expected lockout state cleared, got %d attempts", stored.FailedAttempts)
	}

	if len(events.passwordChanged) != 1 || events.passwordChanged[0].Reason != passwordResetReason {
		t.Fatalf("expected one password-changed event with reason %q", passwordResetReason)
	}

	// The code is single use: replaying it must fail.
	if err := svc.ResetPassword(context.Background(), account.Email, code, "Another#Passw0rd9"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("expected replayed code rejected, got %v", err)
	}
}

func TestPasswordResetService_ResetPassword_WeakPassword(t *testing.T) {
	account := &domain.Account{ID: "acct-weak", Email: "weak@example.com", IsActive: true}
	svc, _, _, _, _ := newResetFixture(t, account)

	if err := svc.ResetPassword(context.Background(), account.Email, "123456", "short"); !errors.Is(err, ErrNewPasswordInvalid) {
		t.Fatalf("expected ErrNewPasswordInvalid, got %v", err)
	}
}

func TestPasswordResetService_ChangePassword(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	account := &domain.Account{
		ID:           "acct-change",
		Email:        "change@example.com",
		PasswordHash: mustHash(t, "Current#Passw0rd"),
		IsActive:     true,
	}
	svc, store, _, _, events := newResetFixture(t, account)
	svc.WithClock(func() time.Time { return fixed })

	if err := svc.ChangePassword(context.Background(), account.ID, "not-the-password", "Fresh#Passw0rd9"); !errors.Is(err, ErrCurrentPasswordInvalid) {
		t.Fatalf("expected ErrCurrentPasswordInvalid, got %v", err)
	}

	if err := svc.ChangePassword(context.Background(), account.ID, "Current#Passw0rd", "Current#Passw0rd"); !errors.Is(err, ErrNewPasswordInvalid) {
		t.Fatalf("expected ErrNewPasswordInvalid for unchanged password, got %v", err)
	}

	if err := svc.ChangePassword(context.Background(), account.ID, "Current#Passw0rd", "Fresh#Passw0rd9"); err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}

	stored := store.accounts[account.ID]
	if ok, err := security.VerifySecret("Fresh#Passw0rd9", stored.PasswordHash); err != nil || !ok {
		t.Fatalf("expected new password installed, ok=%v err=%v", ok, err)
	}
	if len(events.passwordChanged) != 1 || events.passwordChanged[0].Reason != passwordChangeReason {
		t.Fatalf("expected one password-changed event with reason %q", passwordChangeReason)
	}
}

func TestPasswordResetService_ChangePassword_UnknownAccount(t *testing.T) {
	svc, _, _, _, _ := newResetFixture(t)

	if err := svc.ChangePassword(context.Background(), "acct-ghost", "whatever", "Fresh#Passw0rd9"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
