package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmarykin/authcore/internal/core/domain"
	"github.com/dmarykin/authcore/internal/core/port"
	"github.com/dmarykin/authcore/internal/repository"
)

const accountsTable = "auth.accounts"

var accountColumns = []string{
	"id",
	"username",
	"email",
	"phone",
	"password_hash",
	"is_active",
	"failed_attempts",
	"locked_until",
	"password_changed_at",
	"reset_code_hash",
	"reset_code_expires_at",
	"last_login",
	"registered_at",
}

// AccountRepository implements port.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAccountRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	repo := &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	if tx == nil {
		return r
	}
	return &AccountRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	var phoneValue any
	if account.Phone != nil && *account.Phone != "" {
		phoneValue = *account.Phone
	}

	query := r.builder.Insert(accountsTable).
		Columns(
			"id",
			"username",
			"email",
			"phone",
			"password_hash",
			"is_active",
			"failed_attempts",
			"registered_at",
		).
		Values(
			account.ID,
			account.Username,
			account.Email,
			phoneValue,
			account.PasswordHash,
			account.IsActive,
			account.FailedAttempts,
			account.RegisteredAt,
		)

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return mapUniqueViolation(err, "insert account")
	}

	return nil
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From(accountsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByIdentifier retrieves an account by username or email.
func (r *AccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From(accountsTable).
		Where(squirrel.Or{
			squirrel.Eq{"username": identifier},
			squirrel.Eq{"email": strings.ToLower(identifier)},
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account by identifier sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByEmail retrieves an account by email. The column stores lowercase values.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From(accountsTable).
		Where(squirrel.Eq{"email": strings.ToLower(email)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account by email sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// RecordLoginSuccess resets the failure counter, clears any lock, and stamps
// last_login in a single update.
func (r *AccountRepository) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("failed_attempts", 0).
		Set("locked_until", nil).
		Set("last_login", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login success sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// IncrementAttemptsAndMaybeLock bumps the failure counter and sets the lock
// expiry when the new count reaches the threshold. The increment and the
// conditional lock execute as one statement so concurrent failures cannot
// both read a stale counter and slip under the threshold.
func (r *AccountRepository) IncrementAttemptsAndMaybeLock(ctx context.Context, id string, threshold int, lockDuration time.Duration, now time.Time) (port.LockoutResult, error) {
	const stmt = `
		UPDATE auth.accounts
		SET failed_attempts = failed_attempts + 1,
		    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3::timestamptz ELSE locked_until END
		WHERE id = $1
		RETURNING failed_attempts, locked_until`

	var (
		attempts    int
		lockedUntil *time.Time
	)

	lockExpiry := now.Add(lockDuration)
	if err := r.exec.QueryRow(ctx, stmt, id, threshold, lockExpiry).Scan(&attempts, &lockedUntil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return port.LockoutResult{}, repository.ErrNotFound
		}
		return port.LockoutResult{}, fmt.Errorf("increment failed attempts: %w", err)
	}

	return port.LockoutResult{
		FailedAttempts: attempts,
		Locked:         attempts >= threshold,
		LockedUntil:    lockedUntil,
	}, nil
}

// ClearLockout zeroes the failure counter and removes the lock expiry.
func (r *AccountRepository) ClearLockout(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("failed_attempts", 0).
		Set("locked_until", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear lockout sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetResetCode stores the hashed recovery code and its expiry. Any previously
// issued code is overwritten by the same update.
func (r *AccountRepository) SetResetCode(ctx context.Context, id string, codeHash string, expiresAt time.Time) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("reset_code_hash", codeHash).
		Set("reset_code_expires_at", expiresAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set reset code sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set reset code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ClearResetCode removes any stored recovery code.
func (r *AccountRepository) ClearResetCode(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("reset_code_hash", nil).
		Set("reset_code_expires_at", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear reset code sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("clear reset code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdatePassword installs a new password hash. The same update stamps
// password_changed_at, clears the recovery code, and resets the lockout state.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("password_hash", passwordHash).
		Set("password_changed_at", changedAt).
		Set("reset_code_hash", nil).
		Set("reset_code_expires_at", nil).
		Set("failed_attempts", 0).
		Set("locked_until", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Deactivate flips the active flag and replaces the unique identifiers with
// their defaced variants so the originals become reusable.
func (r *AccountRepository) Deactivate(ctx context.Context, id string, defacedUsername, defacedEmail string) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("is_active", false).
		Set("username", defacedUsername).
		Set("email", defacedEmail).
		Where(squirrel.Eq{"id": id, "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate account sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *AccountRepository) scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account            domain.Account
		phone              *string
		lockedUntil        *time.Time
		passwordChangedAt  *time.Time
		resetCodeHash      *string
		resetCodeExpiresAt *time.Time
		lastLogin          *time.Time
	)

	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&phone,
		&account.PasswordHash,
		&account.IsActive,
		&account.FailedAttempts,
		&lockedUntil,
		&passwordChangedAt,
		&resetCodeHash,
		&resetCodeExpiresAt,
		&lastLogin,
		&account.RegisteredAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	account.Phone = phone
	account.LockedUntil = lockedUntil
	account.PasswordChangedAt = passwordChangedAt
	account.ResetCodeHash = resetCodeHash
	account.ResetCodeExpiresAt = resetCodeExpiresAt
	account.LastLogin = lastLogin

	return &account, nil
}

func mapUniqueViolation(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch {
		case strings.Contains(pgErr.ConstraintName, "username"):
			return repository.ErrDuplicateUsername
		case strings.Contains(pgErr.ConstraintName, "email"):
			return repository.ErrDuplicateEmail
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ port.AccountRepository = (*AccountRepository)(nil)
