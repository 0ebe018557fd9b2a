package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	authcore "github.com/quantconsole/authcore"
)

const pgUniqueViolation = "23505"

// UserStore is the Postgres-backed account store.
type UserStore struct {
	db DBTX
}

func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, email, username, first_name, last_name, password_hash, role, is_active,
	two_factor_enabled, COALESCE(two_factor_secret, ''), last_login_at,
	COALESCE(last_login_ip, ''), created_at`

// CreateUser inserts the account and fills in ID and CreatedAt. Unique
// constraint violations map to ErrEmailTaken or ErrUsernameTaken, which the
// engine treats as the authoritative conflict signal.
func (s *UserStore) CreateUser(ctx context.Context, user *authcore.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now

	query := `INSERT INTO users
		(id, email, username, first_name, last_name, password_hash, role, is_active, two_factor_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Username, user.FirstName, user.LastName,
		user.PasswordHash, user.Role, user.IsActive, user.TwoFactorEnabled, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			switch pgErr.ConstraintName {
			case "users_username_key", "idx_users_username":
				return authcore.ErrUsernameTaken
			default:
				return authcore.ErrEmailTaken
			}
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (s *UserStore) GetUserByID(ctx context.Context, id string) (*authcore.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*authcore.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*authcore.User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *UserStore) getUser(ctx context.Context, column, value string) (*authcore.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE %s = $1", userColumns, column)

	var (
		user      authcore.User
		lastLogin sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID, &user.Email, &user.Username, &user.FirstName, &user.LastName,
		&user.PasswordHash, &user.Role, &user.IsActive, &user.TwoFactorEnabled,
		&user.TwoFactorSecret, &lastLogin, &user.LastLoginIP, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}

	return &user, nil
}

func (s *UserStore) UpdateLastLogin(ctx context.Context, id string, at time.Time, ip string) error {
	return s.updateUser(ctx, id,
		`UPDATE users SET last_login_at = $2, last_login_ip = NULLIF($3, ''), updated_at = $2 WHERE id = $1`, at, ip)
}

func (s *UserStore) SetTwoFactorSecret(ctx context.Context, id, secret string) error {
	return s.updateUser(ctx, id,
		`UPDATE users SET two_factor_secret = $2, updated_at = NOW() WHERE id = $1`, secret)
}

func (s *UserStore) EnableTwoFactor(ctx context.Context, id string) error {
	return s.updateUser(ctx, id,
		`UPDATE users SET two_factor_enabled = TRUE, updated_at = NOW() WHERE id = $1`)
}

func (s *UserStore) DisableTwoFactor(ctx context.Context, id string) error {
	return s.updateUser(ctx, id,
		`UPDATE users SET two_factor_enabled = FALSE, two_factor_secret = NULL, updated_at = NOW() WHERE id = $1`)
}

func (s *UserStore) updateUser(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

// ReplaceBackupCodes swaps the user's backup code set in one transaction
// when the store is bound to a *sql.DB; bound to a *sql.Tx it joins the
// caller's transaction.
func (s *UserStore) ReplaceBackupCodes(ctx context.Context, id string, hashes []string) error {
	run := func(db DBTX) error {
		if _, err := db.ExecContext(ctx,
			`DELETE FROM user_backup_codes WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("clear backup codes: %w", err)
		}
		now := time.Now().UTC()
		for _, hash := range hashes {
			if _, err := db.ExecContext(ctx,
				`INSERT INTO user_backup_codes (user_id, code_hash, created_at) VALUES ($1, $2, $3)`,
				id, hash, now); err != nil {
				return fmt.Errorf("insert backup code: %w", err)
			}
		}
		return nil
	}

	if db, ok := s.db.(*sql.DB); ok {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		if err := run(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	}

	return run(s.db)
}

// ConsumeBackupCode deletes one matching code hash and reports whether it
// existed. The DELETE makes redemption single-use without a separate read.
func (s *UserStore) ConsumeBackupCode(ctx context.Context, id, hash string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_backup_codes WHERE user_id = $1 AND code_hash = $2`, id, hash)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return affected > 0, nil
}
