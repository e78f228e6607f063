package db

import (
	"context"
	"errors"
	"fmt"

	"famfin-server/src/db"
	"famfin-server/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, username, email, first_name, last_name, password_hash, super_admin, locked,
	two_factor_enabled, totp_secret, created_at, last_login`

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.SuperAdmin,
		&user.Locked,
		&user.TwoFactorEnabled,
		&user.TOTPSecret,
		&user.CreatedAt,
		&user.LastLogin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query error: %w", err)
	}
	return &user, nil
}

func GetUserByID(ctx context.Context, pool *pgxpool.Pool, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(pool.QueryRow(ctx, query, id))
}

func GetUserByUsername(ctx context.Context, pool *pgxpool.Pool, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER($1)`
	return scanUser(pool.QueryRow(ctx, query, username))
}

func GetUserByEmail(ctx context.Context, pool *pgxpool.Pool, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(pool.QueryRow(ctx, query, email))
}

func CreateUser(ctx context.Context, pool *pgxpool.Pool, req models.RegisterRequest, hashedPassword string) (*models.User, error) {
	query := `
		INSERT INTO users (first_name, last_name, username, email, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	user, err := scanUser(pool.QueryRow(ctx, query,
		req.FirstName,
		req.LastName,
		req.Username,
		req.Email,
		hashedPassword,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func UpdateUserLastLogin(ctx context.Context, pool *pgxpool.Pool, userID int64) error {
	_, err := pool.Exec(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, userID)
	return err
}

func UpdateUserPassword(ctx context.Context, pool *pgxpool.Pool, userID int64, hashedPassword string) error {
	query := `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`
	return execOne(ctx, pool, ErrUserNotFound, query, hashedPassword, userID)
}

// SetPendingTOTPSecret stores a secret that is not yet active. Enrollment
// completes once EnableTwoFactor is called after a successful verification.
func SetPendingTOTPSecret(ctx context.Context, pool *pgxpool.Pool, userID int64, secret string) error {
	query := `
		UPDATE users SET totp_secret = $1, updated_at = NOW()
		WHERE id = $2 AND two_factor_enabled = FALSE
	`
	return execOne(ctx, pool, ErrUserNotFound, query, secret, userID)
}

func EnableTwoFactor(ctx context.Context, pool *pgxpool.Pool, userID int64) error {
	query := `
		UPDATE users SET two_factor_enabled = TRUE, updated_at = NOW()
		WHERE id = $1 AND totp_secret IS NOT NULL
	`
	return execOne(ctx, pool, ErrUserNotFound, query, userID)
}

func DisableTwoFactor(ctx context.Context, pool *pgxpool.Pool, userID int64) error {
	query := `
		UPDATE users SET two_factor_enabled = FALSE, totp_secret = NULL, updated_at = NOW()
		WHERE id = $1
	`
	return execOne(ctx, pool, ErrUserNotFound, query, userID)
}

func DeleteUser(ctx context.Context, pool *pgxpool.Pool, userID int64) error {
	if err := execOne(ctx, pool, ErrUserNotFound, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	db.DelRuleCache(userID)
	db.ClearAllTransactionCaches()
	db.ClearAllAccountCaches()
	return nil
}

// execOne runs a statement that must touch exactly one row and returns
// notFound when it touched none.
func execOne(ctx context.Context, pool *pgxpool.Pool, notFound error, query string, args ...any) error {
	cmd, err := pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return notFound
	}
	return nil
}
