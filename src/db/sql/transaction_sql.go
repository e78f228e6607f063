package db

import (
	"context"
	"errors"
	"fmt"

	"famfin-server/src/db"
	"famfin-server/src/fingerprint"
	"famfin-server/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transactionColumns = `id, user_id, account_id, plaid_transaction_id, merchant, amount, booked_at,
	original_currency, category_major, category_minor, category_confidence, source, fingerprint,
	pending, created_at, updated_at, deleted_at`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.AccountID,
		&t.PlaidTransactionID,
		&t.Merchant,
		&t.Amount,
		&t.BookedAt,
		&t.OriginalCurrency,
		&t.Category.Major,
		&t.Category.Minor,
		&t.Category.Confidence,
		&t.Source,
		&t.Fingerprint,
		&t.Pending,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

func queryTransactions(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]models.Transaction, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *t)
	}
	return transactions, rows.Err()
}

// InsertTransaction fingerprints tx, applies the owner's active rules and
// stores it. The second return value is false when a live transaction with
// the same fingerprint already exists for the user; nothing is written then.
// Soft-deleted transactions never count as duplicates.
func InsertTransaction(ctx context.Context, pool *pgxpool.Pool, tx models.Transaction) (*models.Transaction, bool, error) {
	tx.Fingerprint = fingerprint.Of(tx)

	tx, err := categorize(ctx, pool, tx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to apply transaction rules: %w", err)
	}

	query := `
		INSERT INTO transactions (user_id, account_id, plaid_transaction_id, merchant, amount, booked_at,
			original_currency, category_major, category_minor, category_confidence, source, fingerprint, pending)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, fingerprint) WHERE deleted_at IS NULL DO NOTHING
		RETURNING ` + transactionColumns

	created, err := scanTransaction(pool.QueryRow(ctx, query,
		tx.UserID,
		tx.AccountID,
		tx.PlaidTransactionID,
		tx.Merchant,
		tx.Amount,
		tx.BookedAt,
		tx.OriginalCurrency,
		tx.Category.Major,
		tx.Category.Minor,
		tx.Category.Confidence,
		tx.Source,
		tx.Fingerprint,
		tx.Pending,
	))
	if errors.Is(err, ErrTransactionNotFound) {
		return nil, false, nil
	}
	if name, ok := uniqueViolation(err); ok && name == plaidTransactionKey {
		return nil, false, ErrPlaidTransactionConflict
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert transaction: %w", err)
	}

	if created.AccountID != nil {
		db.DelTransactionCache(db.TransactionCacheKey(created.UserID, *created.AccountID))
	}
	return created, true, nil
}

func GetTransactionByID(ctx context.Context, pool *pgxpool.Pool, userID, transactionID int64) (*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`
	return scanTransaction(pool.QueryRow(ctx, query, transactionID, userID))
}

func GetTransactionsByUser(ctx context.Context, pool *pgxpool.Pool, userID int64) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY booked_at DESC, id DESC
	`
	return queryTransactions(ctx, pool, query, userID)
}

func GetTransactionsByAccount(ctx context.Context, pool *pgxpool.Pool, userID, accountID int64) ([]models.Transaction, error) {
	cacheKey := db.TransactionCacheKey(userID, accountID)
	if cached, ok := db.GetTransactionCache(cacheKey); ok {
		if transactions, ok := cached.([]models.Transaction); ok {
			return transactions, nil
		}
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1 AND account_id = $2 AND deleted_at IS NULL
		ORDER BY booked_at DESC, id DESC
	`
	transactions, err := queryTransactions(ctx, pool, query, userID, accountID)
	if err != nil {
		return nil, err
	}
	db.SetTransactionCache(cacheKey, transactions)
	return transactions, nil
}

func UpdateTransactionCategory(ctx context.Context, pool *pgxpool.Pool, userID, transactionID int64, category models.Category) error {
	query := `
		UPDATE transactions
		SET category_major = $1, category_minor = $2, category_confidence = $3, updated_at = NOW()
		WHERE id = $4 AND user_id = $5 AND deleted_at IS NULL
	`
	return execOne(ctx, pool, ErrTransactionNotFound, query,
		category.Major, category.Minor, category.Confidence, transactionID, userID)
}

func SoftDeleteTransaction(ctx context.Context, pool *pgxpool.Pool, userID, transactionID int64) error {
	query := `
		UPDATE transactions SET deleted_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`
	if err := execOne(ctx, pool, ErrTransactionNotFound, query, transactionID, userID); err != nil {
		return err
	}
	db.ClearAllTransactionCaches()
	return nil
}

// RemoveSyncedTransactions soft-deletes transactions Plaid reported as removed.
func RemoveSyncedTransactions(ctx context.Context, pool *pgxpool.Pool, userID int64, plaidTransactionIDs []string) (int64, error) {
	if len(plaidTransactionIDs) == 0 {
		return 0, nil
	}
	query := `
		UPDATE transactions SET deleted_at = NOW()
		WHERE user_id = $1 AND plaid_transaction_id = ANY($2) AND deleted_at IS NULL
	`
	cmd, err := pool.Exec(ctx, query, userID, plaidTransactionIDs)
	if err != nil {
		return 0, err
	}
	db.ClearAllTransactionCaches()
	return cmd.RowsAffected(), nil
}

// UpdateSyncedTransaction refreshes the bank-owned fields of a transaction
// Plaid reported as modified. The user's category is left alone.
// Soft-deleted transactions are not touched. ErrDuplicateTransaction is
// returned when the new fields match another live transaction.
func UpdateSyncedTransaction(ctx context.Context, pool *pgxpool.Pool, tx models.Transaction) error {
	if tx.PlaidTransactionID == nil {
		return ErrTransactionNotFound
	}
	query := `
		UPDATE transactions
		SET merchant = $1, amount = $2, booked_at = $3, original_currency = $4, pending = $5,
			fingerprint = $6, updated_at = NOW()
		WHERE user_id = $7 AND plaid_transaction_id = $8 AND deleted_at IS NULL
	`
	err := execOne(ctx, pool, ErrTransactionNotFound, query,
		tx.Merchant, tx.Amount, tx.BookedAt, tx.OriginalCurrency, tx.Pending,
		fingerprint.Of(tx), tx.UserID, *tx.PlaidTransactionID)
	if name, ok := uniqueViolation(err); ok && name == fingerprintIndex {
		return ErrDuplicateTransaction
	}
	if err != nil {
		return err
	}
	db.ClearAllTransactionCaches()
	return nil
}
