package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrRuleNotFound        = errors.New("transaction rule not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrPlaidItemNotFound   = errors.New("plaid item not found")

	// ErrDuplicateTransaction is returned when a change would give a live
	// transaction the fingerprint of another live transaction.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrPlaidTransactionConflict is returned when a Plaid transaction id is
	// already stored.
	ErrPlaidTransactionConflict = errors.New("plaid transaction already stored")
)

const (
	fingerprintIndex     = "transactions_user_fingerprint_live_idx"
	plaidTransactionKey  = "transactions_plaid_transaction_id_key"
	uniqueViolationState = "23505"
)

// uniqueViolation reports which unique constraint err violated, if any.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationState {
		return pgErr.ConstraintName, true
	}
	return "", false
}

type rowScanner interface {
	Scan(dest ...any) error
}
