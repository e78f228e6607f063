package db

import (
	"context"
	"errors"

	"famfin-server/src/db"
	"famfin-server/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plaid/plaid-go/v41/plaid"
)

const plaidItemColumns = `id, user_id, access_token, item_id, institution_id, institution_name, created_at`

func scanPlaidItem(row rowScanner) (*models.PlaidItem, error) {
	var item models.PlaidItem
	err := row.Scan(&item.ID, &item.UserID, &item.AccessToken, &item.ItemID, &item.InstitutionID, &item.InstitutionName, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlaidItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func GetPlaidItemsSQL(ctx context.Context, pool *pgxpool.Pool, userID int64) ([]models.PlaidItem, error) {
	query := `SELECT ` + plaidItemColumns + ` FROM plaid_items WHERE user_id = $1 ORDER BY id`

	rows, err := pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.PlaidItem{}
	for rows.Next() {
		item, err := scanPlaidItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

func GetPlaidItemByID(ctx context.Context, pool *pgxpool.Pool, userID, itemID int64) (*models.PlaidItem, error) {
	query := `SELECT ` + plaidItemColumns + ` FROM plaid_items WHERE user_id = $1 AND id = $2`
	return scanPlaidItem(pool.QueryRow(ctx, query, userID, itemID))
}

// GetPlaidItemByItemID looks an item up by Plaid's own item id, as carried
// in webhooks.
func GetPlaidItemByItemID(ctx context.Context, pool *pgxpool.Pool, plaidItemID string) (*models.PlaidItem, error) {
	query := `SELECT ` + plaidItemColumns + ` FROM plaid_items WHERE item_id = $1`
	return scanPlaidItem(pool.QueryRow(ctx, query, plaidItemID))
}

func SavePlaidItem(ctx context.Context, pool *pgxpool.Pool, userID int64, itemID, accessToken, institutionID, institutionName string) (*models.PlaidItem, error) {
	query := `
		INSERT INTO plaid_items (user_id, item_id, access_token, institution_id, institution_name, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		ON CONFLICT (item_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			institution_id = EXCLUDED.institution_id,
			institution_name = EXCLUDED.institution_name
		RETURNING ` + plaidItemColumns

	return scanPlaidItem(pool.QueryRow(ctx, query, userID, itemID, accessToken, institutionID, institutionName))
}

func DeletePlaidItem(ctx context.Context, pool *pgxpool.Pool, userID, itemID int64) error {
	if err := execOne(ctx, pool, ErrPlaidItemNotFound, `DELETE FROM plaid_items WHERE id = $1 AND user_id = $2`, itemID, userID); err != nil {
		return err
	}
	db.DelAccountCache(db.AccountCacheKey(userID, itemID))
	db.ClearAllTransactionCaches()
	return nil
}

func GetAccountsSQL(ctx context.Context, pool *pgxpool.Pool, userID, itemID int64) ([]models.Account, error) {
	cacheKey := db.AccountCacheKey(userID, itemID)
	if cached, ok := db.GetAccountCache(cacheKey); ok {
		if accounts, ok := cached.([]models.Account); ok {
			return accounts, nil
		}
	}

	query := `
		SELECT a.id, a.item_id, a.account_id, a.name, a.official_name, a.mask, a.type, a.subtype, a.current_balance, a.available_balance, a.created_at
		FROM accounts a
		JOIN plaid_items p ON a.item_id = p.id
		WHERE p.user_id = $1 AND p.id = $2
		ORDER BY a.id
	`

	rows, err := pool.Query(ctx, query, userID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var account models.Account
		err := rows.Scan(&account.ID, &account.ItemID, &account.AccountID, &account.Name, &account.OfficialName, &account.Mask, &account.Type, &account.Subtype, &account.CurrentBalance, &account.AvailableBalance, &account.CreatedAt)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	db.SetAccountCache(cacheKey, accounts)
	return accounts, nil
}

// GetAccountIDsByPlaidID maps Plaid account ids to local account ids for
// every account the user has linked.
func GetAccountIDsByPlaidID(ctx context.Context, pool *pgxpool.Pool, userID int64) (map[string]int64, error) {
	query := `
		SELECT a.account_id, a.id
		FROM accounts a
		JOIN plaid_items p ON a.item_id = p.id
		WHERE p.user_id = $1
	`
	rows, err := pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var plaidID string
		var id int64
		if err := rows.Scan(&plaidID, &id); err != nil {
			return nil, err
		}
		ids[plaidID] = id
	}
	return ids, rows.Err()
}

func SaveAccounts(ctx context.Context, pool *pgxpool.Pool, userID, itemID int64, accounts []plaid.AccountBase) error {
	query := `
		INSERT INTO accounts (item_id, account_id, name, official_name, mask, type, subtype, current_balance, available_balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account_id) DO UPDATE SET
			name = EXCLUDED.name,
			official_name = EXCLUDED.official_name,
			current_balance = EXCLUDED.current_balance,
			available_balance = EXCLUDED.available_balance,
			updated_at = NOW()
	`
	for _, acc := range accounts {
		balances := acc.GetBalances()
		_, err := pool.Exec(ctx, query,
			itemID,
			acc.GetAccountId(),
			acc.GetName(),
			nullIfEmpty(acc.GetOfficialName()),
			nullIfEmpty(acc.GetMask()),
			string(acc.GetType()),
			nullIfEmpty(string(acc.GetSubtype())),
			balances.Current.Get(),
			balances.Available.Get(),
		)
		if err != nil {
			return err
		}
	}

	db.DelAccountCache(db.AccountCacheKey(userID, itemID))
	return nil
}

func GetSyncCursor(ctx context.Context, pool *pgxpool.Pool, itemID int64) (string, error) {
	query := `SELECT COALESCE(sync_cursor, '') FROM plaid_items WHERE id = $1`
	var cursor string
	err := pool.QueryRow(ctx, query, itemID).Scan(&cursor)
	if err != nil {
		return "", err
	}
	return cursor, nil
}

func UpdateSyncCursor(ctx context.Context, pool *pgxpool.Pool, itemID int64, cursor string) error {
	query := `UPDATE plaid_items SET sync_cursor = $1 WHERE id = $2`
	_, err := pool.Exec(ctx, query, cursor, itemID)
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
