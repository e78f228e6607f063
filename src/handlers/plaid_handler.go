package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	db "famfin-server/src/db/sql"
	"famfin-server/src/models"
	bank "famfin-server/src/plaid"
	"famfin-server/src/util"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plaid/plaid-go/v41/plaid"
)

func CreateLinkToken(plaidClient *plaid.APIClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		user := plaid.LinkTokenCreateRequestUser{
			ClientUserId: strconv.FormatInt(userID, 10),
		}
		request := plaid.NewLinkTokenCreateRequest(
			"Famfin",
			"en",
			[]plaid.CountryCode{plaid.COUNTRYCODE_US},
		)
		request.SetUser(user)
		request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})
		resp, _, err := plaidClient.PlaidApi.LinkTokenCreate(r.Context()).LinkTokenCreateRequest(*request).Execute()
		if err != nil {
			log.Errorf("Plaid link token creation failed for user %d: %v", userID, err)
			http.Error(w, "Failed to create link token", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, resp.GetLinkToken())
	}
}

func ExchangePublicToken(plaidClient *plaid.APIClient, pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		var req struct {
			PublicToken string `json:"public_token" validate:"required"`
		}
		if err := util.DecodeAndValidate(r, &req); err != nil {
			log.Errorf("Failed to decode exchange public token request body: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		exchangeReq := plaid.NewItemPublicTokenExchangeRequest(req.PublicToken)
		exchangeResp, _, err := plaidClient.PlaidApi.ItemPublicTokenExchange(r.Context()).ItemPublicTokenExchangeRequest(
			*exchangeReq,
		).Execute()
		if err != nil {
			log.Errorf("Plaid public token exchange failed for user %d: %v", userID, err)
			http.Error(w, "Failed to exchange public token", http.StatusInternalServerError)
			return
		}

		accessToken := exchangeResp.GetAccessToken()
		itemID := exchangeResp.GetItemId()
		institutionID, institutionName := institutionDetails(r.Context(), plaidClient, accessToken)

		item, err := db.SavePlaidItem(r.Context(), pool, userID, itemID, accessToken, institutionID, institutionName)
		if err != nil {
			log.Errorf("Failed to save plaid item for user %d: %v", userID, err)
			http.Error(w, "Failed to save plaid item", http.StatusInternalServerError)
			return
		}

		log.Infof("Successfully exchanged public token and saved plaid item for user %d, item %s", userID, itemID)
		writeJSON(w, http.StatusCreated, item)
	}
}

// institutionDetails looks up the institution behind an item. The details are
// cosmetic, so failures are logged and empty strings returned.
func institutionDetails(ctx context.Context, plaidClient *plaid.APIClient, accessToken string) (string, string) {
	itemResp, _, err := plaidClient.PlaidApi.ItemGet(ctx).ItemGetRequest(*plaid.NewItemGetRequest(accessToken)).Execute()
	if err != nil {
		log.Warnf("Failed to fetch item details: %v", err)
		return "", ""
	}
	item := itemResp.GetItem()
	institutionID := item.GetInstitutionId()
	if institutionID == "" {
		return "", ""
	}

	instReq := plaid.NewInstitutionsGetByIdRequest(institutionID, []plaid.CountryCode{plaid.COUNTRYCODE_US})
	instResp, _, err := plaidClient.PlaidApi.InstitutionsGetById(ctx).InstitutionsGetByIdRequest(*instReq).Execute()
	if err != nil {
		log.Warnf("Failed to fetch institution %s: %v", institutionID, err)
		return institutionID, ""
	}
	institution := instResp.GetInstitution()
	return institutionID, institution.GetName()
}

func itemIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "item_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return 0, false
	}
	return itemID, true
}

func GetPlaidItemsFromDB(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		items, err := db.GetPlaidItemsSQL(r.Context(), pool, userID)
		if err != nil {
			log.Errorf("Failed to get plaid items for user %d: %v", userID, err)
			http.Error(w, "Failed to retrieve plaid items", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// GetPlaidAccounts refreshes the item's accounts from Plaid and returns the
// stored copies.
func GetPlaidAccounts(plaidClient *plaid.APIClient, pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}
		itemID, ok := itemIDParam(w, r)
		if !ok {
			return
		}

		item, err := db.GetPlaidItemByID(r.Context(), pool, userID, itemID)
		if err != nil {
			log.Errorf("Failed to get access token for user %d, item %d: %v", userID, itemID, err)
			http.Error(w, "Access token not found", http.StatusNotFound)
			return
		}

		request := plaid.NewAccountsGetRequest(item.AccessToken)
		accountsResp, _, err := plaidClient.PlaidApi.AccountsGet(r.Context()).AccountsGetRequest(*request).Execute()
		if err != nil {
			log.Errorf("Failed to fetch accounts for user %d, item %d: %v", userID, itemID, err)
			http.Error(w, "Failed to fetch accounts from Plaid", http.StatusInternalServerError)
			return
		}

		if err := db.SaveAccounts(r.Context(), pool, userID, item.ID, accountsResp.GetAccounts()); err != nil {
			log.Errorf("Failed to save accounts for user %d: %v", userID, err)
			http.Error(w, "Failed to save accounts", http.StatusInternalServerError)
			return
		}

		accounts, err := db.GetAccountsSQL(r.Context(), pool, userID, item.ID)
		if err != nil {
			log.Errorf("Failed to get accounts for user %d, item %d: %v", userID, itemID, err)
			http.Error(w, "Failed to retrieve accounts", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

func GetAccountsFromDB(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}
		itemID, ok := itemIDParam(w, r)
		if !ok {
			return
		}

		accounts, err := db.GetAccountsSQL(r.Context(), pool, userID, itemID)
		if err != nil {
			log.Errorf("Failed to get accounts for user %d, item %d: %v", userID, itemID, err)
			http.Error(w, "Failed to retrieve accounts", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

type syncSummary struct {
	Added      int   `json:"added"`
	Duplicates int   `json:"duplicates"`
	Modified   int   `json:"modified"`
	Removed    int64 `json:"removed"`
}

// syncStore is the part of the database layer a sync writes through.
type syncStore interface {
	InsertTransaction(ctx context.Context, tx models.Transaction) (*models.Transaction, bool, error)
	UpdateSyncedTransaction(ctx context.Context, tx models.Transaction) error
	RemoveSyncedTransactions(ctx context.Context, userID int64, plaidTransactionIDs []string) (int64, error)
}

type poolStore struct {
	pool *pgxpool.Pool
}

func (s poolStore) InsertTransaction(ctx context.Context, tx models.Transaction) (*models.Transaction, bool, error) {
	return db.InsertTransaction(ctx, s.pool, tx)
}

func (s poolStore) UpdateSyncedTransaction(ctx context.Context, tx models.Transaction) error {
	return db.UpdateSyncedTransaction(ctx, s.pool, tx)
}

func (s poolStore) RemoveSyncedTransactions(ctx context.Context, userID int64, plaidTransactionIDs []string) (int64, error) {
	return db.RemoveSyncedTransactions(ctx, s.pool, userID, plaidTransactionIDs)
}

// syncItem pulls every pending update for item, stores new transactions
// through the fingerprint and rule pipeline and advances the cursor.
func syncItem(ctx context.Context, plaidClient *plaid.APIClient, pool *pgxpool.Pool, item *models.PlaidItem) (syncSummary, error) {
	cursor, err := db.GetSyncCursor(ctx, pool, item.ID)
	if err != nil {
		return syncSummary{}, fmt.Errorf("get sync cursor: %w", err)
	}

	result, err := bank.Sync(ctx, plaidClient, item.AccessToken, cursor)
	if err != nil {
		return syncSummary{}, err
	}

	accountIDs, err := db.GetAccountIDsByPlaidID(ctx, pool, item.UserID)
	if err != nil {
		return syncSummary{}, fmt.Errorf("get accounts: %w", err)
	}

	summary, err := applySync(ctx, poolStore{pool: pool}, item.UserID, accountIDs, result)
	if err != nil {
		return summary, err
	}

	if err := db.UpdateSyncCursor(ctx, pool, item.ID, result.NextCursor); err != nil {
		return summary, fmt.Errorf("update sync cursor: %w", err)
	}

	log.Info("Plaid sync finished", "user_id", item.UserID, "item_id", item.ID,
		"added", summary.Added, "duplicates", summary.Duplicates, "modified", summary.Modified, "removed", summary.Removed)
	return summary, nil
}

// applySync writes one sync result for userID. Removals go first so a
// pending transaction that posts under a new id frees its fingerprint
// before the posted copy is inserted.
func applySync(ctx context.Context, store syncStore, userID int64, accountIDs map[string]int64, result bank.SyncResult) (syncSummary, error) {
	var summary syncSummary

	accountRef := func(plaidAccountID string) *int64 {
		if id, ok := accountIDs[plaidAccountID]; ok {
			return &id
		}
		return nil
	}

	removed, err := store.RemoveSyncedTransactions(ctx, userID, result.Removed)
	if err != nil {
		return summary, fmt.Errorf("remove transactions: %w", err)
	}
	summary.Removed = removed

	for _, synced := range result.Added {
		tx, err := synced.ToTransaction(userID, accountRef(synced.AccountID))
		if err != nil {
			log.Warnf("Skipping synced transaction for user %d: %v", userID, err)
			continue
		}
		_, inserted, err := store.InsertTransaction(ctx, tx)
		if errors.Is(err, db.ErrPlaidTransactionConflict) {
			log.Warnf("Plaid transaction %s already stored for user %d", synced.TransactionID, userID)
			summary.Duplicates++
			continue
		}
		if err != nil {
			return summary, err
		}
		if inserted {
			summary.Added++
		} else {
			summary.Duplicates++
		}
	}

	for _, synced := range result.Modified {
		tx, err := synced.ToTransaction(userID, accountRef(synced.AccountID))
		if err != nil {
			log.Warnf("Skipping modified transaction for user %d: %v", userID, err)
			continue
		}
		err = store.UpdateSyncedTransaction(ctx, tx)
		switch {
		case errors.Is(err, db.ErrDuplicateTransaction):
			log.Infof("Modified transaction %s duplicates an existing transaction for user %d", synced.TransactionID, userID)
			summary.Duplicates++
		case errors.Is(err, db.ErrTransactionNotFound):
			log.Warnf("Modified transaction %s not found for user %d", synced.TransactionID, userID)
		case err != nil:
			return summary, fmt.Errorf("update transaction %s: %w", synced.TransactionID, err)
		default:
			summary.Modified++
		}
	}

	return summary, nil
}

func SyncTransactions(plaidClient *plaid.APIClient, pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}
		itemID, ok := itemIDParam(w, r)
		if !ok {
			return
		}

		item, err := db.GetPlaidItemByID(r.Context(), pool, userID, itemID)
		if err != nil {
			log.Errorf("Failed to get access token for user %d, item %d: %v", userID, itemID, err)
			http.Error(w, "Access token not found", http.StatusNotFound)
			return
		}

		summary, err := syncItem(r.Context(), plaidClient, pool, item)
		if err != nil {
			log.Errorf("Failed to sync transactions for user %d, item %d: %v", userID, itemID, err)
			http.Error(w, "Failed to sync transactions", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func DeletePlaidItem(plaidClient *plaid.APIClient, pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}
		itemID, ok := itemIDParam(w, r)
		if !ok {
			return
		}

		item, err := db.GetPlaidItemByID(r.Context(), pool, userID, itemID)
		if err != nil {
			http.Error(w, "plaid item not found", http.StatusNotFound)
			return
		}

		removeReq := plaid.NewItemRemoveRequest(item.AccessToken)
		if _, _, err := plaidClient.PlaidApi.ItemRemove(r.Context()).ItemRemoveRequest(*removeReq).Execute(); err != nil {
			log.Warnf("Plaid item removal failed for user %d, item %d: %v", userID, itemID, err)
		}

		if err := db.DeletePlaidItem(r.Context(), pool, userID, itemID); err != nil {
			log.Errorf("Failed to delete plaid item %d for user %d: %v", itemID, userID, err)
			http.Error(w, "failed to delete plaid item", http.StatusInternalServerError)
			return
		}

		log.Infof("Deleted plaid item %d for user %d", itemID, userID)
		writeJSON(w, http.StatusOK, map[string]string{"message": "plaid item deleted"})
	}
}

type webhookPayload struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
}

// PlaidWebhook verifies and handles Plaid webhooks. SYNC_UPDATES_AVAILABLE
// runs a sync for the item in the background; everything else is logged.
func PlaidWebhook(plaidClient *plaid.APIClient, pool *pgxpool.Pool, fetchKey util.KeyFetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		if err := util.VerifyWebhook(r.Context(), fetchKey, body, r.Header, time.Now()); err != nil {
			log.Errorf("Rejected Plaid webhook: %v", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		log.Info("Plaid webhook received", "type", payload.WebhookType, "code", payload.WebhookCode, "item_id", payload.ItemID)

		if payload.WebhookType == "TRANSACTIONS" && payload.WebhookCode == "SYNC_UPDATES_AVAILABLE" {
			item, err := db.GetPlaidItemByItemID(r.Context(), pool, payload.ItemID)
			if errors.Is(err, db.ErrPlaidItemNotFound) {
				log.Warnf("Webhook for unknown plaid item %s", payload.ItemID)
			} else if err != nil {
				log.Errorf("Failed to look up plaid item %s: %v", payload.ItemID, err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			} else {
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
					defer cancel()
					if _, err := syncItem(ctx, plaidClient, pool, item); err != nil {
						log.Errorf("Webhook sync failed for item %s: %v", payload.ItemID, err)
					}
				}()
			}
		}

		w.WriteHeader(http.StatusOK)
	}
}
