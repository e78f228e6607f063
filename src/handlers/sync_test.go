package handlers

import (
	"context"
	"errors"
	"testing"

	db "famfin-server/src/db/sql"
	"famfin-server/src/fingerprint"
	"famfin-server/src/models"
	bank "famfin-server/src/plaid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storedTransaction struct {
	tx      models.Transaction
	deleted bool
}

// memoryStore keeps transactions in memory with the same uniqueness rules as
// the transactions table: fingerprints are unique among live rows and Plaid
// transaction ids are unique among all rows.
type memoryStore struct {
	rows  []*storedTransaction
	calls []string
}

func (m *memoryStore) live(userID int64) []models.Transaction {
	var out []models.Transaction
	for _, r := range m.rows {
		if r.tx.UserID == userID && !r.deleted {
			out = append(out, r.tx)
		}
	}
	return out
}

func (m *memoryStore) InsertTransaction(_ context.Context, tx models.Transaction) (*models.Transaction, bool, error) {
	m.calls = append(m.calls, "insert")
	tx.Fingerprint = fingerprint.Of(tx)
	for _, r := range m.rows {
		if r.tx.UserID == tx.UserID && !r.deleted && r.tx.Fingerprint == tx.Fingerprint {
			return nil, false, nil
		}
	}
	for _, r := range m.rows {
		if tx.PlaidTransactionID != nil && r.tx.PlaidTransactionID != nil && *r.tx.PlaidTransactionID == *tx.PlaidTransactionID {
			return nil, false, db.ErrPlaidTransactionConflict
		}
	}
	m.rows = append(m.rows, &storedTransaction{tx: tx})
	return &tx, true, nil
}

func (m *memoryStore) UpdateSyncedTransaction(_ context.Context, tx models.Transaction) error {
	m.calls = append(m.calls, "update")
	fp := fingerprint.Of(tx)
	var target *storedTransaction
	for _, r := range m.rows {
		if r.deleted || r.tx.UserID != tx.UserID {
			continue
		}
		if *r.tx.PlaidTransactionID == *tx.PlaidTransactionID {
			target = r
		}
	}
	if target == nil {
		return db.ErrTransactionNotFound
	}
	for _, r := range m.rows {
		if r != target && !r.deleted && r.tx.UserID == tx.UserID && r.tx.Fingerprint == fp {
			return db.ErrDuplicateTransaction
		}
	}
	target.tx.Merchant = tx.Merchant
	target.tx.Amount = tx.Amount
	target.tx.BookedAt = tx.BookedAt
	target.tx.Pending = tx.Pending
	target.tx.Fingerprint = fp
	return nil
}

func (m *memoryStore) RemoveSyncedTransactions(_ context.Context, userID int64, ids []string) (int64, error) {
	m.calls = append(m.calls, "remove")
	var n int64
	for _, r := range m.rows {
		if r.deleted || r.tx.UserID != userID || r.tx.PlaidTransactionID == nil {
			continue
		}
		for _, id := range ids {
			if *r.tx.PlaidTransactionID == id {
				r.deleted = true
				n++
			}
		}
	}
	return n, nil
}

func coffee(id string, pending bool) bank.SyncedTransaction {
	return bank.SyncedTransaction{
		TransactionID: id,
		AccountID:     "acc-1",
		Name:          "Blue Bottle",
		Amount:        4.5,
		Date:          "2024-05-02",
		CurrencyCode:  "USD",
		Pending:       pending,
	}
}

func seed(t *testing.T, store *memoryStore, userID int64, synced ...bank.SyncedTransaction) {
	t.Helper()
	_, err := applySync(context.Background(), store, userID, nil, bank.SyncResult{Added: synced})
	require.NoError(t, err)
	store.calls = nil
}

func TestApplySync_PendingPostsUnderNewID(t *testing.T) {
	store := &memoryStore{}
	seed(t, store, 7, coffee("pending-1", true))

	summary, err := applySync(context.Background(), store, 7, nil, bank.SyncResult{
		Added:   []bank.SyncedTransaction{coffee("posted-1", false)},
		Removed: []string{"pending-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"remove", "insert"}, store.calls)
	assert.Equal(t, syncSummary{Added: 1, Removed: 1}, summary)

	live := store.live(7)
	require.Len(t, live, 1)
	assert.Equal(t, "posted-1", *live[0].PlaidTransactionID)
	assert.False(t, live[0].Pending)
}

func TestApplySync_DuplicateOfLiveTransaction(t *testing.T) {
	store := &memoryStore{}
	seed(t, store, 7, coffee("a", false))

	summary, err := applySync(context.Background(), store, 7, nil, bank.SyncResult{
		Added: []bank.SyncedTransaction{coffee("b", false)},
	})
	require.NoError(t, err)
	assert.Equal(t, syncSummary{Duplicates: 1}, summary)
	assert.Len(t, store.live(7), 1)
}

func TestApplySync_ReaddedPlaidIDIsNotAFailure(t *testing.T) {
	store := &memoryStore{}
	seed(t, store, 7, coffee("a", false))

	changed := coffee("a", false)
	changed.Amount = 9
	summary, err := applySync(context.Background(), store, 7, nil, bank.SyncResult{
		Added: []bank.SyncedTransaction{changed},
	})
	require.NoError(t, err)
	assert.Equal(t, syncSummary{Duplicates: 1}, summary)
}

func TestApplySync_Modified(t *testing.T) {
	store := &memoryStore{}
	lunch := coffee("b", false)
	lunch.Name = "Sweetgreen"
	seed(t, store, 7, coffee("a", false), lunch)

	renamed := coffee("a", false)
	renamed.Name = "Blue Bottle Coffee"
	collides := coffee("b", false)
	collides.Name = "Blue Bottle Coffee"
	gone := coffee("missing", false)

	summary, err := applySync(context.Background(), store, 7, nil, bank.SyncResult{
		Modified: []bank.SyncedTransaction{renamed, collides, gone},
	})
	require.NoError(t, err)
	assert.Equal(t, syncSummary{Modified: 1, Duplicates: 1}, summary)

	merchants := []string{}
	for _, tx := range store.live(7) {
		merchants = append(merchants, tx.Merchant)
	}
	assert.ElementsMatch(t, []string{"Blue Bottle Coffee", "Sweetgreen"}, merchants)
}

func TestApplySync_ModifiedSkipsDeletedRows(t *testing.T) {
	store := &memoryStore{}
	seed(t, store, 7, coffee("a", false))
	_, err := applySync(context.Background(), store, 7, nil, bank.SyncResult{Removed: []string{"a"}})
	require.NoError(t, err)

	renamed := coffee("a", false)
	renamed.Name = "Renamed"
	summary, err := applySync(context.Background(), store, 7, nil, bank.SyncResult{
		Modified: []bank.SyncedTransaction{renamed},
	})
	require.NoError(t, err)
	assert.Zero(t, summary.Modified)
	assert.Equal(t, "Blue Bottle", store.rows[0].tx.Merchant)
}

func TestApplySync_MapsAccounts(t *testing.T) {
	store := &memoryStore{}
	_, err := applySync(context.Background(), store, 7, map[string]int64{"acc-1": 42}, bank.SyncResult{
		Added: []bank.SyncedTransaction{coffee("a", false)},
	})
	require.NoError(t, err)

	live := store.live(7)
	require.Len(t, live, 1)
	require.NotNil(t, live[0].AccountID)
	assert.EqualValues(t, 42, *live[0].AccountID)
}

type failingStore struct{ memoryStore }

func (f *failingStore) RemoveSyncedTransactions(context.Context, int64, []string) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestApplySync_RemoveErrorStopsBeforeInsert(t *testing.T) {
	store := &failingStore{}
	_, err := applySync(context.Background(), store, 7, nil, bank.SyncResult{
		Added:   []bank.SyncedTransaction{coffee("a", false)},
		Removed: []string{"x"},
	})
	require.Error(t, err)
	assert.Empty(t, store.rows)
}
