package plaid

import (
	"testing"
	"time"

	"famfin-server/src/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlaidClient(t *testing.T) {
	client, err := NewPlaidClient("id", "secret", "sandbox")
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewPlaidClient("id", "secret", "development")
	assert.Error(t, err)
}

func TestToTransaction(t *testing.T) {
	accountID := int64(7)
	s := SyncedTransaction{
		TransactionID:    "tx_1",
		AccountID:        "acc_1",
		Name:             "STARBUCKS #1234 SEATTLE",
		MerchantName:     "Starbucks",
		Amount:           4.5,
		Date:             "2025-03-14",
		CurrencyCode:     "usd",
		CategoryPrimary:  "FOOD_AND_DRINK",
		CategoryDetailed: "FOOD_AND_DRINK_COFFEE",
		Pending:          true,
	}

	tx, err := s.ToTransaction(42, &accountID)
	require.NoError(t, err)

	assert.Equal(t, int64(42), tx.UserID)
	assert.Equal(t, &accountID, tx.AccountID)
	require.NotNil(t, tx.PlaidTransactionID)
	assert.Equal(t, "tx_1", *tx.PlaidTransactionID)
	assert.Equal(t, "Starbucks", tx.Merchant)
	assert.True(t, decimal.RequireFromString("-4.5").Equal(tx.Amount))
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), tx.BookedAt)
	assert.Equal(t, "USD", tx.OriginalCurrency)
	assert.Equal(t, models.Category{Major: "FOOD_AND_DRINK", Minor: "FOOD_AND_DRINK_COFFEE"}, tx.Category)
	assert.Equal(t, models.SourceBankSync, tx.Source)
	assert.True(t, tx.Pending)
}

func TestToTransaction_Fallbacks(t *testing.T) {
	s := SyncedTransaction{
		TransactionID: "tx_2",
		Name:          "  Payroll  ",
		Amount:        -1500,
		Date:          "2025-03-01",
	}

	tx, err := s.ToTransaction(1, nil)
	require.NoError(t, err)
	assert.Equal(t, "Payroll", tx.Merchant)
	assert.Equal(t, "USD", tx.OriginalCurrency)
	assert.True(t, decimal.NewFromInt(1500).Equal(tx.Amount), "income is positive")
	assert.Nil(t, tx.AccountID)
}

func TestToTransaction_InvalidDate(t *testing.T) {
	_, err := SyncedTransaction{TransactionID: "tx_3", Date: "03/01/2025"}.ToTransaction(1, nil)
	assert.Error(t, err)
}
