package plaid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"famfin-server/src/models"

	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/shopspring/decimal"
)

func NewPlaidClient(clientID, secret, env string) (*plaid.APIClient, error) {
	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", clientID)
	configuration.AddDefaultHeader("PLAID-SECRET", secret)

	switch env {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	default:
		return nil, fmt.Errorf("invalid Plaid environment: %s", env)
	}

	return plaid.NewAPIClient(configuration), nil
}

// SyncedTransaction is the subset of a Plaid transaction this service keeps.
// Amount uses Plaid's sign convention: positive is money leaving the account.
type SyncedTransaction struct {
	TransactionID    string
	AccountID        string
	Name             string
	MerchantName     string
	Amount           float64
	Date             string
	CurrencyCode     string
	CategoryPrimary  string
	CategoryDetailed string
	Pending          bool
}

func FromPlaid(t plaid.Transaction) SyncedTransaction {
	pfc := t.GetPersonalFinanceCategory()
	currency := t.GetIsoCurrencyCode()
	if currency == "" {
		currency = t.GetUnofficialCurrencyCode()
	}
	return SyncedTransaction{
		TransactionID:    t.GetTransactionId(),
		AccountID:        t.GetAccountId(),
		Name:             t.GetName(),
		MerchantName:     t.GetMerchantName(),
		Amount:           t.GetAmount(),
		Date:             t.GetDate(),
		CurrencyCode:     currency,
		CategoryPrimary:  pfc.GetPrimary(),
		CategoryDetailed: pfc.GetDetailed(),
		Pending:          t.GetPending(),
	}
}

// ToTransaction converts s into a bank_sync transaction owned by userID.
// The amount is negated so expenses are negative.
func (s SyncedTransaction) ToTransaction(userID int64, accountID *int64) (models.Transaction, error) {
	bookedAt, err := time.Parse("2006-01-02", s.Date)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("transaction %s: invalid date %q: %w", s.TransactionID, s.Date, err)
	}

	merchant := strings.TrimSpace(s.MerchantName)
	if merchant == "" {
		merchant = strings.TrimSpace(s.Name)
	}

	currency := strings.ToUpper(s.CurrencyCode)
	if currency == "" {
		currency = "USD"
	}

	plaidID := s.TransactionID
	return models.Transaction{
		UserID:             userID,
		AccountID:          accountID,
		PlaidTransactionID: &plaidID,
		Merchant:           merchant,
		Amount:             decimal.NewFromFloat(s.Amount).Neg(),
		BookedAt:           bookedAt,
		OriginalCurrency:   currency,
		Category: models.Category{
			Major: s.CategoryPrimary,
			Minor: s.CategoryDetailed,
		},
		Source:  models.SourceBankSync,
		Pending: s.Pending,
	}, nil
}

type SyncResult struct {
	Added      []SyncedTransaction
	Modified   []SyncedTransaction
	Removed    []string
	NextCursor string
}

// Sync pages through /transactions/sync from cursor until Plaid reports no
// more updates.
func Sync(ctx context.Context, client *plaid.APIClient, accessToken, cursor string) (SyncResult, error) {
	result := SyncResult{NextCursor: cursor}
	for {
		request := plaid.NewTransactionsSyncRequest(accessToken)
		if result.NextCursor != "" {
			request.SetCursor(result.NextCursor)
		}

		resp, _, err := client.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*request).Execute()
		if err != nil {
			return result, fmt.Errorf("transactions sync: %w", err)
		}

		for _, t := range resp.GetAdded() {
			result.Added = append(result.Added, FromPlaid(t))
		}
		for _, t := range resp.GetModified() {
			result.Modified = append(result.Modified, FromPlaid(t))
		}
		for _, t := range resp.GetRemoved() {
			result.Removed = append(result.Removed, t.GetTransactionId())
		}
		result.NextCursor = resp.GetNextCursor()

		if !resp.GetHasMore() {
			return result, nil
		}
	}
}
