package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction sources.
const (
	SourceManual   = "manual"
	SourceReceipt  = "receipt"
	SourceVoice    = "voice"
	SourceBankSync = "bank_sync"
	SourceCSV      = "csv"
)

type Category struct {
	Major      string   `json:"major"`
	Minor      string   `json:"minor,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Transaction amounts are signed: negative is an expense, positive is income.
type Transaction struct {
	ID                 int64           `json:"id"`
	UserID             int64           `json:"user_id"`
	AccountID          *int64          `json:"account_id,omitempty"`
	PlaidTransactionID *string         `json:"plaid_transaction_id,omitempty"`
	Merchant           string          `json:"merchant"`
	Amount             decimal.Decimal `json:"amount"`
	BookedAt           time.Time       `json:"booked_at"`
	OriginalCurrency   string          `json:"original_currency"`
	Category           Category        `json:"category"`
	Source             string          `json:"source"`
	Fingerprint        string          `json:"fingerprint"`
	Pending            bool            `json:"pending"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	DeletedAt          *time.Time      `json:"deleted_at,omitempty"`
}

// Clone returns a copy that shares no pointers with t.
func (t Transaction) Clone() Transaction {
	out := t
	out.AccountID = clonePtr(t.AccountID)
	out.PlaidTransactionID = clonePtr(t.PlaidTransactionID)
	out.Category.Confidence = clonePtr(t.Category.Confidence)
	out.DeletedAt = clonePtr(t.DeletedAt)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
