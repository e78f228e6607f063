// Package fingerprint derives the duplicate-detection key for transactions.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"famfin-server/src/models"

	"github.com/shopspring/decimal"
)

const (
	dateLayout = "2006-01-02"
	separator  = "-"
)

type Input struct {
	BookedAt         time.Time
	Merchant         string
	Amount           decimal.Decimal
	OriginalCurrency string
}

// Compute returns the hex SHA-256 of "date-merchant-amount-currency".
//
// The date is BookedAt's calendar day in BookedAt's own location, so callers
// must normalise it first. Merchant and currency are hashed verbatim: a change
// in case or whitespace yields a different fingerprint. Amount uses its
// shortest decimal form ("-3300", "12.5").
func Compute(in Input) string {
	canonical := strings.Join([]string{
		in.BookedAt.Format(dateLayout),
		in.Merchant,
		in.Amount.String(),
		in.OriginalCurrency,
	}, separator)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func Of(tx models.Transaction) string {
	return Compute(Input{
		BookedAt:         tx.BookedAt,
		Merchant:         tx.Merchant,
		Amount:           tx.Amount,
		OriginalCurrency: tx.OriginalCurrency,
	})
}
