// Package importer reads transaction batches uploaded by users.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"famfin-server/src/models"

	"github.com/shopspring/decimal"
)

var ErrMissingColumn = errors.New("missing required column")

var requiredColumns = []string{"booked_at", "merchant", "amount", "currency"}

// ParseCSV reads a CSV file with a header row naming at least booked_at,
// merchant, amount and currency. An optional category column sets the
// major category. Column order is free and header names are matched
// case-insensitively. Dates are YYYY-MM-DD; amounts are signed decimals.
func ParseCSV(r io.Reader, userID int64) ([]models.Transaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	categoryCol, hasCategory := cols["category"]

	var out []models.Transaction
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		bookedAt, err := time.Parse("2006-01-02", strings.TrimSpace(record[cols["booked_at"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid booked_at: %w", line, err)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(record[cols["amount"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid amount: %w", line, err)
		}
		merchant := strings.TrimSpace(record[cols["merchant"]])
		if merchant == "" {
			return nil, fmt.Errorf("line %d: empty merchant", line)
		}
		currency := strings.ToUpper(strings.TrimSpace(record[cols["currency"]]))
		if len(currency) != 3 {
			return nil, fmt.Errorf("line %d: invalid currency %q", line, currency)
		}

		tx := models.Transaction{
			UserID:           userID,
			Merchant:         merchant,
			Amount:           amount,
			BookedAt:         bookedAt,
			OriginalCurrency: currency,
			Source:           models.SourceCSV,
		}
		if hasCategory {
			tx.Category.Major = strings.TrimSpace(record[categoryCol])
		}
		out = append(out, tx)
	}
	return out, nil
}
