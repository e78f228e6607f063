package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	db "famfin-server/src/db/sql"
	"famfin-server/src/importer"
	"famfin-server/src/models"
	"famfin-server/src/util"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const maxImportBytes = 5 << 20

type transactionRequest struct {
	Merchant  string          `json:"merchant" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	BookedAt  string          `json:"booked_at" validate:"required,datetime=2006-01-02"`
	Currency  string          `json:"currency" validate:"required,len=3,alpha"`
	AccountID *int64          `json:"account_id"`
	Category  string          `json:"category"`
	Source    string          `json:"source" validate:"omitempty,oneof=manual receipt voice"`
}

func (req transactionRequest) toTransaction(userID int64) (models.Transaction, error) {
	bookedAt, err := time.Parse("2006-01-02", req.BookedAt)
	if err != nil {
		return models.Transaction{}, err
	}
	source := req.Source
	if source == "" {
		source = models.SourceManual
	}
	return models.Transaction{
		UserID:           userID,
		AccountID:        req.AccountID,
		Merchant:         strings.TrimSpace(req.Merchant),
		Amount:           req.Amount,
		BookedAt:         bookedAt,
		OriginalCurrency: strings.ToUpper(req.Currency),
		Category:         models.Category{Major: req.Category},
		Source:           source,
	}, nil
}

func CreateTransaction(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		var req transactionRequest
		if err := util.DecodeAndValidate(r, &req); err != nil {
			log.Errorf("Failed to decode create transaction request body for user %d: %v", userID, err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		tx, err := req.toTransaction(userID)
		if err != nil {
			http.Error(w, "invalid booked_at", http.StatusBadRequest)
			return
		}

		created, inserted, err := db.InsertTransaction(r.Context(), pool, tx)
		if err != nil {
			log.Errorf("Failed to create transaction for user %d: %v", userID, err)
			http.Error(w, "failed to create transaction", http.StatusInternalServerError)
			return
		}
		if !inserted {
			log.Infof("Duplicate transaction skipped for user %d", userID)
			http.Error(w, "duplicate transaction", http.StatusConflict)
			return
		}

		log.Infof("Created transaction id %d for user %d", created.ID, userID)
		writeJSON(w, http.StatusCreated, created)
	}
}

// ImportTransactions reads a CSV body and stores every row that is not a
// duplicate of an existing transaction.
func ImportTransactions(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		txns, err := importer.ParseCSV(http.MaxBytesReader(w, r.Body, maxImportBytes), userID)
		if err != nil {
			log.Errorf("Failed to parse CSV import for user %d: %v", userID, err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		imported, duplicates := 0, 0
		for _, tx := range txns {
			_, inserted, err := db.InsertTransaction(r.Context(), pool, tx)
			if err != nil {
				log.Errorf("Failed to import transaction for user %d: %v", userID, err)
				http.Error(w, "failed to import transactions", http.StatusInternalServerError)
				return
			}
			if inserted {
				imported++
			} else {
				duplicates++
			}
		}

		log.Infof("CSV import for user %d: %d imported, %d duplicates", userID, imported, duplicates)
		writeJSON(w, http.StatusOK, map[string]int{
			"imported":   imported,
			"duplicates": duplicates,
		})
	}
}

func GetTransactions(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		transactions, err := db.GetTransactionsByUser(r.Context(), pool, userID)
		if err != nil {
			log.Errorf("Failed to get transactions for user %d: %v", userID, err)
			http.Error(w, "Failed to retrieve transactions", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, transactions)
	}
}

func GetTransactionsFromDB(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}
		accountID, err := strconv.ParseInt(chi.URLParam(r, "account_id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid account id", http.StatusBadRequest)
			return
		}

		transactions, err := db.GetTransactionsByAccount(r.Context(), pool, userID, accountID)
		if err != nil {
			log.Errorf("Failed to get transactions for user %d, account %d: %v", userID, accountID, err)
			http.Error(w, "Failed to retrieve transactions", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, transactions)
	}
}

type updateCategoryRequest struct {
	Major      string   `json:"major" validate:"required"`
	Minor      string   `json:"minor"`
	Confidence *float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
}

func UpdateTransactionCategory(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}
		transactionID, err := strconv.ParseInt(chi.URLParam(r, "transaction_id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid transaction id", http.StatusBadRequest)
			return
		}

		var req updateCategoryRequest
		if err := util.DecodeAndValidate(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		category := models.Category{Major: req.Major, Minor: req.Minor, Confidence: req.Confidence}
		err = db.UpdateTransactionCategory(r.Context(), pool, userID, transactionID, category)
		if errors.Is(err, db.ErrTransactionNotFound) {
			http.Error(w, "transaction not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Errorf("Failed to update category of transaction %d for user %d: %v", transactionID, userID, err)
			http.Error(w, "failed to update transaction", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"message": "transaction updated"})
	}
}

func DeleteTransaction(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}
		transactionID, err := strconv.ParseInt(chi.URLParam(r, "transaction_id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid transaction id", http.StatusBadRequest)
			return
		}

		err = db.SoftDeleteTransaction(r.Context(), pool, userID, transactionID)
		if errors.Is(err, db.ErrTransactionNotFound) {
			http.Error(w, "transaction not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Errorf("Failed to delete transaction %d for user %d: %v", transactionID, userID, err)
			http.Error(w, "failed to delete transaction", http.StatusInternalServerError)
			return
		}

		log.Infof("Deleted transaction id %d for user %d", transactionID, userID)
		writeJSON(w, http.StatusOK, map[string]string{"message": "transaction deleted"})
	}
}
