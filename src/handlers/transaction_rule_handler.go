package handlers

import (
	"errors"
	"net/http"

	db "famfin-server/src/db/sql"
	"famfin-server/src/models"
	"famfin-server/src/rules"
	"famfin-server/src/util"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func ruleIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	ruleIDStr := chi.URLParam(r, "rule_id")
	id, err := uuid.Parse(ruleIDStr)
	if err != nil {
		log.Errorf("Invalid rule id param: %s", ruleIDStr)
		http.Error(w, "invalid rule id", http.StatusBadRequest)
		return "", false
	}
	return id.String(), true
}

func CreateTransactionRule(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		var def rules.Definition
		if err := util.DecodeAndValidate(r, &def); err != nil {
			log.Errorf("Failed to decode create transaction rule request body for user %d: %v", userID, err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rule, err := rules.NewRule(userID, def)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		created, err := db.CreateTransactionRule(r.Context(), pool, rule)
		if err != nil {
			log.Errorf("Failed to create transaction rule for user %d: %v", userID, err)
			http.Error(w, "failed to create transaction rule", http.StatusInternalServerError)
			return
		}
		log.Infof("Created transaction rule id %s for user %d, name %s", created.ID, userID, created.Name)
		writeJSON(w, http.StatusCreated, created)
	}
}

func GetTransactionRuleByID(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}
		ruleID, ok := ruleIDParam(w, r)
		if !ok {
			return
		}

		rule, err := db.GetTransactionRuleByID(r.Context(), pool, userID, ruleID)
		if err != nil {
			log.Errorf("Transaction rule id %s not found for user %d: %v", ruleID, userID, err)
			http.Error(w, "transaction rule not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, rule)
	}
}

// GetAllTransactionRules lists the user's rules in evaluation order.
// ?include_deleted=true adds soft-deleted rules.
func GetAllTransactionRules(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		var (
			list []rules.Rule
			err  error
		)
		if r.URL.Query().Get("include_deleted") == "true" {
			list, err = db.GetAllTransactionRules(r.Context(), pool, userID)
		} else {
			list, err = db.GetActiveTransactionRules(r.Context(), pool, userID)
		}
		if err != nil {
			log.Errorf("Failed to get transaction rules for user %d: %v", userID, err)
			http.Error(w, "failed to get transaction rules", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func UpdateTransactionRule(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}
		ruleID, ok := ruleIDParam(w, r)
		if !ok {
			return
		}

		var def rules.Definition
		if err := util.DecodeAndValidate(r, &def); err != nil {
			log.Errorf("Failed to decode update transaction rule request body for user %d: %v", userID, err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rule, err := rules.NewRule(userID, def)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rule.ID = ruleID

		updated, err := db.UpdateTransactionRule(r.Context(), pool, rule)
		if errors.Is(err, db.ErrRuleNotFound) {
			http.Error(w, "transaction rule not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Errorf("Failed to update transaction rule id %s for user %d: %v", ruleID, userID, err)
			http.Error(w, "failed to update transaction rule", http.StatusInternalServerError)
			return
		}
		log.Infof("Updated transaction rule id %s for user %d", updated.ID, userID)
		writeJSON(w, http.StatusOK, updated)
	}
}

func DeleteTransactionRule(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}
		ruleID, ok := ruleIDParam(w, r)
		if !ok {
			return
		}

		err := db.DeleteTransactionRule(r.Context(), pool, userID, ruleID)
		if errors.Is(err, db.ErrRuleNotFound) {
			http.Error(w, "transaction rule not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Errorf("Failed to delete transaction rule id %s for user %d: %v", ruleID, userID, err)
			http.Error(w, "failed to delete transaction rule", http.StatusInternalServerError)
			return
		}
		log.Infof("Deleted transaction rule id %s for user %d", ruleID, userID)
		writeJSON(w, http.StatusOK, map[string]string{"message": "transaction rule deleted"})
	}
}

func TriggerTransactionRules(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		adjusted, err := db.ApplyTransactionRulesToUser(r.Context(), pool, userID)
		if err != nil {
			log.Errorf("Failed to trigger transaction rules for user %d: %v", userID, err)
			http.Error(w, "failed to trigger transaction rules", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":  "transaction rules triggered",
			"adjusted": adjusted,
		})
	}
}

type previewRequest struct {
	// Rules to evaluate. When omitted the user's stored active rules are used.
	Rules       []rules.Definition `json:"rules" validate:"omitempty,dive"`
	Transaction transactionRequest `json:"transaction"`
}

type previewResponse struct {
	Matched     bool               `json:"matched"`
	Rule        *rules.Rule        `json:"rule,omitempty"`
	Transaction models.Transaction `json:"transaction"`
}

// PreviewTransactionRules shows what the rules would do to a transaction
// without storing anything.
func PreviewTransactionRules(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		var req previewRequest
		if err := util.DecodeAndValidate(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		tx, err := req.Transaction.toTransaction(userID)
		if err != nil {
			http.Error(w, "invalid booked_at", http.StatusBadRequest)
			return
		}

		var list []rules.Rule
		if req.Rules != nil {
			for _, def := range req.Rules {
				rule, err := rules.NewRule(userID, def)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				list = append(list, rule)
			}
		} else {
			list, err = db.GetActiveTransactionRules(r.Context(), pool, userID)
			if err != nil {
				log.Errorf("Failed to get transaction rules for user %d: %v", userID, err)
				http.Error(w, "failed to get transaction rules", http.StatusInternalServerError)
				return
			}
		}

		resp := previewResponse{Transaction: rules.Apply(tx, list)}
		if rule, ok := rules.Match(tx, list); ok {
			resp.Matched = true
			resp.Rule = &rule
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
