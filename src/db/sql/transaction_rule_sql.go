package db

import (
	"context"
	"errors"
	"fmt"

	"famfin-server/src/db"
	"famfin-server/src/models"
	"famfin-server/src/rules"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ruleColumns = `id, user_id, name, priority, trigger_spec, action_spec, created_at, updated_at, deleted_at`

// scanRule keeps rows whose stored trigger or action no longer parses. They
// come back with a nil Trigger or Action and the engine never matches them.
func scanRule(row rowScanner) (*rules.Rule, error) {
	var (
		r       rules.Rule
		trigger rules.TriggerSpec
		action  rules.ActionSpec
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.Priority, &trigger, &action, &r.CreatedAt, &r.UpdatedAt, &r.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}

	if r.Trigger, err = rules.ParseTrigger(trigger); err != nil {
		log.Warn("Stored rule has an unusable trigger", "rule_id", r.ID, "err", err)
		r.Trigger = nil
	}
	if r.Action, err = rules.ParseAction(action); err != nil {
		log.Warn("Stored rule has an unusable action", "rule_id", r.ID, "err", err)
		r.Action = nil
	}
	return &r, nil
}

func specs(rule rules.Rule) (rules.TriggerSpec, rules.ActionSpec, error) {
	if rule.Trigger == nil {
		return rules.TriggerSpec{}, rules.ActionSpec{}, rules.ErrInvalidTrigger
	}
	if rule.Action == nil {
		return rules.TriggerSpec{}, rules.ActionSpec{}, rules.ErrInvalidAction
	}
	return rule.Trigger.Spec(), rule.Action.Spec(), nil
}

func CreateTransactionRule(ctx context.Context, pool *pgxpool.Pool, rule rules.Rule) (*rules.Rule, error) {
	trigger, action, err := specs(rule)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO transaction_rules (id, user_id, name, priority, trigger_spec, action_spec)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + ruleColumns
	created, err := scanRule(pool.QueryRow(ctx, query, rule.ID, rule.UserID, rule.Name, rule.Priority, trigger, action))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction rule: %w", err)
	}
	db.DelRuleCache(rule.UserID)
	return created, nil
}

// CreateTransactionRules inserts a set of rules in one database transaction.
func CreateTransactionRules(ctx context.Context, pool *pgxpool.Pool, userID int64, list []rules.Rule) error {
	if len(list) == 0 {
		return nil
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO transaction_rules (id, user_id, name, priority, trigger_spec, action_spec)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, rule := range list {
		trigger, action, err := specs(rule)
		if err != nil {
			return fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		if _, err := tx.Exec(ctx, query, rule.ID, userID, rule.Name, rule.Priority, trigger, action); err != nil {
			return fmt.Errorf("failed to insert rule %q: %w", rule.Name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	db.DelRuleCache(userID)
	return nil
}

func GetTransactionRuleByID(ctx context.Context, pool *pgxpool.Pool, userID int64, ruleID string) (*rules.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM transaction_rules
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`
	return scanRule(pool.QueryRow(ctx, query, ruleID, userID))
}

func queryRules(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]rules.Rule, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []rules.Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *r)
	}
	return list, rows.Err()
}

// GetAllTransactionRules returns every rule of the user, soft-deleted ones
// included, in evaluation order.
func GetAllTransactionRules(ctx context.Context, pool *pgxpool.Pool, userID int64) ([]rules.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM transaction_rules
		WHERE user_id = $1
		ORDER BY priority, created_at, id
	`
	return queryRules(ctx, pool, query, userID)
}

// GetActiveTransactionRules returns the user's non-deleted rules in
// evaluation order. Results are cached per user.
func GetActiveTransactionRules(ctx context.Context, pool *pgxpool.Pool, userID int64) ([]rules.Rule, error) {
	if cached, ok := db.GetRuleCache(userID); ok {
		if list, ok := cached.([]rules.Rule); ok {
			return list, nil
		}
	}

	query := `
		SELECT ` + ruleColumns + `
		FROM transaction_rules
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY priority, created_at, id
	`
	list, err := queryRules(ctx, pool, query, userID)
	if err != nil {
		return nil, err
	}
	db.SetRuleCache(userID, list)
	return list, nil
}

func UpdateTransactionRule(ctx context.Context, pool *pgxpool.Pool, rule rules.Rule) (*rules.Rule, error) {
	trigger, action, err := specs(rule)
	if err != nil {
		return nil, err
	}
	query := `
		UPDATE transaction_rules
		SET name = $1, priority = $2, trigger_spec = $3, action_spec = $4, updated_at = NOW()
		WHERE id = $5 AND user_id = $6 AND deleted_at IS NULL
		RETURNING ` + ruleColumns
	updated, err := scanRule(pool.QueryRow(ctx, query, rule.Name, rule.Priority, trigger, action, rule.ID, rule.UserID))
	if err != nil {
		return nil, err
	}
	db.DelRuleCache(rule.UserID)
	return updated, nil
}

// DeleteTransactionRule soft-deletes the rule. The row stays for history and
// is skipped by evaluation.
func DeleteTransactionRule(ctx context.Context, pool *pgxpool.Pool, userID int64, ruleID string) error {
	query := `
		UPDATE transaction_rules SET deleted_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`
	if err := execOne(ctx, pool, ErrRuleNotFound, query, ruleID, userID); err != nil {
		return err
	}
	db.DelRuleCache(userID)
	return nil
}

// ApplyTransactionRulesToUser re-evaluates the user's active rules against
// all of their transactions and stores changed categories. It returns the
// number of transactions whose category changed.
func ApplyTransactionRulesToUser(ctx context.Context, pool *pgxpool.Pool, userID int64) (int, error) {
	active, err := GetActiveTransactionRules(ctx, pool, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch transaction rules: %w", err)
	}
	if len(active) == 0 {
		return 0, nil
	}

	txns, err := GetTransactionsByUser(ctx, pool, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	adjusted := 0
	for _, txn := range txns {
		out := rules.Apply(txn, active)
		if out.Category.Major == txn.Category.Major {
			continue
		}
		if err := UpdateTransactionCategory(ctx, pool, userID, txn.ID, out.Category); err != nil {
			return adjusted, fmt.Errorf("failed to update transaction category: %w", err)
		}
		log.Debug("Transaction recategorized by rule",
			"transaction_id", txn.ID, "from", txn.Category.Major, "to", out.Category.Major)
		adjusted++
	}

	if adjusted > 0 {
		log.Infof("ApplyTransactionRulesToUser: %d transactions adjusted by rules for user %d", adjusted, userID)
		db.ClearAllTransactionCaches()
	} else {
		log.Infof("ApplyTransactionRulesToUser: No transactions adjusted by rules for user %d", userID)
	}
	return adjusted, nil
}

// categorize applies the user's active rules to tx before it is stored.
func categorize(ctx context.Context, pool *pgxpool.Pool, tx models.Transaction) (models.Transaction, error) {
	active, err := GetActiveTransactionRules(ctx, pool, tx.UserID)
	if err != nil {
		return tx, err
	}
	return rules.Apply(tx, active), nil
}
