// Package rules evaluates user-defined category rules against transactions.
//
// Rules run in ascending priority order. Rules sharing a priority keep the
// order they were passed in. The first rule whose trigger matches has its
// action applied and evaluation stops. Soft-deleted rules and rules without a
// usable trigger or action are skipped, so callers may pass unfiltered rows.
package rules

import (
	"sort"

	"famfin-server/src/models"
)

// Match returns the first active rule whose trigger matches tx.
func Match(tx models.Transaction, rules []Rule) (Rule, bool) {
	for _, r := range ordered(rules) {
		if r.Trigger.Matches(tx) {
			return r, true
		}
	}
	return Rule{}, false
}

// Apply returns a copy of tx with the first matching rule's action applied.
// When nothing matches the copy is returned unchanged. tx is never modified.
func Apply(tx models.Transaction, rules []Rule) models.Transaction {
	out := tx.Clone()
	r, ok := Match(out, rules)
	if !ok {
		return out
	}
	return r.Action.Apply(out)
}

func ordered(rules []Rule) []Rule {
	active := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if !r.Active() || r.Trigger == nil || r.Action == nil {
			continue
		}
		active = append(active, r)
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})
	return active
}
