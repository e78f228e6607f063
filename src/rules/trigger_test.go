package rules_test

import (
	"encoding/json"
	"testing"

	"famfin-server/src/rules"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		name    string
		spec    rules.TriggerSpec
		want    rules.Trigger
		wantErr bool
	}{
		{
			name: "merchant contains",
			spec: rules.TriggerSpec{Field: "merchant", Operator: "contains", Value: json.RawMessage(`"Lawson"`)},
			want: rules.MerchantContains{Value: "Lawson"},
		},
		{
			name: "merchant equals",
			spec: rules.TriggerSpec{Field: "merchant", Operator: "equals", Value: json.RawMessage(`"Lawson"`)},
			want: rules.MerchantEquals{Value: "Lawson"},
		},
		{
			name: "amount number",
			spec: rules.TriggerSpec{Field: "amount", Operator: "greater_than", Value: json.RawMessage(`1000`)},
			want: rules.AmountGreaterThan{Value: decimal.NewFromInt(1000)},
		},
		{
			name: "amount numeric string",
			spec: rules.TriggerSpec{Field: "amount", Operator: "less_than", Value: json.RawMessage(`"-12.5"`)},
			want: rules.AmountLessThan{Value: decimal.RequireFromString("-12.5")},
		},
		{
			name:    "amount non numeric string",
			spec:    rules.TriggerSpec{Field: "amount", Operator: "equals", Value: json.RawMessage(`"lots"`)},
			wantErr: true,
		},
		{
			name:    "amount empty string",
			spec:    rules.TriggerSpec{Field: "amount", Operator: "equals", Value: json.RawMessage(`""`)},
			wantErr: true,
		},
		{
			name:    "amount with contains",
			spec:    rules.TriggerSpec{Field: "amount", Operator: "contains", Value: json.RawMessage(`10`)},
			wantErr: true,
		},
		{
			name:    "merchant with greater_than",
			spec:    rules.TriggerSpec{Field: "merchant", Operator: "greater_than", Value: json.RawMessage(`"a"`)},
			wantErr: true,
		},
		{
			name:    "merchant with number value",
			spec:    rules.TriggerSpec{Field: "merchant", Operator: "contains", Value: json.RawMessage(`42`)},
			wantErr: true,
		},
		{
			name:    "merchant empty value",
			spec:    rules.TriggerSpec{Field: "merchant", Operator: "contains", Value: json.RawMessage(`""`)},
			wantErr: true,
		},
		{
			name:    "unknown field",
			spec:    rules.TriggerSpec{Field: "account", Operator: "equals", Value: json.RawMessage(`"x"`)},
			wantErr: true,
		},
		{
			name:    "null value",
			spec:    rules.TriggerSpec{Field: "amount", Operator: "equals", Value: json.RawMessage(`null`)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rules.ParseTrigger(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, rules.ErrInvalidTrigger)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Spec(), got.Spec())
		})
	}
}

func TestParseAction(t *testing.T) {
	a, err := rules.ParseAction(rules.ActionSpec{Field: "category", Value: "food"})
	require.NoError(t, err)
	assert.Equal(t, rules.SetCategory{Category: "food"}, a)

	_, err = rules.ParseAction(rules.ActionSpec{Field: "merchant", Value: "x"})
	assert.ErrorIs(t, err, rules.ErrInvalidAction)

	_, err = rules.ParseAction(rules.ActionSpec{Field: "category", Value: "  "})
	assert.ErrorIs(t, err, rules.ErrInvalidAction)
}

func TestRuleJSON(t *testing.T) {
	r := mustRule(t, "Big income", 3, rules.FieldAmount, rules.OpGreaterThan, 250000, "salary")

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"field":"amount","operator":"greater_than","value":250000}`, extract(t, data, "trigger"))
	assert.JSONEq(t, `{"field":"category","value":"salary"}`, extract(t, data, "action"))

	var back rules.Rule
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r.ID, back.ID)
	assert.Equal(t, r.Priority, back.Priority)
	assert.Equal(t, r.Trigger.Spec(), back.Trigger.Spec())
	assert.Equal(t, r.Action, back.Action)
}

func TestRuleJSON_RejectsInvalidCombination(t *testing.T) {
	body := `{"id":"1","name":"bad","priority":1,
		"trigger":{"field":"merchant","operator":"less_than","value":"x"},
		"action":{"field":"category","value":"food"}}`
	var r rules.Rule
	err := json.Unmarshal([]byte(body), &r)
	assert.ErrorIs(t, err, rules.ErrInvalidTrigger)
}

func TestNewRule_Defaults(t *testing.T) {
	r, err := rules.NewRule(7, rules.Definition{
		Name:    "  Groceries ",
		Trigger: rules.TriggerSpec{Field: "merchant", Operator: "contains", Value: json.RawMessage(`"aeon"`)},
		Action:  rules.ActionSpec{Field: "category", Value: "groceries"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, int64(7), r.UserID)
	assert.Equal(t, "Groceries", r.Name)
	assert.Equal(t, rules.DefaultPriority, r.Priority)
	assert.True(t, r.Active())

	_, err = rules.NewRule(7, rules.Definition{
		Trigger: rules.TriggerSpec{Field: "merchant", Operator: "contains", Value: json.RawMessage(`"aeon"`)},
		Action:  rules.ActionSpec{Field: "category", Value: "groceries"},
	})
	assert.ErrorIs(t, err, rules.ErrInvalidRule)
}

func extract(t *testing.T, data []byte, key string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	return string(m[key])
}
