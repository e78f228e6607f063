package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"famfin-server/src/models"

	"github.com/shopspring/decimal"
)

// Trigger fields.
const (
	FieldMerchant = "merchant"
	FieldAmount   = "amount"
)

// Trigger operators.
const (
	OpContains    = "contains"
	OpEquals      = "equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
)

var ErrInvalidTrigger = errors.New("invalid rule trigger")

// Trigger is the condition half of a rule. The set of implementations is
// closed: only the field/operator pairs below can be expressed.
type Trigger interface {
	Matches(tx models.Transaction) bool
	Spec() TriggerSpec
	isTrigger()
}

// MerchantContains matches when Value is a case-insensitive substring of the merchant.
type MerchantContains struct{ Value string }

// MerchantEquals matches a case-insensitive full merchant name.
type MerchantEquals struct{ Value string }

type AmountEquals struct{ Value decimal.Decimal }

type AmountGreaterThan struct{ Value decimal.Decimal }

type AmountLessThan struct{ Value decimal.Decimal }

func (t MerchantContains) Matches(tx models.Transaction) bool {
	return strings.Contains(strings.ToLower(tx.Merchant), strings.ToLower(t.Value))
}

func (t MerchantEquals) Matches(tx models.Transaction) bool {
	return strings.EqualFold(tx.Merchant, t.Value)
}

func (t AmountEquals) Matches(tx models.Transaction) bool {
	return tx.Amount.Equal(t.Value)
}

func (t AmountGreaterThan) Matches(tx models.Transaction) bool {
	return tx.Amount.GreaterThan(t.Value)
}

func (t AmountLessThan) Matches(tx models.Transaction) bool {
	return tx.Amount.LessThan(t.Value)
}

func (t MerchantContains) Spec() TriggerSpec  { return stringSpec(FieldMerchant, OpContains, t.Value) }
func (t MerchantEquals) Spec() TriggerSpec    { return stringSpec(FieldMerchant, OpEquals, t.Value) }
func (t AmountEquals) Spec() TriggerSpec      { return numberSpec(OpEquals, t.Value) }
func (t AmountGreaterThan) Spec() TriggerSpec { return numberSpec(OpGreaterThan, t.Value) }
func (t AmountLessThan) Spec() TriggerSpec    { return numberSpec(OpLessThan, t.Value) }

func (MerchantContains) isTrigger()  {}
func (MerchantEquals) isTrigger()    {}
func (AmountEquals) isTrigger()      {}
func (AmountGreaterThan) isTrigger() {}
func (AmountLessThan) isTrigger()    {}

// TriggerSpec is the stored and wire form of a trigger. Value holds either a
// JSON string or a JSON number.
type TriggerSpec struct {
	Field    string          `json:"field" yaml:"field" validate:"required,oneof=merchant amount"`
	Operator string          `json:"operator" yaml:"operator" validate:"required,oneof=contains equals greater_than less_than"`
	Value    json.RawMessage `json:"value" yaml:"-" validate:"required"`
}

func stringSpec(field, op, v string) TriggerSpec {
	raw, _ := json.Marshal(v)
	return TriggerSpec{Field: field, Operator: op, Value: raw}
}

func numberSpec(op string, v decimal.Decimal) TriggerSpec {
	return TriggerSpec{Field: FieldAmount, Operator: op, Value: json.RawMessage(v.String())}
}

// ParseTrigger turns a spec into a typed trigger. Merchant operators need a
// non-empty string value; amount operators need a number or a string that
// parses as one.
func ParseTrigger(spec TriggerSpec) (Trigger, error) {
	switch spec.Field {
	case FieldMerchant:
		s, err := stringValue(spec.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: merchant %s: %v", ErrInvalidTrigger, spec.Operator, err)
		}
		if s == "" {
			return nil, fmt.Errorf("%w: merchant %s: empty value", ErrInvalidTrigger, spec.Operator)
		}
		switch spec.Operator {
		case OpContains:
			return MerchantContains{Value: s}, nil
		case OpEquals:
			return MerchantEquals{Value: s}, nil
		}
	case FieldAmount:
		d, err := numberValue(spec.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: amount %s: %v", ErrInvalidTrigger, spec.Operator, err)
		}
		switch spec.Operator {
		case OpEquals:
			return AmountEquals{Value: d}, nil
		case OpGreaterThan:
			return AmountGreaterThan{Value: d}, nil
		case OpLessThan:
			return AmountLessThan{Value: d}, nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidTrigger, spec.Field)
	}
	return nil, fmt.Errorf("%w: operator %q not allowed on %s", ErrInvalidTrigger, spec.Operator, spec.Field)
}

func stringValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", errors.New("value must be a string")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func numberValue(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return decimal.Decimal{}, errors.New("missing value")
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Decimal{}, err
		}
		text = strings.TrimSpace(text)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("value %q is not a number", text)
	}
	return d, nil
}
