package rules

import (
	"errors"
	"fmt"
	"strings"

	"famfin-server/src/models"
)

const FieldCategory = "category"

var ErrInvalidAction = errors.New("invalid rule action")

// Action is the effect half of a rule.
type Action interface {
	Apply(tx models.Transaction) models.Transaction
	Spec() ActionSpec
	isAction()
}

// SetCategory overwrites the major category and leaves minor and confidence alone.
type SetCategory struct{ Category string }

func (a SetCategory) Apply(tx models.Transaction) models.Transaction {
	tx.Category.Major = a.Category
	return tx
}

func (a SetCategory) Spec() ActionSpec {
	return ActionSpec{Field: FieldCategory, Value: a.Category}
}

func (SetCategory) isAction() {}

type ActionSpec struct {
	Field string `json:"field" yaml:"field" validate:"required,eq=category"`
	Value string `json:"value" yaml:"value" validate:"required"`
}

func ParseAction(spec ActionSpec) (Action, error) {
	if spec.Field != FieldCategory {
		return nil, fmt.Errorf("%w: unsupported field %q", ErrInvalidAction, spec.Field)
	}
	if strings.TrimSpace(spec.Value) == "" {
		return nil, fmt.Errorf("%w: empty category", ErrInvalidAction)
	}
	return SetCategory{Category: spec.Value}, nil
}
