package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPriority is used when a rule is created without one.
const DefaultPriority = 100

var ErrInvalidRule = errors.New("invalid rule")

// Rule maps a trigger to an action. A nil Trigger or Action never matches;
// that is how rows which no longer decode are represented.
type Rule struct {
	ID        string
	UserID    int64
	Name      string
	Priority  int
	Trigger   Trigger
	Action    Action
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Definition is the user-authored part of a rule, as received from clients
// or template files.
type Definition struct {
	Name     string      `json:"name" validate:"required"`
	Priority *int        `json:"priority"`
	Trigger  TriggerSpec `json:"trigger" validate:"required"`
	Action   ActionSpec  `json:"action" validate:"required"`
}

// NewRule validates def and returns a rule with a fresh ID.
func NewRule(userID int64, def Definition) (Rule, error) {
	if strings.TrimSpace(def.Name) == "" {
		return Rule{}, fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	trigger, err := ParseTrigger(def.Trigger)
	if err != nil {
		return Rule{}, err
	}
	action, err := ParseAction(def.Action)
	if err != nil {
		return Rule{}, err
	}
	priority := DefaultPriority
	if def.Priority != nil {
		priority = *def.Priority
	}
	return Rule{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     strings.TrimSpace(def.Name),
		Priority: priority,
		Trigger:  trigger,
		Action:   action,
	}, nil
}

func (r Rule) Active() bool {
	return r.DeletedAt == nil
}

type ruleJSON struct {
	ID        string       `json:"id"`
	UserID    int64        `json:"uid"`
	Name      string       `json:"name"`
	Priority  int          `json:"priority"`
	Trigger   *TriggerSpec `json:"trigger"`
	Action    *ActionSpec  `json:"action"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	DeletedAt *time.Time   `json:"deleted_at,omitempty"`
}

func (r Rule) MarshalJSON() ([]byte, error) {
	out := ruleJSON{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		Priority:  r.Priority,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		DeletedAt: r.DeletedAt,
	}
	if r.Trigger != nil {
		spec := r.Trigger.Spec()
		out.Trigger = &spec
	}
	if r.Action != nil {
		spec := r.Action.Spec()
		out.Action = &spec
	}
	return json.Marshal(out)
}

// UnmarshalJSON rejects invalid triggers and actions instead of keeping them
// around as non-matching rules.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var in ruleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Trigger == nil {
		return fmt.Errorf("%w: missing trigger", ErrInvalidTrigger)
	}
	if in.Action == nil {
		return fmt.Errorf("%w: missing action", ErrInvalidAction)
	}
	trigger, err := ParseTrigger(*in.Trigger)
	if err != nil {
		return err
	}
	action, err := ParseAction(*in.Action)
	if err != nil {
		return err
	}
	*r = Rule{
		ID:        in.ID,
		UserID:    in.UserID,
		Name:      in.Name,
		Priority:  in.Priority,
		Trigger:   trigger,
		Action:    action,
		CreatedAt: in.CreatedAt,
		UpdatedAt: in.UpdatedAt,
		DeletedAt: in.DeletedAt,
	}
	return nil
}
