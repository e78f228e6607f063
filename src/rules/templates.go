package rules

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type templateFile struct {
	Rules []templateRule `yaml:"rules"`
}

type templateRule struct {
	Name     string `yaml:"name"`
	Priority *int   `yaml:"priority"`
	Trigger  struct {
		Field    string      `yaml:"field"`
		Operator string      `yaml:"operator"`
		Value    interface{} `yaml:"value"`
	} `yaml:"trigger"`
	Action ActionSpec `yaml:"action"`
}

// LoadTemplates reads a YAML rule template file. See ParseTemplates.
func LoadTemplates(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule templates: %w", err)
	}
	return ParseTemplates(data)
}

// ParseTemplates decodes default rule definitions:
//
//	rules:
//	  - name: Coffee
//	    priority: 10
//	    trigger: {field: merchant, operator: contains, value: starbucks}
//	    action: {field: category, value: food}
//
// Every entry is validated; one bad entry fails the whole file.
func ParseTemplates(data []byte) ([]Definition, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rule templates: %w", err)
	}

	defs := make([]Definition, 0, len(file.Rules))
	for i, tr := range file.Rules {
		value, err := json.Marshal(tr.Trigger.Value)
		if err != nil {
			return nil, fmt.Errorf("rule template %d (%s): %w", i, tr.Name, err)
		}
		def := Definition{
			Name:     tr.Name,
			Priority: tr.Priority,
			Trigger: TriggerSpec{
				Field:    tr.Trigger.Field,
				Operator: tr.Trigger.Operator,
				Value:    value,
			},
			Action: tr.Action,
		}
		if _, err := NewRule(0, def); err != nil {
			return nil, fmt.Errorf("rule template %d (%s): %w", i, tr.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
