package rules

import (
	"context"
	"fmt"
	"time"

	"FlowGuard/internal/config"
	"FlowGuard/internal/engine/features"
	"FlowGuard/internal/factory"
	"FlowGuard/internal/model"
)

// DefaultLabel is emitted when no rule matches and the variant names none.
const DefaultLabel = "BENIGN"

func init() {
	factory.RegisterBackend("rules", func(def config.VariantDef, _ time.Duration) (model.Classifier, error) {
		return New(model.Mode(def.Mode), def.Rules, def.DefaultLabel)
	})
}

type rule struct {
	label     string
	column    int
	operator  string
	threshold float64
}

// Classifier labels rows with the first threshold rule they satisfy.
type Classifier struct {
	rules        []rule
	defaultLabel string
}

// New compiles rule definitions against the feature columns of mode.
func New(mode model.Mode, defs []config.RuleDef, defaultLabel string) (*Classifier, error) {
	if defaultLabel == "" {
		defaultLabel = DefaultLabel
	}
	c := &Classifier{defaultLabel: defaultLabel}
	for i, d := range defs {
		col := features.Index(mode, d.Feature)
		if col < 0 {
			return nil, fmt.Errorf("rule %d: unknown %s feature %q", i, mode, d.Feature)
		}
		if !validOperator(d.Operator) {
			return nil, fmt.Errorf("rule %d: unknown operator %q", i, d.Operator)
		}
		if d.Label == "" {
			return nil, fmt.Errorf("rule %d: label is required", i)
		}
		c.rules = append(c.rules, rule{label: d.Label, column: col, operator: d.Operator, threshold: d.Threshold})
	}
	return c, nil
}

// Predict evaluates the rules in order for every row.
func (c *Classifier) Predict(_ context.Context, rows [][]float64) ([]string, []float64, error) {
	labels := make([]string, len(rows))
	for i, row := range rows {
		labels[i] = c.defaultLabel
		for _, r := range c.rules {
			if r.column >= len(row) {
				return nil, nil, fmt.Errorf("row %d has %d columns, rule needs column %d", i, len(row), r.column)
			}
			if check(row[r.column], r.threshold, r.operator) {
				labels[i] = r.label
				break
			}
		}
	}
	return labels, nil, nil
}

// ReportsConfidence is false: rules produce no probabilities.
func (c *Classifier) ReportsConfidence() bool { return false }

func validOperator(op string) bool {
	switch op {
	case ">", "<", "=", ">=", "<=":
		return true
	}
	return false
}

// check compares a value against a threshold based on an operator.
func check(value, threshold float64, operator string) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case "=":
		return value == threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	default:
		return false
	}
}
