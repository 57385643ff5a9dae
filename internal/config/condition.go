package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition fields understood by the alert engine.
var (
	numericConditionFields = map[string]bool{
		"failure_probability": true,
		"time_to_maintenance": true,
		"risk_score":          true,
		"anomaly_regions":     true,
		"uptime_pct":          true,
	}
	labelConditionFields = map[string]bool{
		"risk_level": true,
		"state":      true,
	}
	comparisonOps = map[string]bool{">": true, ">=": true, "<": true, "<=": true, "==": true, "!=": true}
)

// CheckCondition reports whether cond is a well-formed alert condition of
// the form "field operator value", with fields separated by whitespace.
// Numeric fields take any comparison operator and a number; risk_level and
// state take == or != and a word.
func CheckCondition(cond string) error {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return fmt.Errorf("condition %q: want \"field operator value\"", cond)
	}
	field, op, rhs := parts[0], parts[1], parts[2]
	switch {
	case labelConditionFields[field]:
		if op != "==" && op != "!=" {
			return fmt.Errorf("condition %q: %s supports only == and !=", cond, field)
		}
	case numericConditionFields[field]:
		if !comparisonOps[op] {
			return fmt.Errorf("condition %q: unknown operator %q", cond, op)
		}
		if _, err := strconv.ParseFloat(rhs, 64); err != nil {
			return fmt.Errorf("condition %q: value %q is not a number", cond, rhs)
		}
	default:
		return fmt.Errorf("condition %q: unknown field %q", cond, field)
	}
	return nil
}
