package alerts

import (
	"strconv"
	"strings"

	"github.com/machinepulse/machinepulse/internal/compute"
)

// evalCondition evaluates a rule condition string against a line result.
//
// Supported expressions (field operator value):
//
//	failure_probability > 5
//	time_to_maintenance < 24
//	risk_score >= 4
//	anomaly_regions > 3
//	uptime_pct < 90
//	risk_level == high
//	state == unknown
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, res *compute.Result) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	switch field {
	case "risk_level":
		if op != "==" && op != "!=" {
			return false, 0
		}
		// Results that could not be analysed carry no risk level.
		if res.State == compute.StateUnknown {
			return false, 0
		}
		eq := strings.EqualFold(string(res.Indicators.RiskLevel), rhs)
		return eq == (op == "=="), float64(res.Indicators.RiskScore)

	case "state":
		if op != "==" && op != "!=" {
			return false, 0
		}
		eq := strings.EqualFold(res.State, rhs)
		return eq == (op == "=="), 0

	default:
		v, ok := numericField(field, res)
		if !ok {
			return false, 0
		}
		threshold, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return false, 0
		}
		return compareFloat(v, op, threshold), v
	}
}

// numericField maps a field name to its value in the result.
// Analysed fields are unavailable while the line state is unknown.
func numericField(field string, res *compute.Result) (float64, bool) {
	if field == "uptime_pct" {
		return res.UptimePct, true
	}
	if res.State == compute.StateUnknown {
		return 0, false
	}
	switch field {
	case "failure_probability":
		return res.Indicators.FailureProbability, true
	case "time_to_maintenance":
		return float64(res.Indicators.TimeToMaintenance), true
	case "risk_score":
		return float64(res.Indicators.RiskScore), true
	case "anomaly_regions":
		return float64(len(res.Regions)), true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
