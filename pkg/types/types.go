package types

import "math"

// FieldName identifies one numeric sensor channel on a Reading.
type FieldName string

// Well-known field names produced by the bundled sources.
const (
	FieldAirTemp     FieldName = "airTemp"
	FieldProcessTemp FieldName = "processTemp"
	FieldWear        FieldName = "wear"
)

// Reading is one sample at a discrete sequence position.
//
// A field is missing when it is absent from Values or holds a non-finite
// value (NaN or ±Inf).
// Readings are treated as immutable once produced.
type Reading struct {
	// Index defines ordering within a sequence. It is not a timestamp.
	Index      int                   `json:"index"`
	Values     map[FieldName]float64 `json:"values"`
	HasFailure bool                  `json:"has_failure"`
}

// Value returns the value of field and whether it is present.
func (r Reading) Value(field FieldName) (float64, bool) {
	v, ok := r.Values[field]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FieldBounds is the statistical envelope of one field over one sequence.
type FieldBounds struct {
	Field  FieldName `json:"field"`
	Mean   float64   `json:"mean"`
	StdDev float64   `json:"std_dev"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	// Count is the number of values that contributed to the statistics.
	Count int `json:"count"`
}

// AnomalyRegion is an inclusive [Start, End] range of sequence positions.
type AnomalyRegion struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of positions covered by the region.
func (r AnomalyRegion) Len() int { return r.End - r.Start + 1 }

// RiskLevel is the coarse three-tier risk classification.
type RiskLevel string

// Risk levels in increasing order of severity.
const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// PredictiveIndicators is the derived summary for one sequence.
type PredictiveIndicators struct {
	// FailureProbability is a percentage in [0, 100] rounded to one decimal.
	FailureProbability float64   `json:"failure_probability"`
	RiskLevel          RiskLevel `json:"risk_level"`
	// RiskScore is the integer score RiskLevel was derived from.
	RiskScore int `json:"risk_score"`
	// TimeToMaintenance is expressed in a host-defined unit (hours).
	TimeToMaintenance int `json:"time_to_maintenance"`
}
