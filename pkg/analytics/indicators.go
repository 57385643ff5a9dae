package analytics

import (
	"fmt"
	"math"

	"github.com/machinepulse/machinepulse/pkg/types"
)

// Default estimator settings.
const (
	DefaultWindow           = 100
	DefaultMaintenanceScale = 10.0
	DefaultFailureThreshold = 5.0
)

// Risk score contributions and the thresholds that map a score to a level.
const (
	scorePrimaryHigh   = 2
	scoreSecondaryHigh = 2
	scoreFailureRate   = 1

	thresholdMedium = 2
	thresholdHigh   = 4
)

// maintenanceHorizon is the time-to-maintenance reported for a perfectly
// flat primary signal.
const maintenanceHorizon = 100.0

// IndicatorConfig controls EstimateIndicators.
type IndicatorConfig struct {
	// PrimaryField drives the volatility estimate and contributes to the risk score.
	PrimaryField types.FieldName

	// SecondaryField contributes to the risk score only.
	SecondaryField types.FieldName

	// Window is the maximum number of most recent readings considered.
	Window int

	// MaintenanceScale converts volatility into hours subtracted from the
	// maintenance horizon. Deployments have used 10 and 70.
	MaintenanceScale float64

	// FailureThreshold is the failure probability (percent) above which the
	// risk score is raised by one.
	FailureThreshold float64
}

// DefaultIndicatorConfig returns the settings of the reference dashboard:
// air temperature as primary, process temperature as secondary.
func DefaultIndicatorConfig() IndicatorConfig {
	return IndicatorConfig{
		PrimaryField:     types.FieldAirTemp,
		SecondaryField:   types.FieldProcessTemp,
		Window:           DefaultWindow,
		MaintenanceScale: DefaultMaintenanceScale,
		FailureThreshold: DefaultFailureThreshold,
	}
}

func (c IndicatorConfig) validate() error {
	if c.PrimaryField == "" || c.SecondaryField == "" {
		return ErrInvalidField
	}
	if c.Window <= 0 {
		return fmt.Errorf("window %d must be positive: %w", c.Window, ErrInvalidConfig)
	}
	if c.MaintenanceScale < 0 || math.IsNaN(c.MaintenanceScale) {
		return fmt.Errorf("maintenance scale %v must not be negative: %w", c.MaintenanceScale, ErrInvalidConfig)
	}
	return nil
}

// EstimateIndicators derives failure probability, risk level and
// time-to-maintenance from readings and the bounds computed over them.
//
// An empty sequence returns {0, Low, 0}. boundsByField must hold bounds for
// cfg.PrimaryField and cfg.SecondaryField.
func EstimateIndicators(readings []types.Reading, boundsByField map[types.FieldName]types.FieldBounds, cfg IndicatorConfig) (types.PredictiveIndicators, error) {
	if err := cfg.validate(); err != nil {
		return types.PredictiveIndicators{}, fmt.Errorf("analytics: estimate indicators: %w", err)
	}
	if err := validateSequence(readings); err != nil {
		return types.PredictiveIndicators{}, fmt.Errorf("analytics: estimate indicators: %w", err)
	}
	if len(readings) == 0 {
		return types.PredictiveIndicators{RiskLevel: types.RiskLow}, nil
	}

	primary, ok := boundsByField[cfg.PrimaryField]
	if !ok {
		return types.PredictiveIndicators{}, fmt.Errorf("analytics: estimate indicators: no bounds for %q: %w", cfg.PrimaryField, ErrUnknownField)
	}
	secondary, ok := boundsByField[cfg.SecondaryField]
	if !ok {
		return types.PredictiveIndicators{}, fmt.Errorf("analytics: estimate indicators: no bounds for %q: %w", cfg.SecondaryField, ErrUnknownField)
	}

	recent := recentWindow(readings, cfg.Window)
	probability := failureRate(recent)

	latest := readings[len(readings)-1]
	score := 0
	if v, ok := latest.Value(cfg.PrimaryField); ok && v > primary.High {
		score += scorePrimaryHigh
	}
	if v, ok := latest.Value(cfg.SecondaryField); ok && v > secondary.High {
		score += scoreSecondaryHigh
	}
	// The unrounded probability is compared, so 5.04% still raises the score.
	if probability > cfg.FailureThreshold {
		score += scoreFailureRate
	}

	volatility := meanAbsoluteChange(recent, cfg.PrimaryField)
	ttm := math.Max(0, math.Round(maintenanceHorizon-volatility*cfg.MaintenanceScale))

	return types.PredictiveIndicators{
		FailureProbability: roundTo(probability, 1),
		RiskLevel:          levelFromScore(score),
		RiskScore:          score,
		TimeToMaintenance:  int(ttm),
	}, nil
}

// recentWindow returns the last min(n, len(readings)) readings in order.
func recentWindow(readings []types.Reading, n int) []types.Reading {
	if len(readings) <= n {
		return readings
	}
	return readings[len(readings)-n:]
}

// failureRate returns the percentage of readings flagged with a failure.
func failureRate(readings []types.Reading) float64 {
	if len(readings) == 0 {
		return 0
	}
	var failures int
	for _, r := range readings {
		if r.HasFailure {
			failures++
		}
	}
	return float64(failures) / float64(len(readings)) * 100
}

// meanAbsoluteChange sums |v[i]-v[i-1]| over the window and divides by the
// window length, not the number of differences. Pairs with a missing side
// contribute nothing.
func meanAbsoluteChange(readings []types.Reading, field types.FieldName) float64 {
	if len(readings) == 0 {
		return 0
	}
	var sum float64
	for i := 1; i < len(readings); i++ {
		cur, ok1 := readings[i].Value(field)
		prev, ok2 := readings[i-1].Value(field)
		if !ok1 || !ok2 {
			continue
		}
		sum += math.Abs(cur - prev)
	}
	return sum / float64(len(readings))
}

// levelFromScore maps an integer risk score to a RiskLevel.
func levelFromScore(score int) types.RiskLevel {
	switch {
	case score >= thresholdHigh:
		return types.RiskHigh
	case score >= thresholdMedium:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

// roundTo rounds v to the given number of decimal places, halves away from zero.
func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
