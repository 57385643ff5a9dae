package analytics

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/machinepulse/machinepulse/pkg/types"
)

// sigmaMultiplier is the number of standard deviations between the mean and
// each bound.
const sigmaMultiplier = 2

// ComputeFieldBounds returns the population statistics of field across readings.
//
// Values that are missing or exactly zero are excluded. When nothing remains
// the zero FieldBounds (with Field set) is returned and err is nil.
func ComputeFieldBounds(readings []types.Reading, field types.FieldName) (types.FieldBounds, error) {
	if field == "" {
		return types.FieldBounds{}, fmt.Errorf("analytics: compute bounds: %w", ErrInvalidField)
	}
	if err := validateSequence(readings); err != nil {
		return types.FieldBounds{}, fmt.Errorf("analytics: compute bounds for %q: %w", field, err)
	}

	values := presentValues(readings, field)
	if len(values) == 0 {
		return types.FieldBounds{Field: field}, nil
	}

	mean, std := stat.PopMeanStdDev(values, nil)
	if len(values) == 1 {
		std = 0
	}
	return types.FieldBounds{
		Field:  field,
		Mean:   mean,
		StdDev: std,
		High:   mean + sigmaMultiplier*std,
		Low:    mean - sigmaMultiplier*std,
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Count:  len(values),
	}, nil
}

// presentValues collects the non-missing, non-zero values of field in order.
func presentValues(readings []types.Reading, field types.FieldName) []float64 {
	out := make([]float64, 0, len(readings))
	for _, r := range readings {
		v, ok := r.Value(field)
		if !ok || v == 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}
