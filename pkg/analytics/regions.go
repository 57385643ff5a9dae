package analytics

import (
	"fmt"

	"github.com/machinepulse/machinepulse/pkg/types"
)

// FieldMonitor pairs a field with the bounds its values are checked against.
type FieldMonitor struct {
	Field  types.FieldName
	Bounds types.FieldBounds
}

// MonitorsFor builds one FieldMonitor per bounds entry, in the given order.
func MonitorsFor(bounds ...types.FieldBounds) []FieldMonitor {
	out := make([]FieldMonitor, 0, len(bounds))
	for _, b := range bounds {
		out = append(out, FieldMonitor{Field: b.Field, Bounds: b})
	}
	return out
}

// FindExtremeRegions returns the maximal runs of positions at which at least
// one monitored field is above its High or below its Low bound.
//
// Regions are inclusive position ranges into readings, sorted by Start and
// non-overlapping. A missing value is never extreme. The result is non-nil
// and empty when no position is extreme.
func FindExtremeRegions(readings []types.Reading, monitors []FieldMonitor) ([]types.AnomalyRegion, error) {
	for i, m := range monitors {
		if m.Field == "" {
			return nil, fmt.Errorf("analytics: find regions: monitor %d: %w", i, ErrInvalidField)
		}
	}
	if err := validateSequence(readings); err != nil {
		return nil, fmt.Errorf("analytics: find regions: %w", err)
	}

	regions := []types.AnomalyRegion{}
	start := -1
	for i, r := range readings {
		extreme := isExtreme(r, monitors)
		switch {
		case extreme && start < 0:
			start = i
		case !extreme && start >= 0:
			regions = append(regions, types.AnomalyRegion{Start: start, End: i - 1})
			start = -1
		}
	}
	if start >= 0 {
		regions = append(regions, types.AnomalyRegion{Start: start, End: len(readings) - 1})
	}
	return regions, nil
}

// isExtreme reports whether any monitored field of r lies outside its bounds.
func isExtreme(r types.Reading, monitors []FieldMonitor) bool {
	for _, m := range monitors {
		v, ok := r.Value(m.Field)
		if !ok {
			continue
		}
		if v > m.Bounds.High || v < m.Bounds.Low {
			return true
		}
	}
	return false
}
