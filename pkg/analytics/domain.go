package analytics

import "github.com/machinepulse/machinepulse/pkg/types"

// domainPadding is the fraction of the observed range added on each side of
// the chart domain.
const domainPadding = 0.02

// ChartDomain returns a y-axis domain covering the observed Min and Max of
// every bounds entry, padded by 2% of the range on both sides.
// It returns (0, 0) when no bounds are given.
func ChartDomain(bounds ...types.FieldBounds) (lo, hi float64) {
	if len(bounds) == 0 {
		return 0, 0
	}
	lo, hi = bounds[0].Min, bounds[0].Max
	for _, b := range bounds[1:] {
		if b.Min < lo {
			lo = b.Min
		}
		if b.Max > hi {
			hi = b.Max
		}
	}
	pad := (hi - lo) * domainPadding
	return lo - pad, hi + pad
}
