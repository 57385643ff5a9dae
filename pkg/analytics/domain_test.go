package analytics

import (
	"testing"

	"github.com/machinepulse/machinepulse/pkg/types"
)

func TestChartDomain(t *testing.T) {
	air := types.FieldBounds{Min: 295, Max: 305}
	proc := types.FieldBounds{Min: 300, Max: 315}

	lo, hi := ChartDomain(air, proc)
	// Range 295..315 = 20 → 2% padding = 0.4.
	if !almostEqual(lo, 294.6, 1e-9) || !almostEqual(hi, 315.4, 1e-9) {
		t.Errorf("ChartDomain = [%v, %v], want [294.6, 315.4]", lo, hi)
	}

	if lo, hi := ChartDomain(); lo != 0 || hi != 0 {
		t.Errorf("ChartDomain() = [%v, %v], want [0, 0]", lo, hi)
	}

	if lo, hi := ChartDomain(types.FieldBounds{Min: 10, Max: 10}); lo != 10 || hi != 10 {
		t.Errorf("flat domain = [%v, %v], want [10, 10]", lo, hi)
	}
}
