package analytics

import (
	"errors"
	"testing"

	"github.com/machinepulse/machinepulse/pkg/types"
)

// temps builds readings with air and process temperatures and failures at
// the given positions.
func temps(air, process []float64, failures ...int) []types.Reading {
	out := make([]types.Reading, len(air))
	for i := range air {
		out[i] = types.Reading{
			Index: i,
			Values: map[types.FieldName]float64{
				types.FieldAirTemp:     air[i],
				types.FieldProcessTemp: process[i],
			},
		}
	}
	for _, f := range failures {
		out[f].HasFailure = true
	}
	return out
}

// constant returns n copies of v.
func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// wideBounds never flags the latest reading as high.
func wideBounds() map[types.FieldName]types.FieldBounds {
	return map[types.FieldName]types.FieldBounds{
		types.FieldAirTemp:     band(types.FieldAirTemp, -1e9, 1e9),
		types.FieldProcessTemp: band(types.FieldProcessTemp, -1e9, 1e9),
	}
}

func TestEstimateIndicators_Empty(t *testing.T) {
	got, err := EstimateIndicators(nil, nil, DefaultIndicatorConfig())
	if err != nil {
		t.Fatalf("EstimateIndicators() error = %v", err)
	}
	want := types.PredictiveIndicators{FailureProbability: 0, RiskLevel: types.RiskLow, TimeToMaintenance: 0}
	if got != want {
		t.Errorf("empty input = %+v, want %+v", got, want)
	}
}

func TestEstimateIndicators_FailureProbability(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		failures []int
		want     float64
	}{
		{"none", 10, nil, 0},
		{"two of ten", 10, []int{2, 7}, 20.0},
		{"one of three rounds to one decimal", 3, []int{1}, 33.3},
		{"two of three rounds half up", 3, []int{0, 2}, 66.7},
		{"all", 4, []int{0, 1, 2, 3}, 100},
		{"outside window ignored", 150, []int{0, 10, 49, 120}, 1.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			readings := temps(constant(tc.n, 300), constant(tc.n, 310), tc.failures...)
			got, err := EstimateIndicators(readings, wideBounds(), DefaultIndicatorConfig())
			if err != nil {
				t.Fatalf("EstimateIndicators() error = %v", err)
			}
			if got.FailureProbability != tc.want {
				t.Errorf("FailureProbability = %v, want %v", got.FailureProbability, tc.want)
			}
		})
	}
}

func TestEstimateIndicators_RiskLevel(t *testing.T) {
	bounds := map[types.FieldName]types.FieldBounds{
		types.FieldAirTemp:     band(types.FieldAirTemp, 290, 305),
		types.FieldProcessTemp: band(types.FieldProcessTemp, 300, 315),
	}

	tests := []struct {
		name       string
		latestAir  float64
		latestProc float64
		failures   []int
		wantScore  int
		wantLevel  types.RiskLevel
	}{
		{"nominal", 300, 310, nil, 0, types.RiskLow},
		{"failure rate only", 300, 310, []int{0}, 1, types.RiskLow},
		{"air high", 306, 310, nil, 2, types.RiskMedium},
		{"process high", 300, 316, nil, 2, types.RiskMedium},
		{"air high plus failures", 306, 310, []int{0}, 3, types.RiskMedium},
		{"both high", 306, 316, nil, 4, types.RiskHigh},
		{"both high plus failures", 306, 316, []int{0, 1}, 5, types.RiskHigh},
		{"below low does not count", 280, 290, nil, 0, types.RiskLow},
		{"equal to high does not count", 305, 315, nil, 0, types.RiskLow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// 10 readings: one failure is 10% (> 5%).
			air := append(constant(9, 300), tc.latestAir)
			proc := append(constant(9, 310), tc.latestProc)
			got, err := EstimateIndicators(temps(air, proc, tc.failures...), bounds, DefaultIndicatorConfig())
			if err != nil {
				t.Fatalf("EstimateIndicators() error = %v", err)
			}
			if got.RiskScore != tc.wantScore || got.RiskLevel != tc.wantLevel {
				t.Errorf("risk = %d/%s, want %d/%s", got.RiskScore, got.RiskLevel, tc.wantScore, tc.wantLevel)
			}
		})
	}
}

func TestEstimateIndicators_ThresholdUsesUnroundedProbability(t *testing.T) {
	// 1 failure in 19 readings = 5.263% → above 5.
	got, err := EstimateIndicators(temps(constant(19, 300), constant(19, 310), 3), wideBounds(), DefaultIndicatorConfig())
	if err != nil {
		t.Fatal(err)
	}
	if got.RiskScore != 1 {
		t.Errorf("RiskScore = %d, want 1", got.RiskScore)
	}

	// 1 failure in 20 readings = exactly 5% → not above 5.
	got, err = EstimateIndicators(temps(constant(20, 300), constant(20, 310), 3), wideBounds(), DefaultIndicatorConfig())
	if err != nil {
		t.Fatal(err)
	}
	if got.RiskScore != 0 {
		t.Errorf("RiskScore at exactly 5%% = %d, want 0", got.RiskScore)
	}
}

func TestEstimateIndicators_TimeToMaintenance(t *testing.T) {
	// Ten readings alternating by 1 K: nine differences of 1, divided by the
	// window length 10 → volatility 0.9.
	alternating := []float64{300, 301, 300, 301, 300, 301, 300, 301, 300, 301}

	tests := []struct {
		name  string
		air   []float64
		scale float64
		want  int
	}{
		{"flat signal", constant(10, 300), 10, 100},
		{"scale 10", alternating, 10, 91},
		{"scale 70", alternating, 70, 37},
		{"scale zero", alternating, 0, 100},
		{"clamped at zero", []float64{300, 320, 300, 320}, 10, 0},
		{"single reading", []float64{300}, 10, 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultIndicatorConfig()
			cfg.MaintenanceScale = tc.scale
			got, err := EstimateIndicators(temps(tc.air, constant(len(tc.air), 310)), wideBounds(), cfg)
			if err != nil {
				t.Fatalf("EstimateIndicators() error = %v", err)
			}
			if got.TimeToMaintenance != tc.want {
				t.Errorf("TimeToMaintenance = %d, want %d", got.TimeToMaintenance, tc.want)
			}
		})
	}
}

func TestEstimateIndicators_VolatilityUsesRecentWindow(t *testing.T) {
	// A large jump early on falls outside the 100-reading window.
	air := append([]float64{500}, constant(100, 300)...)
	got, err := EstimateIndicators(temps(air, constant(len(air), 310)), wideBounds(), DefaultIndicatorConfig())
	if err != nil {
		t.Fatal(err)
	}
	if got.TimeToMaintenance != 100 {
		t.Errorf("TimeToMaintenance = %d, want 100", got.TimeToMaintenance)
	}
}

func TestMeanAbsoluteChange_SkipsMissingPairs(t *testing.T) {
	readings := []types.Reading{
		{Index: 0, Values: map[types.FieldName]float64{types.FieldAirTemp: 1}},
		{Index: 1, Values: map[types.FieldName]float64{types.FieldAirTemp: 3}},
		{Index: 2},
		{Index: 3, Values: map[types.FieldName]float64{types.FieldAirTemp: 10}},
	}
	// Only 1→3 counts; divided by 4 readings.
	if got := meanAbsoluteChange(readings, types.FieldAirTemp); got != 0.5 {
		t.Errorf("meanAbsoluteChange = %v, want 0.5", got)
	}
}

func TestEstimateIndicators_InvalidArguments(t *testing.T) {
	readings := temps(constant(3, 300), constant(3, 310))

	missing := map[types.FieldName]types.FieldBounds{types.FieldAirTemp: band(types.FieldAirTemp, 0, 1)}
	if _, err := EstimateIndicators(readings, missing, DefaultIndicatorConfig()); !errors.Is(err, ErrUnknownField) {
		t.Errorf("missing secondary bounds: err = %v, want ErrUnknownField", err)
	}

	cfg := DefaultIndicatorConfig()
	cfg.Window = 0
	if _, err := EstimateIndicators(readings, wideBounds(), cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zero window: err = %v, want ErrInvalidConfig", err)
	}

	cfg = DefaultIndicatorConfig()
	cfg.MaintenanceScale = -1
	if _, err := EstimateIndicators(readings, wideBounds(), cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("negative scale: err = %v, want ErrInvalidConfig", err)
	}

	cfg = DefaultIndicatorConfig()
	cfg.PrimaryField = ""
	if _, err := EstimateIndicators(readings, wideBounds(), cfg); !errors.Is(err, ErrInvalidField) {
		t.Errorf("empty primary field: err = %v, want ErrInvalidField", err)
	}
}

func TestLevelFromScore(t *testing.T) {
	tests := []struct {
		score int
		want  types.RiskLevel
	}{
		{0, types.RiskLow}, {1, types.RiskLow},
		{2, types.RiskMedium}, {3, types.RiskMedium},
		{4, types.RiskHigh}, {5, types.RiskHigh},
	}
	for _, tc := range tests {
		if got := levelFromScore(tc.score); got != tc.want {
			t.Errorf("levelFromScore(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
