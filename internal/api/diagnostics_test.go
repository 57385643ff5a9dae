package api

import (
	"testing"

	"github.com/machinepulse/machinepulse/internal/compute"
	"github.com/machinepulse/machinepulse/internal/config"
	"github.com/machinepulse/machinepulse/pkg/types"
)

func keys(hints []DiagnosticHint) []string {
	out := make([]string, len(hints))
	for i, h := range hints {
		out[i] = h.Key
	}
	return out
}

func hasKey(hints []DiagnosticHint, key string) bool {
	for _, h := range hints {
		if h.Key == key {
			return true
		}
	}
	return false
}

func TestDiagnostics_RefreshFailed(t *testing.T) {
	hints := computeDiagnostics(&compute.Result{State: compute.StateUnknown, ErrorMessage: "timeout", UptimePct: 50})
	if len(hints) != 1 || hints[0].Key != "refresh_failed" || hints[0].Level != "critical" {
		t.Errorf("hints: %v", keys(hints))
	}
}

func TestDiagnostics_NoReadings(t *testing.T) {
	hints := computeDiagnostics(&compute.Result{State: compute.StateUnknown, UptimePct: 100})
	if len(hints) != 1 || hints[0].Key != "no_readings" {
		t.Errorf("hints: %v", keys(hints))
	}
}

func TestDiagnostics_AllClear(t *testing.T) {
	hints := computeDiagnostics(&compute.Result{
		Kind: config.LineCSV, State: compute.StateLow, ReadingCount: 200, UptimePct: 100,
		Indicators: types.PredictiveIndicators{RiskLevel: types.RiskLow, TimeToMaintenance: 95},
	})
	if len(hints) != 1 || hints[0].Key != "healthy" || hints[0].Level != "ok" {
		t.Errorf("hints: %v", keys(hints))
	}
}

func TestDiagnostics_HighRiskOrdering(t *testing.T) {
	latest := types.Reading{Index: 99, Values: map[types.FieldName]float64{types.FieldAirTemp: 310}}
	hints := computeDiagnostics(&compute.Result{
		Kind: config.LineCSV, State: compute.StateHigh, ReadingCount: 100, UptimePct: 95,
		Regions: []types.AnomalyRegion{{Start: 99, End: 99}},
		Bounds:  []types.FieldBounds{{Field: types.FieldAirTemp, High: 305, Low: 295, Count: 100}},
		Latest:  &latest,
		Indicators: types.PredictiveIndicators{
			FailureProbability: 7, RiskLevel: types.RiskHigh, RiskScore: 5, TimeToMaintenance: 5,
		},
	})

	for _, k := range []string{"risk_level", "maintenance_due", "failure_rate", "anomaly_regions", "out_of_band_airTemp", "uptime"} {
		if !hasKey(hints, k) {
			t.Errorf("missing hint %q in %v", k, keys(hints))
		}
	}
	for i := 1; i < len(hints); i++ {
		if levelRank(hints[i].Level) > levelRank(hints[i-1].Level) {
			t.Fatalf("hints not ordered by severity: %v", keys(hints))
		}
	}
	if hints[0].Level != "critical" {
		t.Errorf("first hint level: got %q, want critical", hints[0].Level)
	}
}

func TestDiagnostics_StreamingWarmUp(t *testing.T) {
	hints := computeDiagnostics(&compute.Result{
		Kind: config.LineKafka, State: compute.StateLow, ReadingCount: 3, UptimePct: 100,
		Indicators: types.PredictiveIndicators{RiskLevel: types.RiskLow, TimeToMaintenance: 100},
	})
	if !hasKey(hints, "warming_up") || hasKey(hints, "healthy") {
		t.Errorf("hints: %v", keys(hints))
	}
}
