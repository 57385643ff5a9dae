package api

import (
	"fmt"
	"sort"

	"github.com/machinepulse/machinepulse/internal/compute"
	"github.com/machinepulse/machinepulse/internal/config"
)

// Thresholds for maintenance hints, in hours.
const (
	maintenanceSoonHours   = 24
	maintenanceUrgentHours = 8
)

// DiagnosticHint is one human-readable insight about a line.
// The UI shows these as chips on the line card; Detail is the full
// explanation revealed on click.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives diagnostic hints from a result.
// Hints are ordered: critical first, then warnings, then info.
func computeDiagnostics(res *compute.Result) []DiagnosticHint {
	var hints []DiagnosticHint

	if res.ErrorMessage != "" {
		hints = append(hints, DiagnosticHint{
			Key:   "refresh_failed",
			Level: "critical",
			Title: "No data from line",
			Detail: fmt.Sprintf(
				"The last refresh of this line failed with: %q. "+
					"Check that the source is reachable and that its credentials and column "+
					"mapping are correct. Indicators are unavailable until the next successful refresh.",
				res.ErrorMessage,
			),
		})
		return hints
	}

	if res.ReadingCount == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "no_readings",
			Level: "info",
			Title: "Waiting for readings",
			Detail: "The source answered but has not produced any readings yet. " +
				"Streaming sources fill up as messages or scrapes arrive.",
		})
		return hints
	}

	ind := res.Indicators
	score := float64(ind.RiskScore)
	switch res.State {
	case compute.StateHigh:
		hints = append(hints, DiagnosticHint{
			Key:   "risk_level",
			Level: "critical",
			Title: "High failure risk",
			Detail: fmt.Sprintf(
				"The latest readings put this line at risk score %d. "+
					"Temperatures are above their normal band and/or failures are frequent. "+
					"Plan an inspection before the next shift.", ind.RiskScore),
			Value: &score,
		})
	case compute.StateMedium:
		hints = append(hints, DiagnosticHint{
			Key:   "risk_level",
			Level: "warning",
			Title: "Elevated failure risk",
			Detail: fmt.Sprintf(
				"Risk score %d: one temperature is above its normal band or recent "+
					"failures are above threshold. Watch the trend.", ind.RiskScore),
			Value: &score,
		})
	}

	if ind.TimeToMaintenance < maintenanceSoonHours {
		ttm := float64(ind.TimeToMaintenance)
		level := "warning"
		if ind.TimeToMaintenance < maintenanceUrgentHours {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "maintenance_due",
			Level: level,
			Title: fmt.Sprintf("Maintenance in %dh", ind.TimeToMaintenance),
			Detail: "The primary temperature is fluctuating strongly between readings, " +
				"which shortens the estimated time to maintenance.",
			Value: &ttm,
		})
	}

	if ind.FailureProbability > 0 {
		fp := ind.FailureProbability
		hints = append(hints, DiagnosticHint{
			Key:   "failure_rate",
			Level: "info",
			Title: fmt.Sprintf("%.1f%% failure rate", fp),
			Detail: fmt.Sprintf(
				"%.1f%% of the most recent readings were recorded with a machine failure.", fp),
			Value: &fp,
		})
	}

	if n := len(res.Regions); n > 0 {
		v := float64(n)
		hints = append(hints, DiagnosticHint{
			Key:   "anomaly_regions",
			Level: "info",
			Title: fmt.Sprintf("%d extreme region(s)", n),
			Detail: "Shaded chart regions mark consecutive readings where at least one " +
				"monitored field left its mean ± 2σ band.",
			Value: &v,
		})
	}

	if res.Latest != nil {
		for _, b := range res.Bounds {
			v, ok := res.Latest.Value(b.Field)
			if !ok || b.Count == 0 {
				continue
			}
			if v > b.High || v < b.Low {
				val := v
				hints = append(hints, DiagnosticHint{
					Key:   "out_of_band_" + string(b.Field),
					Level: "warning",
					Title: fmt.Sprintf("%s out of band", b.Field),
					Detail: fmt.Sprintf(
						"The latest %s reading %.2f is outside its normal band [%.2f, %.2f].",
						b.Field, v, b.Low, b.High),
					Value: &val,
				})
			}
		}
	}

	if res.UptimePct < 100 && res.UptimePct > 0 {
		v := res.UptimePct
		var level string
		switch {
		case res.UptimePct < 70:
			level = "critical"
		case res.UptimePct < 90:
			level = "warning"
		default:
			level = "info"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "uptime",
			Level: level,
			Title: fmt.Sprintf("%.0f%% uptime", res.UptimePct),
			Detail: fmt.Sprintf(
				"The line answered %.0f%% of the last 20 refreshes. "+
					"Gaps usually mean the exporter, broker or file share was briefly unavailable.",
				res.UptimePct),
			Value: &v,
		})
	}

	hints = append(hints, sourceKindHints(res)...)

	if len(hints) == 0 {
		ttm := float64(ind.TimeToMaintenance)
		hints = append(hints, DiagnosticHint{
			Key:   "healthy",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf(
				"Temperatures are within their normal band, no failures were recorded "+
					"recently and maintenance is estimated in %d hours.", ind.TimeToMaintenance),
			Value: &ttm,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank(hints[i].Level) > levelRank(hints[j].Level)
	})
	return hints
}

// sourceKindHints returns hints specific to the line's source kind.
func sourceKindHints(res *compute.Result) []DiagnosticHint {
	var hints []DiagnosticHint

	switch res.Kind {
	case config.LinePrometheus, config.LineKafka, config.LineMQTT:
		if res.ReadingCount < 10 {
			hints = append(hints, DiagnosticHint{
				Key:   "warming_up",
				Level: "info",
				Title: "Warming up",
				Detail: fmt.Sprintf(
					"Only %d readings have been collected so far. Statistics "+
						"stabilise once the rolling buffer fills.", res.ReadingCount),
			})
		}
	case config.LineSynthetic:
		hints = append(hints, DiagnosticHint{
			Key:    "synthetic",
			Level:  "info",
			Title:  "Simulated data",
			Detail: "This line is fed by the built-in generator, not a real machine.",
		})
	}
	return hints
}

func levelRank(level string) int {
	switch level {
	case "critical":
		return 3
	case "warning":
		return 2
	case "info":
		return 1
	default:
		return 0
	}
}
