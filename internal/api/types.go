package api

import (
	"github.com/machinepulse/machinepulse/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is the worst state across live lines: high > medium > low,
	// or "unknown" when no line has been analysed.
	State        string `json:"state"`
	LineCount    int    `json:"line_count"`
	LowCount     int    `json:"low_count"`
	MediumCount  int    `json:"medium_count"`
	HighCount    int    `json:"high_count"`
	UnknownCount int    `json:"unknown_count"`
	AlertCount   int    `json:"alert_count"`
	// MaxFailureProbability is the highest failure probability across lines.
	MaxFailureProbability float64 `json:"max_failure_probability"`
	// MinTimeToMaintenance is the soonest maintenance across analysed lines.
	MinTimeToMaintenance *int `json:"min_time_to_maintenance,omitempty"`
}

// LineResponse is one line entry in GET /api/v1/lines or
// GET /api/v1/lines/{id}.
type LineResponse struct {
	LineID       string                     `json:"line_id"`
	Kind         string                     `json:"kind"`
	State        string                     `json:"state"`
	Bounds       []types.FieldBounds        `json:"bounds"`
	Regions      []types.AnomalyRegion      `json:"regions"`
	Indicators   types.PredictiveIndicators `json:"indicators"`
	YDomain      [2]float64                 `json:"y_domain"`
	ReadingCount int                        `json:"reading_count"`
	UptimePct    float64                    `json:"uptime_pct"`
	ErrorMessage string                     `json:"error_message,omitempty"`
	Latest       *types.Reading             `json:"latest,omitempty"`
	Diagnostics  []DiagnosticHint           `json:"diagnostics"`
	LastSeen     string                     `json:"last_seen"` // RFC3339
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket broadcast.
type SnapshotResponse struct {
	Lines       []LineResponse `json:"lines"`
	Alerts      []AlertView    `json:"alerts"`
	GeneratedAt string         `json:"generated_at"` // RFC3339
}

// AlertView is the JSON form of one alert.
type AlertView struct {
	ID         string  `json:"id"`
	RuleName   string  `json:"rule_name"`
	LineID     string  `json:"line_id"`
	Severity   string  `json:"severity"`
	Message    string  `json:"message"`
	Value      float64 `json:"value"`
	FiredAt    string  `json:"fired_at"`
	ResolvedAt string  `json:"resolved_at,omitempty"`
	State      string  `json:"state"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
