package compute

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/machinepulse/machinepulse/internal/config"
	"github.com/machinepulse/machinepulse/internal/source"
	"github.com/machinepulse/machinepulse/pkg/analytics"
	"github.com/machinepulse/machinepulse/pkg/types"
)

// uptimeWindow is the number of recent refresh outcomes tracked for uptime %.
const uptimeWindow = 20

// State constants. A successful refresh mirrors the risk level.
const (
	StateLow     = "low"
	StateMedium  = "medium"
	StateHigh    = "high"
	StateUnknown = "unknown"
)

// Result is the analysed view of one line after a refresh.
type Result struct {
	LineID       string
	Kind         string
	Timestamp    time.Time
	State        string
	Bounds       []types.FieldBounds // one per monitored field, in config order
	Regions      []types.AnomalyRegion
	Indicators   types.PredictiveIndicators
	YDomain      [2]float64
	ReadingCount int
	UptimePct    float64
	ErrorMessage string // non-empty when the refresh or the analysis failed

	// Latest is the last reading of the batch, nil when there were none.
	Latest *types.Reading
}

// BoundsFor returns the bounds of field, if it is monitored.
func (r *Result) BoundsFor(field types.FieldName) (types.FieldBounds, bool) {
	for _, b := range r.Bounds {
		if b.Field == field {
			return b, true
		}
	}
	return types.FieldBounds{}, false
}

// Engine analyses batches and keeps per-line uptime history.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	fields []types.FieldName
	icfg   analytics.IndicatorConfig
	states map[string]*lineState
}

// NewEngine returns an Engine for the given monitor settings.
func NewEngine(cfg config.MonitorConfig) *Engine {
	e := &Engine{states: make(map[string]*lineState)}
	e.configure(cfg)
	return e
}

// Reconfigure swaps the monitor settings used by subsequent calls to Process.
// Uptime history is kept.
func (e *Engine) Reconfigure(cfg config.MonitorConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configure(cfg)
}

func (e *Engine) configure(cfg config.MonitorConfig) {
	e.fields = make([]types.FieldName, 0, len(cfg.Fields))
	for _, f := range cfg.Fields {
		e.fields = append(e.fields, types.FieldName(f))
	}
	e.icfg = IndicatorConfig(cfg)
}

// IndicatorConfig converts monitor settings into estimator settings.
// Empty field names and a non-positive window fall back to the analytics
// defaults; maintenance scale and failure threshold are taken as given, so
// an explicit zero stays zero.
func IndicatorConfig(cfg config.MonitorConfig) analytics.IndicatorConfig {
	ic := analytics.DefaultIndicatorConfig()
	ic.MaintenanceScale = cfg.MaintenanceScale
	ic.FailureThreshold = cfg.FailureThreshold
	if cfg.PrimaryField != "" {
		ic.PrimaryField = types.FieldName(cfg.PrimaryField)
	}
	if cfg.SecondaryField != "" {
		ic.SecondaryField = types.FieldName(cfg.SecondaryField)
	}
	if cfg.Window > 0 {
		ic.Window = cfg.Window
	}
	return ic
}

// Process analyses b and returns the derived Result.
//
// now is passed explicitly so callers (and tests) control the clock.
// A batch carrying Err, or one the analytics core rejects, yields State
// "unknown" with ErrorMessage set.
func (e *Engine) Process(b *source.Batch, now time.Time) *Result {
	e.mu.Lock()
	st := e.stateFor(b.LineID)
	fields := e.fields
	icfg := e.icfg

	out := &Result{
		LineID:       b.LineID,
		Kind:         b.Kind,
		Timestamp:    now,
		ReadingCount: len(b.Readings),
		Regions:      []types.AnomalyRegion{},
	}
	if b.Err != nil {
		st.recordRefresh(false)
		out.UptimePct = st.uptimePct()
		e.mu.Unlock()
		slog.Warn("compute: refresh failed, marking unknown", "line", b.LineID, "err", b.Err)
		out.State = StateUnknown
		out.ErrorMessage = b.Err.Error()
		return out
	}
	st.recordRefresh(true)
	out.UptimePct = st.uptimePct()
	e.mu.Unlock()

	if err := Analyze(out, b.Readings, fields, icfg); err != nil {
		slog.Warn("compute: analysis failed", "line", b.LineID, "err", err)
		out.State = StateUnknown
		out.ErrorMessage = err.Error()
		return out
	}
	return out
}

// Analyze fills the analytic fields of out from readings. It is the
// stateless part of Process and is also used by one-shot analysis.
func Analyze(out *Result, readings []types.Reading, fields []types.FieldName, icfg analytics.IndicatorConfig) error {
	out.ReadingCount = len(readings)
	if len(readings) > 0 {
		latest := readings[len(readings)-1]
		out.Latest = &latest
	}

	byField := make(map[types.FieldName]types.FieldBounds, len(fields))
	out.Bounds = make([]types.FieldBounds, 0, len(fields))
	for _, f := range fields {
		fb, err := analytics.ComputeFieldBounds(readings, f)
		if err != nil {
			return err
		}
		byField[f] = fb
		out.Bounds = append(out.Bounds, fb)
	}

	regions, err := analytics.FindExtremeRegions(readings, analytics.MonitorsFor(out.Bounds...))
	if err != nil {
		return err
	}
	out.Regions = regions

	ind, err := analytics.EstimateIndicators(readings, byField, icfg)
	if err != nil {
		return err
	}
	out.Indicators = ind

	observed := make([]types.FieldBounds, 0, len(out.Bounds))
	for _, fb := range out.Bounds {
		if fb.Count > 0 {
			observed = append(observed, fb)
		}
	}
	lo, hi := analytics.ChartDomain(observed...)
	out.YDomain = [2]float64{lo, hi}

	if len(readings) == 0 {
		out.State = StateUnknown
		return nil
	}
	out.State = strings.ToLower(string(ind.RiskLevel))
	return nil
}

// Forget drops uptime history for lines no longer configured.
func (e *Engine) Forget(lineID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, lineID)
}

// lineState holds per-line refresh history.
type lineState struct {
	history []bool // refresh outcomes, newest last
}

func (e *Engine) stateFor(id string) *lineState {
	if st, ok := e.states[id]; ok {
		return st
	}
	st := &lineState{}
	e.states[id] = st
	return st
}

func (st *lineState) recordRefresh(success bool) {
	if len(st.history) >= uptimeWindow {
		st.history = st.history[1:]
	}
	st.history = append(st.history, success)
}

func (st *lineState) uptimePct() float64 {
	if len(st.history) == 0 {
		return 100 // assume up before first observation
	}
	var ok int
	for _, s := range st.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(st.history)) * 100
}
