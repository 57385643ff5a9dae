package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/machinepulse/machinepulse/internal/alerts"
	"github.com/machinepulse/machinepulse/internal/compute"
	"github.com/machinepulse/machinepulse/internal/config"
	"github.com/machinepulse/machinepulse/internal/metrics"
	"github.com/machinepulse/machinepulse/internal/source"
	"github.com/machinepulse/machinepulse/internal/store"
	"github.com/machinepulse/machinepulse/pkg/types"
)

// Runner refreshes every configured line on a fixed interval.
//
// All exported methods are safe for concurrent use.
type Runner struct {
	engine  *compute.Engine
	store   *store.Store
	alerts  *alerts.Engine
	metrics *metrics.Recorder // nil disables metrics

	// newSource is injectable for tests.
	newSource func(config.Line) (source.Source, error)

	mu       sync.Mutex
	lines    map[string]*line
	monitor  config.MonitorConfig
	interval time.Duration
	reset    chan time.Duration
}

type line struct {
	cfg    config.Line
	src    source.Source
	cancel context.CancelFunc // stops a background consumer, if any
}

// New creates a Runner. rec may be nil.
func New(st *store.Store, eng *compute.Engine, al *alerts.Engine, rec *metrics.Recorder) *Runner {
	return &Runner{
		engine:    eng,
		store:     st,
		alerts:    al,
		metrics:   rec,
		newSource: source.New,
		lines:     make(map[string]*line),
		reset:     make(chan time.Duration, 1),
	}
}

// Apply brings the runner in line with cfg. New and changed lines get a
// fresh source; background consumers run under ctx until the line is
// removed or changed. Removed lines are dropped from the store and metrics,
// and their firing alerts are resolved.
func (r *Runner) Apply(ctx context.Context, cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.monitor = cfg.Monitor
	r.engine.Reconfigure(cfg.Monitor)
	r.alerts.Reconfigure(cfg.Alerts)

	wanted := make(map[string]bool, len(cfg.Lines))
	for _, lc := range cfg.Lines {
		wanted[lc.ID] = true
		if cur, ok := r.lines[lc.ID]; ok && reflect.DeepEqual(cur.cfg, lc) {
			continue
		}
		r.stopLocked(lc.ID)

		src, err := r.newSource(lc)
		if err != nil {
			slog.Error("monitor: skipping line, could not build source", "line", lc.ID, "err", err)
			continue
		}
		l := &line{cfg: lc, src: src, cancel: func() {}}
		if st, ok := src.(source.Starter); ok {
			lctx, cancel := context.WithCancel(ctx)
			l.cancel = cancel
			go st.Start(lctx)
		}
		r.lines[lc.ID] = l
		slog.Info("monitor: registered line", "line", lc.ID, "type", lc.Type)
	}

	for id := range r.lines {
		if !wanted[id] {
			r.stopLocked(id)
			r.store.Remove(id)
			r.engine.Forget(id)
			resolved := r.alerts.Forget(id)
			if r.metrics != nil {
				r.metrics.Forget(id)
				r.metrics.ObserveAlerts(resolved)
			}
			slog.Info("monitor: removed line", "line", id)
		}
	}

	if cfg.Monitor.RefreshInterval > 0 && cfg.Monitor.RefreshInterval != r.interval {
		r.interval = cfg.Monitor.RefreshInterval
		select {
		case <-r.reset:
		default:
		}
		r.reset <- r.interval
	}
}

// stopLocked stops and forgets the line's source. Callers hold r.mu.
func (r *Runner) stopLocked(id string) {
	if l, ok := r.lines[id]; ok {
		l.cancel()
		delete(r.lines, id)
	}
}

// Lines returns the IDs of the registered lines.
func (r *Runner) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.lines))
	for id := range r.lines {
		out = append(out, id)
	}
	return out
}

// Refresh fetches and analyses every line concurrently and returns the
// results. Each result is stored, evaluated against alert rules and
// recorded in metrics before Refresh returns. Lines removed or replaced by
// Apply while their fetch was in flight are discarded.
func (r *Runner) Refresh(ctx context.Context, now time.Time) []*compute.Result {
	r.mu.Lock()
	lines := make([]*line, 0, len(r.lines))
	for _, l := range r.lines {
		lines = append(lines, l)
	}
	r.mu.Unlock()

	results := make([]*compute.Result, len(lines))
	var wg sync.WaitGroup
	for i, l := range lines {
		wg.Add(1)
		go func(i int, l *line) {
			defer wg.Done()
			results[i] = r.refreshLine(ctx, l, now)
		}(i, l)
	}
	wg.Wait()

	out := results[:0]
	for _, res := range results {
		if res != nil {
			out = append(out, res)
		}
	}
	return out
}

// refreshLine fetches l and publishes the result. It returns nil when l is
// no longer the registered line for its ID once the fetch completes.
func (r *Runner) refreshLine(ctx context.Context, l *line, now time.Time) *compute.Result {
	b, err := l.src.Fetch(ctx)
	if err != nil {
		b = &source.Batch{LineID: l.cfg.ID, Kind: l.cfg.Type, FetchedAt: now, Err: err}
	}

	// Publishing under r.mu keeps Apply from removing the line between the
	// check and the store/alert/metrics updates.
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lines[l.cfg.ID] != l {
		slog.Debug("monitor: discarding result for removed line", "line", l.cfg.ID)
		return nil
	}

	res := r.engine.Process(b, now)
	r.store.Put(res)
	changed := r.alerts.Evaluate(res)
	if r.metrics != nil {
		r.metrics.Observe(res)
		r.metrics.ObserveAlerts(changed)
	}

	slog.Debug("monitor: line refreshed",
		"line", res.LineID,
		"state", res.State,
		"readings", res.ReadingCount,
		"failure_probability", res.Indicators.FailureProbability,
		"time_to_maintenance", res.Indicators.TimeToMaintenance,
	)
	return res
}

// Run refreshes immediately and then on every tick of the refresh interval
// until ctx is cancelled. Apply must have been called first.
func (r *Runner) Run(ctx context.Context) {
	r.mu.Lock()
	interval := r.interval
	r.mu.Unlock()
	if interval <= 0 {
		interval = config.DefaultRefreshInterval
	}

	r.Refresh(ctx, time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.stopAll()
			return
		case d := <-r.reset:
			if d != interval {
				interval = d
				ticker.Reset(interval)
				slog.Info("monitor: refresh interval changed", "interval", interval)
			}
		case t := <-ticker.C:
			r.Refresh(ctx, t)
		}
	}
}

func (r *Runner) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.lines {
		r.stopLocked(id)
	}
}

// Analyze parses a CSV document with the default column mapping and
// analyses it with the runner's current monitor settings.
func (r *Runner) Analyze(rd io.Reader) (*compute.Result, error) {
	r.mu.Lock()
	mc := r.monitor
	r.mu.Unlock()

	cols, failure := source.DefaultCSVColumns()
	return AnalyzeCSV(rd, mc, cols, failure, time.Now())
}

// AnalyzeCSV parses a CSV document and analyses it once, outside any line.
// columns maps fields to headers; only monitored fields are read.
func AnalyzeCSV(rd io.Reader, mc config.MonitorConfig, columns map[types.FieldName]string, failureColumn string, now time.Time) (*compute.Result, error) {
	fields := make([]types.FieldName, 0, len(mc.Fields))
	used := make(map[types.FieldName]string, len(mc.Fields))
	for _, f := range mc.Fields {
		fn := types.FieldName(f)
		fields = append(fields, fn)
		if col, ok := columns[fn]; ok {
			used[fn] = col
		}
	}

	// Only monitored columns are required to be present.
	readings, err := source.ParseCSV(rd, used, failureColumn)
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	res := &compute.Result{Kind: config.LineCSV, Timestamp: now, UptimePct: 100}
	if err := compute.Analyze(res, readings, fields, compute.IndicatorConfig(mc)); err != nil {
		return nil, err
	}
	return res, nil
}
