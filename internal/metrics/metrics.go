package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/machinepulse/machinepulse/internal/alerts"
	"github.com/machinepulse/machinepulse/internal/compute"
)

const namespace = "machinepulse"

// Refresh outcomes recorded on the refreshes counter.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Recorder owns the registry and the line metrics.
type Recorder struct {
	registry *prometheus.Registry

	failureProbability *prometheus.GaugeVec
	timeToMaintenance  *prometheus.GaugeVec
	riskScore          *prometheus.GaugeVec
	anomalyRegions     *prometheus.GaugeVec
	uptime             *prometheus.GaugeVec
	readings           *prometheus.GaugeVec
	fieldBound         *prometheus.GaugeVec
	lineState          *prometheus.GaugeVec
	refreshes          *prometheus.CounterVec
	alertsFired        *prometheus.CounterVec
}

// New creates a Recorder with all metrics registered, plus the Go runtime
// and process collectors.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.failureProbability = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "failure_probability_percent",
		Help:      "Share of recent readings flagged with a failure.",
	}, []string{"line"})
	r.timeToMaintenance = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "time_to_maintenance_hours",
		Help:      "Estimated hours until maintenance is due.",
	}, []string{"line"})
	r.riskScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "risk_score",
		Help:      "Integer risk score the risk level is derived from.",
	}, []string{"line"})
	r.anomalyRegions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "anomaly_regions",
		Help:      "Number of extreme regions in the current sequence.",
	}, []string{"line"})
	r.uptime = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_percent",
		Help:      "Share of the last refreshes that succeeded.",
	}, []string{"line"})
	r.readings = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "readings",
		Help:      "Number of readings in the analysed sequence.",
	}, []string{"line"})
	r.fieldBound = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "field_bound",
		Help:      "Statistical bounds per monitored field (bound = mean|high|low).",
	}, []string{"line", "field", "bound"})
	r.lineState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "line_state",
		Help:      "1 for the line's current state, 0 otherwise.",
	}, []string{"line", "state"})
	r.refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refreshes_total",
		Help:      "Line refreshes by outcome.",
	}, []string{"line", "outcome"})
	r.alertsFired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_fired_total",
		Help:      "Alerts fired by rule and severity.",
	}, []string{"rule", "severity"})

	r.registry.MustRegister(
		r.failureProbability,
		r.timeToMaintenance,
		r.riskScore,
		r.anomalyRegions,
		r.uptime,
		r.readings,
		r.fieldBound,
		r.lineState,
		r.refreshes,
		r.alertsFired,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler returns the exposition handler for the registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

var allStates = []string{compute.StateLow, compute.StateMedium, compute.StateHigh, compute.StateUnknown}

// Observe updates every line metric from res. Analysed gauges keep their
// previous value when the refresh failed.
func (r *Recorder) Observe(res *compute.Result) {
	line := res.LineID

	for _, s := range allStates {
		v := 0.0
		if s == res.State {
			v = 1
		}
		r.lineState.WithLabelValues(line, s).Set(v)
	}
	r.uptime.WithLabelValues(line).Set(res.UptimePct)

	if res.ErrorMessage != "" {
		r.refreshes.WithLabelValues(line, OutcomeError).Inc()
		return
	}
	r.refreshes.WithLabelValues(line, OutcomeOK).Inc()

	ind := res.Indicators
	r.failureProbability.WithLabelValues(line).Set(ind.FailureProbability)
	r.timeToMaintenance.WithLabelValues(line).Set(float64(ind.TimeToMaintenance))
	r.riskScore.WithLabelValues(line).Set(float64(ind.RiskScore))
	r.anomalyRegions.WithLabelValues(line).Set(float64(len(res.Regions)))
	r.readings.WithLabelValues(line).Set(float64(res.ReadingCount))

	for _, b := range res.Bounds {
		if b.Count == 0 {
			continue
		}
		f := string(b.Field)
		r.fieldBound.WithLabelValues(line, f, "mean").Set(b.Mean)
		r.fieldBound.WithLabelValues(line, f, "high").Set(b.High)
		r.fieldBound.WithLabelValues(line, f, "low").Set(b.Low)
	}
}

// ObserveAlerts counts newly fired alerts among changed.
func (r *Recorder) ObserveAlerts(changed []alerts.Alert) {
	for _, a := range changed {
		if a.State == alerts.StateFiring {
			r.alertsFired.WithLabelValues(a.RuleName, a.Severity).Inc()
		}
	}
}

// Forget removes every series labelled with lineID.
func (r *Recorder) Forget(lineID string) {
	labels := prometheus.Labels{"line": lineID}
	for _, vec := range []*prometheus.GaugeVec{
		r.failureProbability, r.timeToMaintenance, r.riskScore,
		r.anomalyRegions, r.uptime, r.readings, r.fieldBound, r.lineState,
	} {
		vec.DeletePartialMatch(labels)
	}
	r.refreshes.DeletePartialMatch(labels)
}
