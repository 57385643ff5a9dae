package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/machinepulse/machinepulse/internal/config"
	"github.com/machinepulse/machinepulse/pkg/types"
)

// Metric names exposed by the line's sensor exporter when no column mapping
// is configured.
var defaultPromColumns = map[types.FieldName]string{
	types.FieldAirTemp:     "machine_air_temperature_kelvin",
	types.FieldProcessTemp: "machine_process_temperature_kelvin",
	types.FieldWear:        "machine_tool_wear_minutes",
}

const defaultPromFailure = "machine_failure_active"

type promSource struct {
	line    config.Line
	client  *http.Client
	mapping mapping
	buf     *ring
}

// Fetch scrapes the exporter once, appends the sample to the rolling buffer
// and returns the buffered sequence.
//
// A failed scrape leaves the buffer untouched and reports Err. The buffered
// readings are still returned: the compute engine does not analyse a batch
// carrying Err, so the line is unknown for this cycle and only its
// reading count reflects them. The next successful scrape appends to the
// same buffer.
func (s *promSource) Fetch(ctx context.Context) (*Batch, error) {
	b := newBatch(s.line)

	mfs, err := fetchMetrics(ctx, s.client, s.line.Endpoint)
	if err != nil {
		b.Err = fmt.Errorf("prometheus source %q: %w", s.line.ID, err)
		b.Readings = s.buf.snapshot()
		slog.Warn("source: prometheus fetch failed", "line", s.line.ID, "err", err)
		return b, nil
	}

	values := make(map[types.FieldName]float64, len(s.mapping.columns))
	for f, name := range s.mapping.columns {
		if mf, ok := mfs[name]; ok {
			if v := sumFamily(mf); finite(v) {
				values[f] = v
			}
		}
	}
	fv := sumFamily(mfs[s.mapping.failure])
	failure := finite(fv) && fv > 0

	s.buf.add(values, failure)
	b.Readings = s.buf.snapshot()
	return b, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all gauge, counter or untyped values in a MetricFamily.
// Returns 0 if mf is nil.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
