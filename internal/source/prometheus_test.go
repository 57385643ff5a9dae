package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/machinepulse/machinepulse/internal/config"
	"github.com/machinepulse/machinepulse/pkg/types"
)

const exporterText = `# HELP machine_air_temperature_kelvin Ambient air temperature.
# TYPE machine_air_temperature_kelvin gauge
machine_air_temperature_kelvin{sensor="a"} 298.5
# HELP machine_process_temperature_kelvin Process temperature.
# TYPE machine_process_temperature_kelvin gauge
machine_process_temperature_kelvin 308.9
# HELP machine_tool_wear_minutes Tool wear.
# TYPE machine_tool_wear_minutes counter
machine_tool_wear_minutes 42
# HELP machine_failure_active Whether a failure is active.
# TYPE machine_failure_active gauge
machine_failure_active 0
`

func TestParseMetrics(t *testing.T) {
	mfs, err := parseMetrics(strings.NewReader(exporterText))
	if err != nil {
		t.Fatalf("parseMetrics() error = %v", err)
	}
	if got := sumFamily(mfs["machine_air_temperature_kelvin"]); got != 298.5 {
		t.Errorf("air: got %v, want 298.5", got)
	}
	if got := sumFamily(mfs["machine_tool_wear_minutes"]); got != 42 {
		t.Errorf("wear: got %v, want 42", got)
	}
}

func TestSumFamily_Nil(t *testing.T) {
	if got := sumFamily(nil); got != 0 {
		t.Errorf("sumFamily(nil): got %v, want 0", got)
	}
}

func TestSumFamily_MultipleSeries(t *testing.T) {
	text := "# TYPE up gauge\nup{i=\"a\"} 1\nup{i=\"b\"} 2.5\n"
	mfs, err := parseMetrics(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	if got := sumFamily(mfs["up"]); got != 3.5 {
		t.Errorf("got %v, want 3.5", got)
	}
}

func TestPromSource_FetchAccumulates(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(exporterText))
	}))
	defer srv.Close()

	src, err := New(config.Line{ID: "prom", Type: config.LinePrometheus, Endpoint: srv.URL, MaxReadings: 2})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		b, _ := src.Fetch(context.Background())
		if b.Err != nil {
			t.Fatalf("fetch %d: Batch.Err = %v", i, b.Err)
		}
	}
	b, _ := src.Fetch(context.Background())
	if len(b.Readings) != 2 {
		t.Fatalf("readings: got %d, want 2 (capped)", len(b.Readings))
	}
	if b.Readings[0].Index != 2 || b.Readings[1].Index != 3 {
		t.Errorf("indices: got %d,%d, want 2,3", b.Readings[0].Index, b.Readings[1].Index)
	}
	if v, ok := b.Readings[1].Value(types.FieldProcessTemp); !ok || v != 308.9 {
		t.Errorf("processTemp: got %v/%v", v, ok)
	}

	failing.Store(true)
	b, _ = src.Fetch(context.Background())
	if b.Err == nil {
		t.Fatal("Batch.Err: expected error on 500")
	}
	if len(b.Readings) != 2 {
		t.Errorf("failed scrape should keep history, got %d readings", len(b.Readings))
	}
}

func TestPromSource_FailureFlag(t *testing.T) {
	text := strings.Replace(exporterText, "machine_failure_active 0", "machine_failure_active 1", 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(text))
	}))
	defer srv.Close()

	src, _ := New(config.Line{ID: "prom", Type: config.LinePrometheus, Endpoint: srv.URL, MaxReadings: 10})
	b, _ := src.Fetch(context.Background())
	if len(b.Readings) != 1 || !b.Readings[0].HasFailure {
		t.Errorf("readings: got %+v, want one failure", b.Readings)
	}
}

func TestPromSource_NonFiniteSamplesAreMissing(t *testing.T) {
	text := strings.Replace(exporterText, "machine_process_temperature_kelvin 308.9", "machine_process_temperature_kelvin NaN", 1)
	text = strings.Replace(text, "machine_tool_wear_minutes 42", "machine_tool_wear_minutes +Inf", 1)
	text = strings.Replace(text, "machine_failure_active 0", "machine_failure_active NaN", 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(text))
	}))
	defer srv.Close()

	src, _ := New(config.Line{ID: "prom", Type: config.LinePrometheus, Endpoint: srv.URL, MaxReadings: 10})
	b, _ := src.Fetch(context.Background())
	if b.Err != nil {
		t.Fatalf("Batch.Err = %v", b.Err)
	}
	if len(b.Readings) != 1 {
		t.Fatalf("readings: got %d, want 1", len(b.Readings))
	}
	r := b.Readings[0]
	if _, ok := r.Values[types.FieldProcessTemp]; ok {
		t.Error("NaN gauge should not be stored")
	}
	if _, ok := r.Values[types.FieldWear]; ok {
		t.Error("+Inf counter should not be stored")
	}
	if v, ok := r.Value(types.FieldAirTemp); !ok || v != 298.5 {
		t.Errorf("airTemp: got %v/%v, want 298.5", v, ok)
	}
	if r.HasFailure {
		t.Error("NaN failure gauge should not raise a failure")
	}
}
