package commands

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/machinepulse/machinepulse/internal/config"
)

const readingsCSV = `Air temperature [K],Process temperature [K],Target
298.1,308.6,0
298.2,308.7,0
298.1,308.5,1
298.2,308.6,0
`

// runCmd executes the command tree with args and returns stdout.
func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

type analyzeOutput struct {
	LineID     string `json:"line_id"`
	State      string `json:"state"`
	Indicators struct {
		FailureProbability float64 `json:"failure_probability"`
		TimeToMaintenance  int     `json:"time_to_maintenance"`
	} `json:"indicators"`
	Bounds []struct {
		Field string `json:"field"`
	} `json:"bounds"`
	ReadingCount int `json:"reading_count"`
}

func decodeAnalyze(t *testing.T, out string) analyzeOutput {
	t.Helper()
	var got analyzeOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	return got
}

func TestAnalyze_File(t *testing.T) {
	path := writeTemp(t, "readings.csv", readingsCSV)
	out, err := runCmd(t, "", "analyze", path)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	got := decodeAnalyze(t, out)
	if got.LineID != path {
		t.Errorf("line_id: got %q, want %q", got.LineID, path)
	}
	if got.ReadingCount != 4 {
		t.Errorf("reading_count: got %d, want 4", got.ReadingCount)
	}
	if got.Indicators.FailureProbability != 25 {
		t.Errorf("failure_probability: got %v, want 25", got.Indicators.FailureProbability)
	}
	if len(got.Bounds) != 2 {
		t.Errorf("bounds: got %d, want 2", len(got.Bounds))
	}
}

func TestAnalyze_Stdin(t *testing.T) {
	out, err := runCmd(t, readingsCSV, "analyze", "-", "--pretty")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(out, "\n  \"line_id\": \"stdin\"") {
		t.Errorf("expected indented output with line_id stdin, got:\n%s", out)
	}
}

func TestAnalyze_CustomColumns(t *testing.T) {
	doc := "t_air,t_proc,rpm,fail\n298.1,308.6,1500,0\n298.2,308.7,1510,1\n"
	path := writeTemp(t, "custom.csv", doc)
	out, err := runCmd(t, "", "analyze", path,
		"--column", "airTemp=t_air",
		"--column", "processTemp=t_proc",
		"--fields", "airTemp,processTemp,rpm",
		"--failure-column", "fail",
	)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	got := decodeAnalyze(t, out)
	if len(got.Bounds) != 3 {
		t.Fatalf("bounds: got %d, want 3 (rpm read from its own header)", len(got.Bounds))
	}
	if got.Indicators.FailureProbability != 50 {
		t.Errorf("failure_probability: got %v, want 50", got.Indicators.FailureProbability)
	}
}

func TestAnalyze_ScaleOverride(t *testing.T) {
	path := writeTemp(t, "readings.csv", readingsCSV)
	base, err := runCmd(t, "", "analyze", path)
	if err != nil {
		t.Fatal(err)
	}
	scaled, err := runCmd(t, "", "analyze", path, "--scale", "70")
	if err != nil {
		t.Fatal(err)
	}
	// airTemp moves 0.3 over 4 readings: volatility 0.075.
	b, s := decodeAnalyze(t, base), decodeAnalyze(t, scaled)
	if b.Indicators.TimeToMaintenance != 99 {
		t.Errorf("default scale: got %d, want 99", b.Indicators.TimeToMaintenance)
	}
	if s.Indicators.TimeToMaintenance != 95 {
		t.Errorf("scale 70: got %d, want 95", s.Indicators.TimeToMaintenance)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no args", []string{"analyze"}},
		{"missing file", []string{"analyze", filepath.Join(t.TempDir(), "nope.csv")}},
		{"bad config", []string{"analyze", "-", "--config", filepath.Join(t.TempDir(), "nope.yaml")}},
		{"missing column", []string{"analyze", "-", "--fields", "airTemp,wear"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCmd(t, readingsCSV, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestVersion(t *testing.T) {
	out, err := runCmd(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "machinepulse "+Version) {
		t.Errorf("unexpected version output: %q", out)
	}
}

func TestRoot_InvalidLogFlags(t *testing.T) {
	if _, err := runCmd(t, "", "--log-level", "loud", "version"); err == nil {
		t.Error("expected error for --log-level loud")
	}
	if _, err := runCmd(t, "", "--log-format", "xml", "version"); err == nil {
		t.Error("expected error for --log-format xml")
	}
}

func TestLoadEnv(t *testing.T) {
	if err := loadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}

	path := writeTemp(t, ".env", "MACHINEPULSE_TEST_KEY=from-file\n")
	t.Setenv("MACHINEPULSE_TEST_KEY", "")
	os.Unsetenv("MACHINEPULSE_TEST_KEY")
	if err := loadEnv(path); err != nil {
		t.Fatalf("loadEnv: %v", err)
	}
	if got := os.Getenv("MACHINEPULSE_TEST_KEY"); got != "from-file" {
		t.Errorf("MACHINEPULSE_TEST_KEY: got %q, want from-file", got)
	}
}

func TestServe_BadConfig(t *testing.T) {
	path := writeTemp(t, "config.yaml", "server:\n  http_port: -1\n")
	if _, err := runCmd(t, "", "serve", "--config", path); err == nil {
		t.Error("expected config validation error")
	}
}

func TestWrapHandler_Recovery(t *testing.T) {
	h := wrapHandler(config.ServerConfig{}, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rec.Code)
	}
}

func TestWrapHandler_CORSAndAccessLog(t *testing.T) {
	var logBuf bytes.Buffer
	sc := config.ServerConfig{CORSOrigins: []string{"http://localhost:5173"}, AccessLog: true}
	h := wrapHandler(sc, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), &logBuf)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/lines", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin: got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/lines", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !strings.Contains(logBuf.String(), "GET /api/v1/lines") {
		t.Errorf("access log missing request line: %q", logBuf.String())
	}
}
