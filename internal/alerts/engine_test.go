package alerts

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/machinepulse/machinepulse/internal/compute"
	"github.com/machinepulse/machinepulse/internal/config"
	"github.com/machinepulse/machinepulse/pkg/types"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func highRisk(id string) *compute.Result {
	return &compute.Result{
		LineID: id,
		State:  compute.StateHigh,
		Indicators: types.PredictiveIndicators{
			FailureProbability: 12,
			RiskLevel:          types.RiskHigh,
			RiskScore:          5,
			TimeToMaintenance:  10,
		},
	}
}

func lowRisk(id string) *compute.Result {
	return &compute.Result{
		LineID: id,
		State:  compute.StateLow,
		Indicators: types.PredictiveIndicators{
			RiskLevel:         types.RiskLow,
			TimeToMaintenance: 90,
		},
	}
}

// newTestEngine returns an engine whose clock is controlled by the returned setter.
func newTestEngine(cfg config.AlertsConfig) (*Engine, func(time.Time)) {
	e := New(cfg)
	var mu sync.Mutex
	cur := baseTime
	e.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return cur
	}
	return e, func(t time.Time) {
		mu.Lock()
		cur = t
		mu.Unlock()
	}
}

func rules(rr ...config.AlertRule) config.AlertsConfig {
	return config.AlertsConfig{Rules: rr}
}

func TestEvaluate_NoRules(t *testing.T) {
	e := New(config.AlertsConfig{})
	if changed := e.Evaluate(highRisk("l")); len(changed) != 0 {
		t.Errorf("changed: got %d, want 0", len(changed))
	}
	if len(e.Active()) != 0 {
		t.Error("Active should be empty")
	}
}

func TestEvaluate_FireAndResolve(t *testing.T) {
	e, setNow := newTestEngine(rules(config.AlertRule{Name: "high-risk", Condition: "risk_level == high", Severity: "critical"}))

	changed := e.Evaluate(highRisk("line-1"))
	if len(changed) != 1 || changed[0].State != StateFiring {
		t.Fatalf("fire: got %+v", changed)
	}
	a := changed[0]
	if _, err := uuid.Parse(a.ID); err != nil {
		t.Errorf("ID %q is not a UUID: %v", a.ID, err)
	}
	if a.Severity != "critical" || a.LineID != "line-1" || a.Value != 5 {
		t.Errorf("alert fields: %+v", a)
	}
	if e.FiringCount() != 1 {
		t.Errorf("FiringCount: got %d, want 1", e.FiringCount())
	}

	// Still firing: no state change.
	if changed := e.Evaluate(highRisk("line-1")); len(changed) != 0 {
		t.Errorf("repeat: got %d changes, want 0", len(changed))
	}

	setNow(baseTime.Add(time.Minute))
	changed = e.Evaluate(lowRisk("line-1"))
	if len(changed) != 1 || changed[0].State != StateResolved || changed[0].ResolvedAt == nil {
		t.Fatalf("resolve: got %+v", changed)
	}
	if changed[0].ID != a.ID {
		t.Errorf("resolved alert ID: got %q, want %q", changed[0].ID, a.ID)
	}
	if e.FiringCount() != 0 {
		t.Errorf("FiringCount after resolve: got %d", e.FiringCount())
	}

	active := e.Active()
	if len(active) != 1 || active[0].State != StateResolved {
		t.Errorf("Active after resolve: %+v", active)
	}
	e.Wait()
}

func TestEvaluate_DefaultSeverity(t *testing.T) {
	e, _ := newTestEngine(rules(config.AlertRule{Name: "ttm", Condition: "time_to_maintenance < 24"}))
	changed := e.Evaluate(highRisk("l"))
	if len(changed) != 1 || changed[0].Severity != "warning" {
		t.Errorf("severity: got %+v", changed)
	}
	if !strings.Contains(changed[0].Message, "time_to_maintenance < 24") {
		t.Errorf("message %q should contain the condition", changed[0].Message)
	}
	e.Wait()
}

func TestEvaluate_Cooldown(t *testing.T) {
	e, setNow := newTestEngine(rules(config.AlertRule{Name: "fp", Condition: "failure_probability > 5", Cooldown: 10 * time.Minute}))

	e.Evaluate(highRisk("l"))
	setNow(baseTime.Add(time.Minute))
	e.Evaluate(lowRisk("l"))

	// Within cooldown: re-fire suppressed.
	setNow(baseTime.Add(5 * time.Minute))
	if changed := e.Evaluate(highRisk("l")); len(changed) != 0 {
		t.Errorf("within cooldown: got %d changes, want 0", len(changed))
	}

	// After cooldown: fires again.
	setNow(baseTime.Add(11 * time.Minute))
	if changed := e.Evaluate(highRisk("l")); len(changed) != 1 {
		t.Errorf("after cooldown: got %d changes, want 1", len(changed))
	}
	e.Wait()
}

func TestEvaluate_PerLineKeys(t *testing.T) {
	e, _ := newTestEngine(rules(config.AlertRule{Name: "fp", Condition: "failure_probability > 5"}))
	e.Evaluate(highRisk("a"))
	e.Evaluate(highRisk("b"))
	e.Evaluate(lowRisk("c"))
	if e.FiringCount() != 2 {
		t.Errorf("FiringCount: got %d, want 2", e.FiringCount())
	}
	e.Wait()
}

func TestReconfigure_ResolvesRemovedRule(t *testing.T) {
	e, _ := newTestEngine(rules(config.AlertRule{Name: "fp", Condition: "failure_probability > 5"}))
	e.Evaluate(highRisk("l"))

	e.Reconfigure(config.AlertsConfig{})
	changed := e.Evaluate(highRisk("l"))
	if len(changed) != 1 || changed[0].State != StateResolved {
		t.Errorf("removed rule: got %+v", changed)
	}
	e.Wait()
}

func TestForget_ResolvesLineAndClearsCooldown(t *testing.T) {
	ch := make(chan string, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Alert Alert `json:"alert"`
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		ch <- body.Alert.LineID + "/" + body.Alert.State
	}))
	defer srv.Close()
	t.Setenv("TEST_HTTP_URL", srv.URL)

	e, setNow := newTestEngine(config.AlertsConfig{
		Rules:    []config.AlertRule{{Name: "fp", Condition: "failure_probability > 5", Cooldown: time.Hour}},
		Webhooks: []config.WebhookConfig{{Type: "http", URLEnv: "TEST_HTTP_URL"}},
	})
	e.Evaluate(highRisk("gone"))
	e.Evaluate(highRisk("kept"))
	e.Wait()
	for len(ch) > 0 {
		<-ch
	}

	setNow(baseTime.Add(time.Minute))
	changed := e.Forget("gone")
	if len(changed) != 1 || changed[0].LineID != "gone" || changed[0].State != StateResolved {
		t.Fatalf("Forget: got %+v", changed)
	}
	e.Wait()
	if got := <-ch; got != "gone/resolved" {
		t.Errorf("webhook: got %q, want gone/resolved", got)
	}
	if e.FiringCount() != 1 {
		t.Errorf("FiringCount: got %d, want 1 (other line untouched)", e.FiringCount())
	}
	for _, a := range e.Active() {
		if a.LineID == "gone" && a.State == StateFiring {
			t.Errorf("forgotten line still firing: %+v", a)
		}
	}

	// Re-added under the same ID, the line is not held back by the old cooldown.
	setNow(baseTime.Add(2 * time.Minute))
	if changed := e.Evaluate(highRisk("gone")); len(changed) != 1 || changed[0].State != StateFiring {
		t.Errorf("re-added line: got %+v, want a new firing alert", changed)
	}
	if changed := e.Forget("never-seen"); len(changed) != 0 {
		t.Errorf("Forget(unknown): got %+v", changed)
	}
	e.Wait()
}

func TestActive_NewestFirst(t *testing.T) {
	e, setNow := newTestEngine(rules(config.AlertRule{Name: "fp", Condition: "failure_probability > 5"}))
	e.Evaluate(highRisk("a"))
	setNow(baseTime.Add(time.Minute))
	e.Evaluate(highRisk("b"))

	active := e.Active()
	if len(active) != 2 || active[0].LineID != "b" {
		t.Errorf("Active order: %+v", active)
	}

	// Resolved alerts drop out after an hour.
	e.Evaluate(lowRisk("a"))
	setNow(baseTime.Add(2 * time.Hour))
	if got := len(e.Active()); got != 1 {
		t.Errorf("Active after history expiry: got %d, want 1", got)
	}
	e.Wait()
}

func TestWebhookDelivery(t *testing.T) {
	type received struct {
		path string
		body map[string]interface{}
	}
	ch := make(chan received, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(data, &body)
		ch <- received{path: r.URL.Path, body: body}
	}))
	defer srv.Close()

	t.Setenv("TEST_SLACK_URL", srv.URL+"/slack")
	t.Setenv("TEST_TEAMS_URL", srv.URL+"/teams")
	t.Setenv("TEST_HTTP_URL", srv.URL+"/http")

	e, _ := newTestEngine(config.AlertsConfig{
		Rules: []config.AlertRule{{Name: "fp", Condition: "failure_probability > 5", Severity: "critical"}},
		Webhooks: []config.WebhookConfig{
			{Type: "slack", URLEnv: "TEST_SLACK_URL"},
			{Type: "teams", URLEnv: "TEST_TEAMS_URL"},
			{Type: "http", URLEnv: "TEST_HTTP_URL"},
			{Type: "http", URLEnv: "TEST_UNSET_URL"},
			{Type: "carrier-pigeon", URLEnv: "TEST_HTTP_URL"},
		},
	})
	e.Evaluate(highRisk("line-9"))
	e.Wait()
	close(ch)

	got := map[string]map[string]interface{}{}
	for r := range ch {
		got[r.path] = r.body
	}
	if len(got) != 3 {
		t.Fatalf("deliveries: got %d, want 3 (%v)", len(got), got)
	}
	if text, _ := got["/slack"]["text"].(string); !strings.HasPrefix(text, "*[CRITICAL]*") {
		t.Errorf("slack text: %q", text)
	}
	if typ, _ := got["/teams"]["@type"].(string); typ != "MessageCard" {
		t.Errorf("teams @type: %q", typ)
	}
	alert, _ := got["/http"]["alert"].(map[string]interface{})
	if alert["line_id"] != "line-9" || alert["state"] != StateFiring {
		t.Errorf("http alert: %v", alert)
	}
}
