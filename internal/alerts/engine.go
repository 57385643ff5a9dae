package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/machinepulse/machinepulse/internal/compute"
	"github.com/machinepulse/machinepulse/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	LineID     string     `json:"line_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

// Engine evaluates alert rules against line results and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	active   map[alertKey]*Alert
	lastFire map[alertKey]time.Time // last fire time per key (for cooldown)
	history  []*Alert               // recently resolved alerts

	client *http.Client
	now    func() time.Time
	wg     sync.WaitGroup
}

// alertKey identifies one rule on one line.
type alertKey struct {
	rule, line string
}

// New creates an Engine from the alert configuration.
// An Engine with no rules is valid; Evaluate is then a no-op.
func New(cfg config.AlertsConfig) *Engine {
	return &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[alertKey]*Alert),
		lastFire: make(map[alertKey]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// Reconfigure replaces rules and webhooks. Firing alerts for rules that no
// longer exist are resolved on the next Evaluate of their line.
func (e *Engine) Reconfigure(cfg config.AlertsConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = cfg.Rules
	e.webhooks = cfg.Webhooks
}

// Evaluate tests all configured rules against res and returns the alerts
// that changed state. Webhook delivery runs asynchronously.
func (e *Engine) Evaluate(res *compute.Result) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var changed []Alert
	live := make(map[alertKey]bool, len(e.rules))

	for _, rule := range e.rules {
		key := alertKey{rule: rule.Name, line: res.LineID}
		live[key] = true
		fires, value := evalCondition(rule.Condition, res)

		if fires {
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if _, firing := e.active[key]; firing {
				e.active[key].Value = value
				continue
			}
			if last, ok := e.lastFire[key]; ok && now.Sub(last) <= cooldown {
				continue
			}
			sev := rule.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:       uuid.NewString(),
				RuleName: rule.Name,
				LineID:   res.LineID,
				Severity: sev,
				Value:    value,
				Message: fmt.Sprintf("[%s] %s fired on %s: %s (value %.2f)",
					sev, rule.Name, res.LineID, rule.Condition, value),
				FiredAt: now,
				State:   StateFiring,
			}
			e.active[key] = a
			e.lastFire[key] = now

			slog.Warn("alert fired",
				"rule", rule.Name,
				"line", res.LineID,
				"value", value,
				"severity", sev,
			)
			changed = append(changed, *a)
			continue
		}

		if a, ok := e.active[key]; ok {
			changed = append(changed, e.resolve(key, a, now))
		}
	}

	// Resolve alerts whose rule was removed by a reload.
	for key, a := range e.active {
		if key.line == res.LineID && !live[key] {
			changed = append(changed, e.resolve(key, a, now))
		}
	}

	e.dispatch(changed)
	return changed
}

// Forget resolves every firing alert of a line that is no longer monitored
// and drops its cooldown state, so a line re-added under the same ID starts
// clean. The resolved alerts are returned and delivered like any other
// state change.
func (e *Engine) Forget(lineID string) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var changed []Alert
	for key, a := range e.active {
		if key.line == lineID {
			changed = append(changed, e.resolve(key, a, now))
		}
	}
	for key := range e.lastFire {
		if key.line == lineID {
			delete(e.lastFire, key)
		}
	}
	e.dispatch(changed)
	return changed
}

// dispatch delivers each changed alert asynchronously. Callers hold e.mu.
func (e *Engine) dispatch(changed []Alert) {
	for i := range changed {
		a := changed[i]
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.deliver(&a)
		}()
	}
}

// resolve moves a firing alert to history. Callers hold e.mu.
func (e *Engine) resolve(key alertKey, a *Alert, now time.Time) Alert {
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	slog.Info("alert resolved", "rule", a.RuleName, "line", a.LineID)
	return *a
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// FiringCount returns the number of alerts currently firing.
func (e *Engine) FiringCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Wait blocks until all in-flight webhook deliveries have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}
