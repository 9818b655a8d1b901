package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/pkg/types"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Subject    string     `json:"subject"` // channel or group ID
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

// Engine evaluates alert rules against channel and group snapshots and
// delivers webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.AlertRule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:subject"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	now      func() time.Time // injectable for deterministic tests
}

// New creates an Engine from the server alert configuration.
// An Engine with empty rules is valid — Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	return &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// Evaluate tests all configured rules against a channel snapshot.
// Alerts that fire are stored and webhook delivery is triggered
// asynchronously. Alerts that were firing but whose condition is now false
// are resolved.
func (e *Engine) Evaluate(snap *types.Snapshot) {
	if len(e.rules) == 0 {
		return
	}
	for _, rule := range e.rules {
		fires, value := evalCondition(rule.Condition, snap)
		e.apply(rule, snap.ChannelID, fires, value)
	}
}

// EvaluateGroup tests all configured rules against a group snapshot.
// Channel-field conditions simply never match a group snapshot, so a single
// rule list serves both.
func (e *Engine) EvaluateGroup(snap *types.GroupSnapshot) {
	if len(e.rules) == 0 {
		return
	}
	for _, rule := range e.rules {
		fires, value := evalGroupCondition(rule.Condition, snap)
		e.apply(rule, snap.GroupID, fires, value)
	}
}

// apply advances one rule's fire/resolve state machine for one subject.
func (e *Engine) apply(rule config.AlertRule, subject string, fires bool, value float64) {
	now := e.now()
	key := rule.Name + ":" + subject

	e.mu.Lock()

	if fires {
		cooldown := rule.Cooldown
		if cooldown <= 0 {
			cooldown = defaultCooldown
		}
		if now.Sub(e.lastFire[key]) <= cooldown {
			e.mu.Unlock()
			return
		}

		sev := rule.Severity
		if sev == "" {
			sev = "warning"
		}
		a := &Alert{
			ID:       fmt.Sprintf("%s:%s:%d", rule.Name, subject, now.UnixNano()),
			RuleName: rule.Name,
			Subject:  subject,
			Severity: sev,
			Value:    value,
			Message: fmt.Sprintf("[%s] %s fired on %s — %s = %.4g",
				sev, rule.Name, subject, rule.Condition, value),
			FiredAt: now,
			State:   "firing",
		}
		e.active[key] = a
		e.lastFire[key] = now
		alertCopy := *a
		e.mu.Unlock()

		slog.Warn("alert fired",
			"rule", rule.Name,
			"subject", subject,
			"value", value,
			"severity", sev,
		)
		go e.deliver(&alertCopy)
		return
	}

	a, ok := e.active[key]
	if !ok || a.State != "firing" {
		e.mu.Unlock()
		return
	}
	resolved := now
	a.State = "resolved"
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	alertCopy := *a
	e.mu.Unlock()

	slog.Info("alert resolved",
		"rule", rule.Name,
		"subject", subject,
	)
	go e.deliver(&alertCopy)
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour.
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
	return out
}
