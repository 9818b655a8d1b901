package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// severity presentation per target. Teams wants a hex theme color, Slack a
// bracketed label prefix.
var severityStyles = map[string]struct {
	label string
	color string
}{
	"critical": {"[CRITICAL]", "FF4F6A"},
	"warning":  {"[WARNING]", "FFAB40"},
	"info":     {"[INFO]", "00D4FF"},
}

func styleFor(severity string) (label, color string) {
	st, ok := severityStyles[severity]
	if !ok {
		st = severityStyles["info"]
	}
	return st.label, st.color
}

// deliver fans a fired or resolved alert out to every configured target.
// Delivery failures are logged, never surfaced to the evaluation path.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		body, err := encodePayload(wh.Type, a)
		if err != nil {
			slog.Warn("alerts: skipping webhook", "type", wh.Type, "err", err)
			continue
		}

		if err := e.post(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"rule", a.RuleName,
				"err", err,
			)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type,
			"rule", a.RuleName,
			"state", a.State,
		)
	}
}

// encodePayload builds the target-specific JSON body for an alert.
func encodePayload(kind string, a *Alert) ([]byte, error) {
	label, color := styleFor(a.Severity)

	switch kind {
	case "slack":
		return json.Marshal(map[string]string{
			"text": fmt.Sprintf("*%s* %s", label, a.Message),
		})
	case "teams":
		return json.Marshal(map[string]interface{}{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": color,
			"summary":    a.RuleName,
			"title":      fmt.Sprintf("DriftGuard Alert: %s", a.RuleName),
			"text":       a.Message,
		})
	case "http":
		return json.Marshal(map[string]interface{}{"alert": a})
	default:
		return nil, fmt.Errorf("unknown webhook type %q", kind)
	}
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
