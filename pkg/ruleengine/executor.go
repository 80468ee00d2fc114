package ruleengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/streamrelay/platform/pkg/metrics"
)

// webhookTimeout and deviceControlTimeout bound the Action Executor's
// outbound HTTP calls (spec §5: "webhook 30s, device control 10s").
const (
	webhookTimeout       = 30 * time.Second
	deviceControlTimeout = 10 * time.Second
)

var templatePlaceholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// DeviceControlRequest is the body the Executor posts to the Device Command
// Router's internal webhook (spec §4.4, §4.6, §6 "/api/webhook/control").
type DeviceControlRequest struct {
	Tenant      string                 `json:"workspace_id"`
	DeviceID    string                 `json:"device_id"`
	CommandType string                 `json:"command_type"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Notifier is the stub contract for the "notification" action kind (spec §9:
// "Notification action handoff has no concrete backend; specify it only as
// a logged stub").
type Notifier interface {
	Notify(ctx context.Context, config map[string]interface{}, event Event) error
}

// LoggingNotifier is the only Notifier this repo ships: it logs the handoff
// and always succeeds (spec §9).
type LoggingNotifier struct{}

// Notify implements Notifier by emitting a structured log line.
func (LoggingNotifier) Notify(ctx context.Context, config map[string]interface{}, event Event) error {
	slog.Info("notification action handoff", "config", config, "event_id", event.ID)
	return nil
}

// ExecutionStore persists audited RuleExecution rows and rule statistics
// (spec §4.4 step 4).
type ExecutionStore interface {
	RecordExecution(ctx context.Context, exec Execution) error
	BumpRuleStats(ctx context.Context, ruleID string, execAt time.Time) error
}

// Executor runs a matched rule's ordered actions and produces the audit row
// (spec §4.4 the Action Executor).
type Executor struct {
	store      ExecutionStore
	httpClient *http.Client
	notifier   Notifier
	deviceWebhookURL func(tenant string) string
}

// NewExecutor wires an Executor. deviceWebhookURL resolves the Device
// service's webhook endpoint for a tenant (constant in most deployments,
// but kept pluggable for tests).
func NewExecutor(store ExecutionStore, notifier Notifier, deviceWebhookURL func(tenant string) string) *Executor {
	if notifier == nil {
		notifier = LoggingNotifier{}
	}
	return &Executor{
		store:            store,
		httpClient:       &http.Client{},
		notifier:         notifier,
		deviceWebhookURL: deviceWebhookURL,
	}
}

// Execute runs every action of rule in order against ev, persists the audit
// row, and bumps the rule's exec_count/last_exec_at (spec §4.4).
func (e *Executor) Execute(ctx context.Context, rule Rule, ev Event) Execution {
	start := time.Now().UTC()
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RuleExecutionDuration)

	exec := Execution{
		RuleID:    rule.ID,
		EventID:   ev.ID,
		EventKind: ev.Kind,
		EventData: ev.Fields,
		Status:    ExecPartial,
	}

	succeeded, failed := 0, 0
	var lastErr error

	func() {
		defer func() {
			if r := recover(); r != nil {
				failed++
				lastErr = fmt.Errorf("action executor panic: %v", r)
			}
		}()
		for _, action := range orderedActions(rule.Actions) {
			if err := e.dispatch(ctx, action, ev); err != nil {
				failed++
				lastErr = err
				slog.Warn("rule action failed", "rule_id", rule.ID, "action", action.Kind, "error", err)
				continue
			}
			succeeded++
		}
	}()

	exec.ActionsExecuted = succeeded
	exec.ActionsFailed = failed
	exec.DurationMs = time.Since(start).Milliseconds()
	exec.ExecutedAt = start

	switch {
	case failed == 0:
		exec.Status = ExecSuccess
	case succeeded == 0 && (succeeded+failed) > 0:
		exec.Status = ExecFailed
	default:
		exec.Status = ExecPartial
	}
	if lastErr != nil {
		exec.ErrorMessage = lastErr.Error()
	}
	metrics.RuleExecutionsTotal.WithLabelValues(string(exec.Status)).Inc()

	if err := e.store.RecordExecution(ctx, exec); err != nil {
		slog.Error("failed to persist rule execution", "rule_id", rule.ID, "error", err)
	}
	if err := e.store.BumpRuleStats(ctx, rule.ID, start); err != nil {
		slog.Error("failed to bump rule stats", "rule_id", rule.ID, "error", err)
	}

	return exec
}

func orderedActions(actions []Action) []Action {
	out := make([]Action, len(actions))
	copy(out, actions)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Order < out[j-1].Order; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (e *Executor) dispatch(ctx context.Context, action Action, ev Event) error {
	config := substituteTemplate(action.Config, ev.Fields)

	switch action.Kind {
	case ActionLog:
		msg, _ := config["message"].(string)
		slog.Info("rule action log", "message", msg, "event_id", ev.ID)
		return nil
	case ActionNotification:
		return e.notifier.Notify(ctx, config, ev)
	case ActionWebhook:
		return e.dispatchWebhook(ctx, config)
	case ActionDeviceControl:
		return e.dispatchDeviceControl(ctx, ev.Tenant, config)
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func (e *Executor) dispatchWebhook(ctx context.Context, config map[string]interface{}) error {
	url, _ := config["url"].(string)
	if url == "" {
		return fmt.Errorf("webhook action: missing url")
	}
	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	var body bytes.Buffer
	if raw, ok := config["body"]; ok {
		if err := json.NewEncoder(&body).Encode(raw); err != nil {
			return fmt.Errorf("webhook action: encode body: %w", err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, &body)
	if err != nil {
		return fmt.Errorf("webhook action: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := config["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook action: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook action: non-2xx response %d", resp.StatusCode)
	}
	return nil
}

func (e *Executor) dispatchDeviceControl(ctx context.Context, tenant string, config map[string]interface{}) error {
	deviceID, _ := config["device_id"].(string)
	commandType, _ := config["command_type"].(string)
	params, _ := config["parameters"].(map[string]interface{})
	if deviceID == "" || commandType == "" {
		return fmt.Errorf("device_control action: missing device_id or command_type")
	}

	payload := DeviceControlRequest{
		Tenant:      tenant,
		DeviceID:    deviceID,
		CommandType: commandType,
		Parameters:  params,
	}
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		return fmt.Errorf("device_control action: encode request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, deviceControlTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.deviceWebhookURL(tenant), &body)
	if err != nil {
		return fmt.Errorf("device_control action: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("device_control action: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("device_control action: non-2xx response %d", resp.StatusCode)
	}
	return nil
}

// substituteTemplate walks config's JSON form and replaces every {{field}}
// occurrence in string values with the stringified event field (spec §4.4,
// §9: "Keep it textual ... Missing keys remain literal"). Non-string values
// and nested maps/slices are walked recursively; missing fields leave the
// placeholder untouched.
func substituteTemplate(config map[string]interface{}, fields map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(config))
	for k, v := range config {
		out[k] = substituteValue(v, fields)
	}
	return out
}

func substituteValue(v interface{}, fields map[string]string) interface{} {
	switch val := v.(type) {
	case string:
		return templatePlaceholder.ReplaceAllStringFunc(val, func(match string) string {
			sub := templatePlaceholder.FindStringSubmatch(match)
			field := sub[1]
			if replacement, ok := fields[field]; ok {
				return replacement
			}
			return match
		})
	case map[string]interface{}:
		return substituteTemplate(val, fields)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, el := range val {
			out[i] = substituteValue(el, fields)
		}
		return out
	default:
		return v
	}
}
