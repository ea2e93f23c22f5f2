package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gavel/internal/config"
)

const userAgent = "gavel/0.1.0"

// Service defines the out-of-band alert surface used by the escalation
// handler and the workflow manager.
type Service interface {
	// NotifyEscalation pushes an escalation whose severity is enabled for push.
	NotifyEscalation(ctx context.Context, severity, reason string, triggers []string) error
	// NotifyWorkflowHalted reports that a workflow was moved to ERROR.
	NotifyWorkflowHalted(ctx context.Context, workflowID, reason string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		critical: cfg.Notifications.Critical,
		high:     cfg.Notifications.High,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	critical bool
	high     bool
}

func (n *ntfyService) NotifyEscalation(ctx context.Context, severity, reason string, triggers []string) error {
	severity = strings.ToUpper(strings.TrimSpace(severity))
	var priority string
	switch severity {
	case "CRITICAL":
		if !n.critical {
			return nil
		}
		priority = "urgent"
	case "HIGH":
		if !n.high {
			return nil
		}
		priority = "high"
	default:
		return nil
	}

	message := strings.TrimSpace(reason)
	if message == "" {
		message = "escalation raised"
	}
	if len(triggers) > 0 {
		message = fmt.Sprintf("%s\nTriggers: %s", message, strings.Join(triggers, ", "))
	}
	tags := []string{"gavel", "escalation", strings.ToLower(severity)}
	return n.send(ctx, payload{
		title:    fmt.Sprintf("gavel - %s escalation", severity),
		message:  message,
		tags:     tags,
		priority: priority,
	})
}

func (n *ntfyService) NotifyWorkflowHalted(ctx context.Context, workflowID, reason string) error {
	if !n.critical {
		return nil
	}
	workflowID = strings.TrimSpace(workflowID)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "no reason given"
	}
	return n.send(ctx, payload{
		title:    "gavel - Workflow halted",
		message:  fmt.Sprintf("Workflow %s halted: %s", workflowID, reason),
		tags:     []string{"gavel", "workflow", "halted"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "gavel - Test",
		message:  "Notification system test",
		tags:     []string{"gavel", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyEscalation(context.Context, string, string, []string) error { return nil }
func (noopService) NotifyWorkflowHalted(context.Context, string, string) error       { return nil }
func (noopService) TestNotification(context.Context) error                           { return nil }
