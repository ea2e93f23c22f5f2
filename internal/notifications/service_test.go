package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"gavel/internal/config"
	"gavel/internal/notifications"
)

type captured struct {
	title    string
	body     string
	tags     string
	priority string
}

func newRecorder(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), reqs...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyEscalation(context.Background(), "CRITICAL", "gate bypass", nil); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyEscalationFormatting(t *testing.T) {
	srv, requests := newRecorder(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyEscalation(context.Background(), "critical", "gate bypass detected", []string{"LOW_CONFIDENCE", "GATE_BYPASS"}); err != nil {
		t.Fatalf("NotifyEscalation: %v", err)
	}
	if err := svc.NotifyEscalation(context.Background(), "LOW", "ignored", nil); err != nil {
		t.Fatalf("NotifyEscalation LOW: %v", err)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("expected exactly one push, got %d", len(got))
	}
	req := got[0]
	if req.title != "gavel - CRITICAL escalation" {
		t.Fatalf("unexpected title %q", req.title)
	}
	if req.body != "gate bypass detected\nTriggers: LOW_CONFIDENCE, GATE_BYPASS" {
		t.Fatalf("unexpected body %q", req.body)
	}
	if req.tags != "gavel,escalation,critical" || req.priority != "urgent" {
		t.Fatalf("unexpected tags/priority %q/%q", req.tags, req.priority)
	}
}

func TestNtfyHighRespectsToggle(t *testing.T) {
	srv, requests := newRecorder(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.High = false
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyEscalation(context.Background(), "HIGH", "role mismatch", nil); err != nil {
		t.Fatalf("NotifyEscalation: %v", err)
	}
	if err := svc.NotifyWorkflowHalted(context.Background(), "wf-1", "operator override"); err != nil {
		t.Fatalf("NotifyWorkflowHalted: %v", err)
	}
	got := requests()
	if len(got) != 1 || got[0].body != "Workflow wf-1 halted: operator override" {
		t.Fatalf("unexpected requests %+v", got)
	}
}

func TestNtfyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
