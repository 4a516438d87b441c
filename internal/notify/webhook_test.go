package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nholik/package-sync/internal/runner"
	"github.com/rs/zerolog"
)

func TestWebhookNotifierTemplateRendering(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(zerolog.Nop(), server.URL, `{"machine":"{{ .Machine }}","managers":{{ len .Summary.Managers }},"failures":{{ .Summary.Failures }}}`)
	if err != nil {
		t.Fatalf("NewWebhookNotifier error: %v", err)
	}

	if err := notifier.Notify(context.Background(), makeSummary()); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	if !strings.Contains(body, `"machine":"bob"`) {
		t.Fatalf("expected machine in payload, got %s", body)
	}
	if !strings.Contains(body, `"managers":3`) || !strings.Contains(body, `"failures":1`) {
		t.Fatalf("expected counts in payload, got %s", body)
	}
}

func TestWebhookNotifierRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := atomic.AddInt32(&calls, 1)
		if count <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(zerolog.Nop(), server.URL, "")
	if err != nil {
		t.Fatalf("NewWebhookNotifier error: %v", err)
	}
	notifier.poster.timing.backoffInitial = time.Millisecond
	notifier.poster.timing.backoffMax = 2 * time.Millisecond
	notifier.poster.timing.backoffMaxElapsed = 20 * time.Millisecond
	notifier.poster.limiter = nil

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := notifier.Notify(ctx, makeSummary()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestWebhookNotifierDefaultTemplate(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(zerolog.Nop(), server.URL, "")
	if err != nil {
		t.Fatalf("NewWebhookNotifier error: %v", err)
	}
	if err := notifier.Notify(context.Background(), makeSummary()); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	var decoded struct {
		Machine  string         `json:"machine"`
		Role     string         `json:"role"`
		Failures int            `json:"failures"`
		Summary  runner.Summary `json:"summary"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("default template is not valid JSON: %v\n%s", err, body)
	}
	if decoded.Machine != "bob" || decoded.Role != "follower" || decoded.Failures != 1 {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
	if len(decoded.Summary.Managers) != 3 {
		t.Fatalf("expected 3 manager reports, got %d", len(decoded.Summary.Managers))
	}
}

func TestWebhookNotifierDisabledWithoutURL(t *testing.T) {
	notifier, err := NewWebhookNotifier(zerolog.Nop(), "", "")
	if err != nil || notifier != nil {
		t.Fatalf("expected nil notifier, got %v %v", notifier, err)
	}
	if err := notifier.Notify(context.Background(), makeSummary()); err != nil {
		t.Fatalf("nil notifier should be a no-op: %v", err)
	}
}

func TestWebhookNotifierInvalidTemplate(t *testing.T) {
	_, err := NewWebhookNotifier(zerolog.Nop(), "http://example.com", "{{")
	if err == nil {
		t.Fatalf("expected template error")
	}
}
