package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/nholik/package-sync/internal/runner"
	"github.com/rs/zerolog"
)

const defaultWebhookTemplate = `{"machine":{{ toJson .Machine }},"role":{{ toJson .Summary.Role }},"failures":{{ .Summary.Failures }},"summary":{{ toJson .Summary }}}`

// WebhookPayload is the template context for webhook notifications.
type WebhookPayload struct {
	Machine     string
	Summary     runner.Summary
	GeneratedAt time.Time
}

// WebhookNotifier posts run summaries to a generic webhook.
type WebhookNotifier struct {
	logger   zerolog.Logger
	template *template.Template
	poster   *httpPoster
}

// NewWebhookNotifier creates a webhook notifier with the provided template.
// It returns nil when no URL is configured.
func NewWebhookNotifier(logger zerolog.Logger, webhookURL string, tmpl string) (*WebhookNotifier, error) {
	if webhookURL == "" {
		return nil, nil
	}
	if tmpl == "" {
		tmpl = defaultWebhookTemplate
	}

	parsed, err := template.New("webhook").Funcs(template.FuncMap{
		"toJson": func(v any) (string, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	}).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	return &WebhookNotifier{
		logger:   logger,
		template: parsed,
		poster:   newHTTPPoster(logger, "webhook", webhookURL, "application/json", defaultTiming),
	}, nil
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, summary runner.Summary) error {
	if n == nil || !summary.Notable() {
		return nil
	}

	payload := WebhookPayload{
		Machine:     summary.Machine,
		Summary:     summary,
		GeneratedAt: time.Now().UTC(),
	}

	var buf bytes.Buffer
	if err := n.template.Execute(&buf, payload); err != nil {
		return fmt.Errorf("render webhook template: %w", err)
	}

	if err := n.poster.postWithRetry(ctx, buf.Bytes()); err != nil {
		return err
	}

	n.logger.Debug().
		Str("machine", summary.Machine).
		Int("changed", summary.Changed()).
		Int("failures", summary.Failures()).
		Msg("webhook notification sent")

	return nil
}
