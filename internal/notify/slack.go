package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nholik/package-sync/internal/runner"
	"github.com/nholik/package-sync/internal/transition"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

const (
	// slackMaxListed caps entries per field.
	slackMaxListed = 20
	// slackMaxItemLen caps one entry; failure entries carry full command stderr.
	slackMaxItemLen = 200
	// slackMaxFieldLen stays under Slack's 2000 character limit for a field.
	slackMaxFieldLen = 1900
	// slackMaxTextLen stays under Slack's 3000 character limit for section text.
	slackMaxTextLen = 2900
	// slackMaxFields is Slack's limit for fields in one section block.
	slackMaxFields = 10
)

// SlackNotifier posts run summaries to a Slack incoming webhook.
type SlackNotifier struct {
	logger     zerolog.Logger
	webhookURL string
	timing     timingConfig
	poster     *httpPoster
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		webhookURL: webhookURL,
		timing:     defaultTiming,
	}

	for _, opt := range opts {
		opt(notifier)
	}

	notifier.poster = newHTTPPoster(logger, "slack", webhookURL, "application/json", notifier.timing)

	return notifier
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, summary runner.Summary) error {
	if !summary.Notable() {
		return nil
	}

	payload, err := json.Marshal(buildSlackMessage(summary))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if err := n.poster.postWithRetry(ctx, payload); err != nil {
		return err
	}

	n.logger.Debug().
		Str("machine", summary.Machine).
		Int("changed", summary.Changed()).
		Int("failures", summary.Failures()).
		Msg("slack notification sent")

	return nil
}

func (n *SlackNotifier) postOnce(ctx context.Context, payload []byte) error {
	return n.poster.postOnce(ctx, payload)
}

func buildSlackMessage(summary runner.Summary) slack.WebhookMessage {
	headline := fmt.Sprintf("package-sync %s: %d change(s), %d failure(s)", summary.Machine, summary.Changed(), summary.Failures())
	if summary.DryRun {
		headline = fmt.Sprintf("package-sync %s (dry run): %d planned change(s)", summary.Machine, summary.Planned())
	}

	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", headline, false, false))
	contextElements := []slack.MixedElement{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Machine: *%s*", summary.Machine), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Role: %s", summary.Role), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Primary: %s", primaryLabel(summary)), false, false),
	}
	blocks := []slack.Block{header, slack.NewContextBlock("", contextElements...)}

	if summary.RecoveredBackup != "" {
		text := fmt.Sprintf(":warning: State file was corrupted and reset. Backup: `%s`", summary.RecoveredBackup)
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", text, false, false), nil, nil))
	}

	drift := make(map[string]transition.Change, len(summary.Drift))
	for _, change := range summary.Drift {
		drift[change.Manager] = change
	}

	for _, report := range summary.Managers {
		if block := buildManagerBlock(report, drift[string(report.Manager)]); block != nil {
			blocks = append(blocks, block)
		}
	}

	blockSet := slack.Blocks{BlockSet: blocks}
	return slack.WebhookMessage{
		Text:   headline,
		Blocks: &blockSet,
	}
}

// buildManagerBlock returns nil when there is nothing to say about the manager.
func buildManagerBlock(report runner.ManagerReport, drift transition.Change) slack.Block {
	fields := make([]*slack.TextBlockObject, 0, slackMaxFields)
	addField := func(title string, items []string) {
		if len(items) == 0 || len(fields) >= slackMaxFields {
			return
		}
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", formatList(title, items), false, false))
	}

	addField("Install", report.Plan.Install)
	addField("Remove", report.Plan.Remove)
	addField("Failures", report.Failures)
	addField("Added since last run", drift.Added)
	addField("Removed since last run", drift.Removed)

	if len(fields) == 0 && !report.Skipped {
		return nil
	}

	title := fmt.Sprintf("*%s*: %d installed, %d removed, %d package(s)", report.Manager, report.Installed, report.Removed, report.Packages)
	if report.Skipped {
		title = fmt.Sprintf("*%s*: skipped (%s)", report.Manager, report.SkipReason)
	}
	title = truncate(title, slackMaxTextLen)

	if len(fields) == 0 {
		fields = nil
	}
	return slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", title, false, false), fields, nil)
}

func formatList(title string, items []string) string {
	limit := min(len(items), slackMaxListed)
	shown := make([]string, 0, limit)
	for _, item := range items[:limit] {
		shown = append(shown, truncate(item, slackMaxItemLen))
	}
	text := truncate(fmt.Sprintf("*%s:*\n• %s", title, strings.Join(shown, "\n• ")), slackMaxFieldLen)
	if extra := len(items) - len(shown); extra > 0 {
		text += fmt.Sprintf("\n…and %d more", extra)
	}
	return text
}

// truncate cuts s to at most n runes, marking the cut with "…".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func primaryLabel(summary runner.Summary) string {
	if summary.Primary == "" {
		return "none"
	}
	return summary.Primary
}
