package notify

import (
	"context"

	"github.com/nholik/package-sync/internal/runner"
	"github.com/rs/zerolog"
)

// DryRunNotifier logs what would be sent without delivering it.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, summary runner.Summary) error {
	if !summary.Notable() {
		return nil
	}
	for _, report := range summary.Managers {
		n.logger.Info().
			Str("machine", summary.Machine).
			Str("manager", string(report.Manager)).
			Strs("install", report.Plan.Install).
			Strs("remove", report.Plan.Remove).
			Strs("failures", report.Failures).
			Bool("skipped", report.Skipped).
			Msg("[DRY-RUN] Would notify")
	}
	return nil
}
