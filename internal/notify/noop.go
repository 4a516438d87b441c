package notify

import (
	"context"

	"github.com/nholik/package-sync/internal/runner"
	"github.com/rs/zerolog"
)

// NoopNotifier drops notifications.
type NoopNotifier struct {
	reason string
}

// NewNoop returns a notifier that logs its reason once and does nothing thereafter.
func NewNoop(logger zerolog.Logger, reason string) *NoopNotifier {
	if reason != "" {
		logger.Debug().Msg(reason)
	}
	return &NoopNotifier{reason: reason}
}

// Notify implements Notifier.
func (n *NoopNotifier) Notify(context.Context, runner.Summary) error {
	return nil
}
