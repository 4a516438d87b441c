// Package notify delivers run summaries to external systems.
package notify

import (
	"context"

	"github.com/nholik/package-sync/internal/runner"
)

// Notifier delivers a run summary to an external system.
// Implementations ignore summaries that are not Notable.
type Notifier interface {
	Notify(ctx context.Context, summary runner.Summary) error
}
