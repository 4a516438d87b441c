// Package upgrade runs each package manager's upgrade-all command ahead of a sync.
package upgrade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nholik/package-sync/internal/manager"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds a single upgrade-all call.
	DefaultTimeout = 60 * time.Second
	// retryFactor stretches the timeout for the one retry after a timeout.
	retryFactor = 3
)

// Result reports what happened to each manager.
type Result struct {
	Succeeded []manager.ID
	Failed    map[manager.ID]error
	Skipped   []manager.ID
}

// Err joins every failure, or returns nil when all upgrades succeeded.
func (r Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, id := range manager.All() {
		if err, ok := r.Failed[id]; ok {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Upgrader upgrades all packages of every available manager.
type Upgrader struct {
	logger  zerolog.Logger
	timeout time.Duration
}

// New returns an Upgrader. A non-positive timeout uses DefaultTimeout.
func New(logger zerolog.Logger, timeout time.Duration) *Upgrader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Upgrader{logger: logger, timeout: timeout}
}

// Run upgrades managers sequentially. Failures are reported, never returned.
func (u *Upgrader) Run(ctx context.Context, managers []manager.Manager) Result {
	result := Result{Failed: make(map[manager.ID]error)}

	for _, m := range managers {
		id := m.ID()
		if !m.Available() {
			u.logger.Info().Str("manager", string(id)).Msg("package manager not available; skipping upgrade")
			result.Skipped = append(result.Skipped, id)
			continue
		}

		u.logger.Info().Str("manager", string(id)).Dur("timeout", u.timeout).Msg("upgrading packages")
		if err := u.upgrade(ctx, m); err != nil {
			u.logger.Warn().Err(err).Str("manager", string(id)).Msg("upgrade failed")
			result.Failed[id] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}

	return result
}

// upgrade retries exactly once, and only when the first attempt timed out.
func (u *Upgrader) upgrade(ctx context.Context, m manager.Manager) error {
	attempt := 0
	operation := func() error {
		timeout := u.timeout
		if attempt > 0 {
			timeout *= retryFactor
			u.logger.Warn().
				Str("manager", string(m.ID())).
				Dur("timeout", timeout).
				Msg("upgrade timed out; retrying with extended timeout")
		}
		attempt++

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := m.UpgradeAll(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("upgrade timed out after %s: %w", timeout, err)
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1), ctx)
	return backoff.Retry(operation, policy)
}
