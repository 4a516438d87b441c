// Package runner drives one sync run: load the shared state, decide the
// machine's role, snapshot its packages, reconcile a follower toward the
// primary's recorded packages and persist the result.
package runner

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nholik/package-sync/internal/manager"
	"github.com/nholik/package-sync/internal/metrics"
	"github.com/nholik/package-sync/internal/reconcile"
	"github.com/nholik/package-sync/internal/state"
	"github.com/nholik/package-sync/internal/transition"
	"github.com/rs/zerolog"
)

// Phase is a step of the run state machine.
type Phase string

const (
	PhaseStart        Phase = "start"
	PhaseConfigLoaded Phase = "config_loaded"
	PhaseRoleDecided  Phase = "role_decided"
	PhasePrimaryPath  Phase = "primary_path"
	PhaseFollowerPath Phase = "follower_path"
	PhasePersisted    Phase = "persisted"
	PhaseDone         Phase = "done"
)

// ErrMachineRequired is returned when RunOnce is called without a machine name.
var ErrMachineRequired = errors.New("machine name is required")

// Options selects the acting machine and how it behaves for one run.
type Options struct {
	Machine string
	// ForcePrimary acts as primary without taking over the election.
	ForcePrimary bool
	// Promote makes Machine the elected primary.
	Promote bool
	// DryRun computes plans but never installs, removes or saves.
	DryRun bool
}

// Runner orchestrates a single sync run.
type Runner struct {
	logger   zerolog.Logger
	store    state.Store
	managers []manager.Manager
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option customizes runner behavior.
type Option func(*Runner)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// New constructs a Runner over the given store and managers.
func New(logger zerolog.Logger, store state.Store, managers []manager.Manager, opts ...Option) *Runner {
	r := &Runner{
		logger:   logger,
		store:    store,
		managers: managers,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RunOnce executes one sync run for opts.Machine.
// Per-package failures are reported in the Summary; only state load and save
// failures are returned as errors.
func (r *Runner) RunOnce(ctx context.Context, opts Options) (Summary, error) {
	machine := strings.TrimSpace(opts.Machine)
	if machine == "" {
		return Summary{}, ErrMachineRequired
	}

	logger := r.logger.With().Str("machine", machine).Logger()
	summary := Summary{
		Machine:   machine,
		DryRun:    opts.DryRun,
		StartedAt: r.now().UTC(),
	}
	r.enter(logger, PhaseStart)

	loaded, err := r.store.Load(ctx)
	if err != nil {
		return summary, wrapPhase(PhaseConfigLoaded, err)
	}
	if loaded.Machines == nil {
		loaded.Machines = map[string]state.MachineState{}
	}
	if reporter, ok := r.store.(state.RecoveryReporter); ok {
		if recovery, ok := reporter.LastRecovery(); ok {
			summary.RecoveredBackup = recovery.BackupPath
			r.metrics.IncStateRecoveries()
		}
	}
	r.enter(logger, PhaseConfigLoaded)

	role, elected := decideRole(&loaded, machine, opts)
	summary.Role = role
	summary.Primary = loaded.PrimaryMachine
	summary.Elected = elected
	logger.Info().
		Str("role", string(role)).
		Str("primary", loaded.PrimaryMachine).
		Bool("elected", elected).
		Msg("role decided")
	r.enter(logger, PhaseRoleDecided)

	var previous *state.MachineState
	if recorded, ok := loaded.Machine(machine); ok {
		previous = &recorded
	}

	snapshot := manager.TakeSnapshot(ctx, r.managers)
	reports := r.newReports(snapshot, logger)

	switch role {
	case RolePrimary:
		r.enter(logger, PhasePrimaryPath)
	default:
		r.enter(logger, PhaseFollowerPath)
		snapshot = r.follow(ctx, logger, loaded, snapshot, reports, opts.DryRun)
	}

	final := snapshot.StatePackages()
	summary.Managers = make([]ManagerReport, 0, len(r.managers))
	for _, m := range r.managers {
		report := reports[m.ID()]
		report.Packages = final[string(m.ID())].Len()
		summary.Managers = append(summary.Managers, *report)
	}
	summary.Drift = transition.DetectChanges(previous, final)

	if opts.DryRun {
		logger.Info().Msg("dry run; state not saved")
		summary.FinishedAt = r.now().UTC()
		r.enter(logger, PhaseDone)
		return summary, nil
	}

	loaded.Machines[machine] = state.MachineState{
		Packages:   final,
		LastUpdate: r.now().UTC().Format(time.RFC3339Nano),
	}
	if err := r.store.Save(ctx, loaded); err != nil {
		return summary, wrapPhase(PhasePersisted, err)
	}
	summary.Saved = true
	r.enter(logger, PhasePersisted)

	for _, change := range summary.Drift {
		logger.Info().
			Str("manager", change.Manager).
			Strs("added", change.Added).
			Strs("removed", change.Removed).
			Msg("package drift since last run")
	}

	summary.FinishedAt = r.now().UTC()
	r.record(summary)
	logger.Info().
		Int("changed", summary.Changed()).
		Int("failures", summary.Failures()).
		Dur("duration", summary.Duration()).
		Msg("sync complete")
	r.enter(logger, PhaseDone)

	return summary, nil
}

// decideRole applies first-mover election and the role flags. The election
// is a plain read-modify-write of the shared file with no lock.
func decideRole(s *state.State, machine string, opts Options) (Role, bool) {
	elected := false
	if s.PrimaryMachine == "" || (opts.Promote && s.PrimaryMachine != machine) {
		s.PrimaryMachine = machine
		elected = true
	}
	if s.PrimaryMachine == machine || opts.ForcePrimary {
		return RolePrimary, elected
	}
	return RoleFollower, elected
}

// follow reconciles every listed manager against the primary's recorded
// packages and returns the snapshot to persist.
func (r *Runner) follow(ctx context.Context, logger zerolog.Logger, loaded state.State, snapshot manager.Snapshot, reports map[manager.ID]*ManagerReport, dryRun bool) manager.Snapshot {
	primary, ok := loaded.PrimaryState()
	if !ok {
		logger.Warn().
			Str("primary", loaded.PrimaryMachine).
			Msg("primary has no recorded packages yet; skipping reconciliation")
		return snapshot
	}

	attempted := false
	for _, m := range r.managers {
		id := m.ID()
		report := reports[id]
		if report.Skipped {
			continue
		}

		want, ok := primary.Packages[string(id)]
		if !ok {
			logger.Warn().
				Str("manager", string(id)).
				Str("primary", loaded.PrimaryMachine).
				Msg("primary has no record for manager; skipping")
			report.Skipped = true
			report.SkipReason = "no record on primary"
			continue
		}

		plan := reconcile.Diff(want, snapshot.Packages[id])
		report.Plan = plan
		logger.Info().
			Str("manager", string(id)).
			Strs("install", plan.Install).
			Strs("remove", plan.Remove).
			Msg("reconciliation plan")

		if plan.Empty() || dryRun {
			continue
		}

		attempted = true
		outcomes := reconcile.Apply(ctx, m, plan, logger)
		counts := reconcile.Summarize(outcomes)
		report.Outcomes = outcomes
		report.Installed = counts.Installed
		report.Removed = counts.Removed
		for _, outcome := range outcomes {
			r.metrics.IncOperation(string(id), string(outcome.Op), outcome.Failed())
			if outcome.Failed() {
				report.Failures = append(report.Failures, outcome.String())
			}
		}
	}

	if !attempted {
		return snapshot
	}

	// Record what actually ended up installed, not what was planned.
	return manager.TakeSnapshot(ctx, r.managers)
}

func (r *Runner) newReports(snapshot manager.Snapshot, logger zerolog.Logger) map[manager.ID]*ManagerReport {
	reports := make(map[manager.ID]*ManagerReport, len(r.managers))
	for _, m := range r.managers {
		id := m.ID()
		report := &ManagerReport{Manager: id}
		if err, skipped := snapshot.Skipped[id]; skipped {
			report.Skipped = true
			report.SkipReason = err.Error()
			event := logger.Warn()
			if snapshot.Unavailable(id) {
				event = logger.Info()
			}
			event.Err(err).Str("manager", string(id)).Msg("package manager skipped; recorded as empty")
		}
		r.metrics.SetManagerUnavailable(string(id), report.Skipped)
		reports[id] = report
	}
	return reports
}

func (r *Runner) record(summary Summary) {
	for _, report := range summary.Managers {
		r.metrics.SetPackagesTotal(summary.Machine, string(report.Manager), report.Packages)
	}
	r.metrics.ObserveRunDuration(summary.Duration())
	r.metrics.SetLastSuccessfulRunTimestamp(summary.FinishedAt)
}

func (r *Runner) enter(logger zerolog.Logger, phase Phase) {
	logger.Debug().Str("phase", string(phase)).Msg("phase entered")
}
