// Package reconcile computes and applies the changes that bring a follower's
// packages in line with the primary's recorded packages.
package reconcile

import (
	"context"
	"fmt"

	"github.com/nholik/package-sync/internal/manager"
	"github.com/nholik/package-sync/internal/state"
	"github.com/rs/zerolog"
)

// Op is a single package mutation.
type Op string

const (
	OpInstall Op = "install"
	OpRemove  Op = "remove"
)

// Plan lists the packages to install and remove for one manager.
type Plan struct {
	Install []string `json:"install"`
	Remove  []string `json:"remove"`
}

// Empty reports whether the plan has nothing to do.
func (p Plan) Empty() bool {
	return len(p.Install) == 0 && len(p.Remove) == 0
}

// Diff returns primary minus local as installs and local minus primary as removals.
func Diff(primary, local state.PackageSet) Plan {
	return Plan{
		Install: primary.Difference(local),
		Remove:  local.Difference(primary),
	}
}

// Outcome records the result of one install or remove.
type Outcome struct {
	Manager manager.ID
	Op      Op
	Package string
	Err     error
}

// Failed reports whether the operation returned an error.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s %s %s: %v", o.Op, o.Manager, o.Package, o.Err)
	}
	return fmt.Sprintf("%s %s %s: ok", o.Op, o.Manager, o.Package)
}

// Apply runs every install, then every removal, in plan order. A failed
// operation is recorded and the remaining operations still run.
func Apply(ctx context.Context, m manager.Manager, plan Plan, logger zerolog.Logger) []Outcome {
	outcomes := make([]Outcome, 0, len(plan.Install)+len(plan.Remove))

	for _, pkg := range plan.Install {
		outcomes = append(outcomes, apply(ctx, m, OpInstall, pkg, logger))
	}
	for _, pkg := range plan.Remove {
		outcomes = append(outcomes, apply(ctx, m, OpRemove, pkg, logger))
	}

	return outcomes
}

func apply(ctx context.Context, m manager.Manager, op Op, pkg string, logger zerolog.Logger) Outcome {
	logger.Info().
		Str("manager", string(m.ID())).
		Str("op", string(op)).
		Str("package", pkg).
		Msg("applying package change")

	var err error
	switch op {
	case OpInstall:
		err = m.Install(ctx, pkg)
	case OpRemove:
		err = m.Remove(ctx, pkg)
	default:
		err = fmt.Errorf("unknown operation %q", op)
	}

	if err != nil {
		logger.Warn().
			Err(err).
			Str("manager", string(m.ID())).
			Str("op", string(op)).
			Str("package", pkg).
			Msg("package change failed")
	}

	return Outcome{Manager: m.ID(), Op: op, Package: pkg, Err: err}
}

// Counts tallies outcomes.
type Counts struct {
	Installed int
	Removed   int
	Failed    int
}

// Summarize counts successes per operation and total failures.
func Summarize(outcomes []Outcome) Counts {
	var c Counts
	for _, o := range outcomes {
		switch {
		case o.Failed():
			c.Failed++
		case o.Op == OpInstall:
			c.Installed++
		case o.Op == OpRemove:
			c.Removed++
		}
	}
	return c
}
