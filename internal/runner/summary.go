package runner

import (
	"time"

	"github.com/nholik/package-sync/internal/manager"
	"github.com/nholik/package-sync/internal/reconcile"
	"github.com/nholik/package-sync/internal/transition"
)

// Role is the part a machine plays in a run.
type Role string

const (
	RolePrimary  Role = "primary"
	RoleFollower Role = "follower"
)

// ManagerReport describes what a run did for one package manager.
type ManagerReport struct {
	Manager    manager.ID     `json:"manager"`
	Skipped    bool           `json:"skipped,omitempty"`
	SkipReason string         `json:"skip_reason,omitempty"`
	Plan       reconcile.Plan `json:"plan"`
	Installed  int            `json:"installed"`
	Removed    int            `json:"removed"`
	Failures   []string       `json:"failures,omitempty"`

	// Packages is the size of the recorded final snapshot.
	Packages int `json:"packages"`

	Outcomes []reconcile.Outcome `json:"-"`
}

// Summary is the result of one RunOnce call.
type Summary struct {
	Machine         string              `json:"machine"`
	Primary         string              `json:"primary"`
	Role            Role                `json:"role"`
	Elected         bool                `json:"elected,omitempty"`
	DryRun          bool                `json:"dry_run,omitempty"`
	Saved           bool                `json:"saved"`
	RecoveredBackup string              `json:"recovered_backup,omitempty"`
	Managers        []ManagerReport     `json:"managers"`
	Drift           []transition.Change `json:"drift,omitempty"`
	StartedAt       time.Time           `json:"started_at"`
	FinishedAt      time.Time           `json:"finished_at"`
}

// Failures counts failed install and remove operations.
func (s Summary) Failures() int {
	total := 0
	for _, report := range s.Managers {
		total += len(report.Failures)
	}
	return total
}

// Changed counts successful install and remove operations.
func (s Summary) Changed() int {
	total := 0
	for _, report := range s.Managers {
		total += report.Installed + report.Removed
	}
	return total
}

// Planned counts planned installs and removals, executed or not.
func (s Summary) Planned() int {
	total := 0
	for _, report := range s.Managers {
		total += len(report.Plan.Install) + len(report.Plan.Remove)
	}
	return total
}

// Notable reports whether the run did anything worth telling someone about.
func (s Summary) Notable() bool {
	return s.Failures() > 0 ||
		s.Changed() > 0 ||
		(s.DryRun && s.Planned() > 0) ||
		len(s.Drift) > 0 ||
		s.Elected ||
		s.RecoveredBackup != ""
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.Before(s.StartedAt) {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
