package manager

import (
	"context"
	"errors"

	"github.com/nholik/package-sync/internal/state"
)

// Snapshot is the set of installed packages per manager at one point in time.
type Snapshot struct {
	Packages map[ID]state.PackageSet
	// Skipped records managers whose listing failed; their set is empty.
	Skipped map[ID]error
}

// TakeSnapshot lists installed packages for every manager. Listing failures
// never abort the snapshot: the manager is recorded as empty and skipped.
func TakeSnapshot(ctx context.Context, managers []Manager) Snapshot {
	snap := Snapshot{
		Packages: make(map[ID]state.PackageSet, len(managers)),
		Skipped:  make(map[ID]error),
	}
	for _, m := range managers {
		if !m.Available() {
			snap.Packages[m.ID()] = state.NewPackageSet()
			snap.Skipped[m.ID()] = ErrUnavailable
			continue
		}
		set, err := m.ListInstalled(ctx)
		if err != nil {
			snap.Packages[m.ID()] = state.NewPackageSet()
			snap.Skipped[m.ID()] = err
			continue
		}
		if set == nil {
			set = state.NewPackageSet()
		}
		snap.Packages[m.ID()] = set
	}
	return snap
}

// IsSkipped reports whether id could not be listed.
func (s Snapshot) IsSkipped(id ID) bool {
	_, ok := s.Skipped[id]
	return ok
}

// Unavailable reports whether id was skipped because its binary is missing.
func (s Snapshot) Unavailable(id ID) bool {
	return errors.Is(s.Skipped[id], ErrUnavailable)
}

// StatePackages converts the snapshot into the state file representation.
func (s Snapshot) StatePackages() map[string]state.PackageSet {
	out := make(map[string]state.PackageSet, len(s.Packages))
	for id, set := range s.Packages {
		out[string(id)] = set.Clone()
	}
	return out
}
