package transition

import (
	"sort"

	"github.com/nholik/package-sync/internal/state"
)

// Change captures how one manager's package set moved between two recorded snapshots.
type Change struct {
	Manager string   `json:"manager"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// DetectChanges compares a machine's previously recorded snapshot with its new one.
// The first run of a machine (no previous snapshot) produces no changes.
func DetectChanges(prev *state.MachineState, current map[string]state.PackageSet) []Change {
	if prev == nil {
		return nil
	}

	managers := map[string]struct{}{}
	for id := range prev.Packages {
		managers[id] = struct{}{}
	}
	for id := range current {
		managers[id] = struct{}{}
	}

	changes := make([]Change, 0)
	for id := range managers {
		before := prev.Packages[id]
		after := current[id]

		added := after.Difference(before)
		removed := before.Difference(after)
		if len(added) == 0 && len(removed) == 0 {
			continue
		}
		changes = append(changes, Change{
			Manager: id,
			Added:   added,
			Removed: removed,
		})
	}

	// Sort by manager name for deterministic output
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Manager < changes[j].Manager
	})

	return changes
}
