// Package state holds the shared multi-machine state file.
//
// The file is meant to live on storage several machines can reach (a synced
// folder, a network mount). There is no locking and no merge: every run
// replaces the whole file, so two machines saving at the same time can lose
// one side's update. The last writer wins.
package state

import "context"

// MachineState is the recorded package snapshot of one machine.
type MachineState struct {
	// Packages maps a manager identifier to its installed package names.
	Packages   map[string]PackageSet `json:"packages"`
	LastUpdate string                `json:"last_update"`
}

// State is the root object of the state file.
type State struct {
	PrimaryMachine string                  `json:"primary_machine,omitempty"`
	Machines       map[string]MachineState `json:"machines"`
}

// New returns an empty state with no elected primary.
func New() State {
	return State{Machines: map[string]MachineState{}}
}

// Machine returns the recorded state for name.
func (s State) Machine(name string) (MachineState, bool) {
	m, ok := s.Machines[name]
	return m, ok
}

// PrimaryState returns the recorded state of the elected primary, if any.
func (s State) PrimaryState() (MachineState, bool) {
	if s.PrimaryMachine == "" {
		return MachineState{}, false
	}
	return s.Machine(s.PrimaryMachine)
}

// Store defines the interface for persisting state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// Recovery describes a corrupted state file that was set aside during Load.
type Recovery struct {
	Path       string
	BackupPath string
	Cause      error
}

// RecoveryReporter is implemented by stores that can replace a corrupted file.
type RecoveryReporter interface {
	LastRecovery() (Recovery, bool)
}
