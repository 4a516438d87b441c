package manager

import (
	"context"
	"errors"
	"strings"

	"github.com/nholik/package-sync/internal/state"
)

// Spec describes how to drive one package manager binary.
// Package names are appended to Install and Remove.
type Spec struct {
	ID      ID
	Binary  string
	List    []string
	Install []string
	Remove  []string
	Upgrade []string
	Parse   Parser
}

// Override replaces parts of a Spec. Empty fields keep the default.
type Override struct {
	Binary  string
	List    []string
	Install []string
	Remove  []string
	Upgrade []string
}

// DefaultSpecs returns the built-in command table keyed by manager.
func DefaultSpecs() map[ID]Spec {
	return map[ID]Spec{
		Pipx: {
			ID:      Pipx,
			Binary:  "pipx",
			List:    []string{"list", "--json"},
			Install: []string{"install"},
			Remove:  []string{"uninstall"},
			Upgrade: []string{"upgrade-all"},
			Parse:   ParsePipxJSON,
		},
		Brew: {
			ID:      Brew,
			Binary:  "brew",
			List:    []string{"list", "--formula"},
			Install: []string{"install"},
			Remove:  []string{"uninstall"},
			Upgrade: []string{"upgrade"},
			Parse:   ParseLines,
		},
		Flatpak: {
			ID:      Flatpak,
			Binary:  "flatpak",
			List:    []string{"list", "--app", "--columns=application"},
			Install: []string{"install", "-y"},
			Remove:  []string{"uninstall", "-y"},
			Upgrade: []string{"update", "-y"},
			Parse:   ParseLines,
		},
	}
}

// Apply returns a copy of s with the non-empty override fields applied.
func (s Spec) Apply(o Override) Spec {
	if o.Binary != "" {
		s.Binary = o.Binary
	}
	if len(o.List) > 0 {
		s.List = o.List
	}
	if len(o.Install) > 0 {
		s.Install = o.Install
	}
	if len(o.Remove) > 0 {
		s.Remove = o.Remove
	}
	if len(o.Upgrade) > 0 {
		s.Upgrade = o.Upgrade
	}
	return s
}

// CommandManager implements Manager by running the manager's CLI.
type CommandManager struct {
	spec Spec
	exec Executor
}

// New returns a Manager for spec using exec to run commands.
func New(spec Spec, exec Executor) *CommandManager {
	if exec == nil {
		exec = OSExecutor{}
	}
	if spec.Parse == nil {
		spec.Parse = ParseLines
	}
	return &CommandManager{spec: spec, exec: exec}
}

// NewAll builds a manager for every supported ID, applying any overrides.
func NewAll(exec Executor, overrides map[ID]Override) []Manager {
	specs := DefaultSpecs()
	managers := make([]Manager, 0, len(specs))
	for _, id := range All() {
		spec := specs[id]
		if o, ok := overrides[id]; ok {
			spec = spec.Apply(o)
		}
		managers = append(managers, New(spec, exec))
	}
	return managers
}

// ID implements Manager.
func (m *CommandManager) ID() ID {
	return m.spec.ID
}

// Available implements Manager.
func (m *CommandManager) Available() bool {
	_, err := m.exec.LookPath(m.spec.Binary)
	return err == nil
}

// ListInstalled implements Manager.
func (m *CommandManager) ListInstalled(ctx context.Context) (state.PackageSet, error) {
	result, err := m.run(ctx, m.spec.List)
	if err != nil {
		return nil, err
	}
	return m.spec.Parse(result.Stdout)
}

// Install implements Manager.
func (m *CommandManager) Install(ctx context.Context, name string) error {
	_, err := m.run(ctx, withPackage(m.spec.Install, name))
	return err
}

// Remove implements Manager.
func (m *CommandManager) Remove(ctx context.Context, name string) error {
	_, err := m.run(ctx, withPackage(m.spec.Remove, name))
	return err
}

// UpgradeAll implements Manager.
func (m *CommandManager) UpgradeAll(ctx context.Context) error {
	_, err := m.run(ctx, m.spec.Upgrade)
	return err
}

func (m *CommandManager) run(ctx context.Context, args []string) (Result, error) {
	if !m.Available() {
		return Result{}, ErrUnavailable
	}

	result, err := m.exec.Run(ctx, m.spec.Binary, args...)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, ErrUnavailable) {
		return result, err
	}
	return result, &CommandError{
		Manager:  m.spec.ID,
		Args:     args,
		ExitCode: result.ExitCode,
		Stderr:   strings.TrimSpace(result.Stderr),
		Err:      err,
	}
}

func withPackage(args []string, name string) []string {
	out := make([]string, 0, len(args)+1)
	out = append(out, args...)
	return append(out, name)
}
