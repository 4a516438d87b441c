// Package manager wraps the package-manager binaries that package-sync drives.
package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nholik/package-sync/internal/state"
)

// ID names a supported package manager.
type ID string

const (
	Pipx    ID = "pipx"
	Brew    ID = "brew"
	Flatpak ID = "flatpak"
)

// All returns every supported manager in processing order.
func All() []ID {
	return []ID{Pipx, Brew, Flatpak}
}

// ParseID validates a manager name.
func ParseID(name string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range All() {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown package manager %q", name)
}

// ErrUnavailable is returned when a manager's binary cannot be found.
var ErrUnavailable = errors.New("package manager unavailable")

// Manager lists, installs and removes packages for one package manager.
type Manager interface {
	ID() ID
	// Available reports whether the manager binary can be run on this machine.
	Available() bool
	ListInstalled(ctx context.Context) (state.PackageSet, error)
	Install(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	// UpgradeAll upgrades every package the manager has installed.
	UpgradeAll(ctx context.Context) error
}

// CommandError reports a manager command that exited unsuccessfully.
type CommandError struct {
	Manager  ID
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Manager, strings.Join(e.Args, " "))
	if e.ExitCode != 0 {
		msg = fmt.Sprintf("%s (exit %d)", msg, e.ExitCode)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
