package transition

import (
	"strings"
	"testing"

	"github.com/nholik/package-sync/internal/state"
)

func TestDetectChanges_FirstRun(t *testing.T) {
	current := map[string]state.PackageSet{
		"pipx": state.NewPackageSet("black"),
	}

	if changes := DetectChanges(nil, current); len(changes) != 0 {
		t.Fatalf("expected no changes on first run, got %v", changes)
	}
}

func TestDetectChanges_NoOp(t *testing.T) {
	prev := &state.MachineState{
		Packages: map[string]state.PackageSet{
			"pipx": state.NewPackageSet("black"),
			"brew": state.NewPackageSet(),
		},
	}
	current := map[string]state.PackageSet{
		"pipx": state.NewPackageSet("black"),
		"brew": state.NewPackageSet(),
	}

	if changes := DetectChanges(prev, current); len(changes) != 0 {
		t.Fatalf("expected no changes, got %v", changes)
	}
}

func TestDetectChanges_Mixed(t *testing.T) {
	prev := &state.MachineState{
		Packages: map[string]state.PackageSet{
			"pipx":    state.NewPackageSet("black", "ruff"),
			"brew":    state.NewPackageSet("jq"),
			"flatpak": state.NewPackageSet("org.gimp.GIMP"),
		},
	}
	current := map[string]state.PackageSet{
		"pipx":    state.NewPackageSet("ruff", "httpie"),
		"brew":    state.NewPackageSet("jq"),
		"flatpak": state.NewPackageSet(),
	}

	changes := DetectChanges(prev, current)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %v", len(changes), changes)
	}

	if changes[0].Manager != "flatpak" || changes[1].Manager != "pipx" {
		t.Fatalf("changes not sorted by manager: %v", changes)
	}
	if len(changes[0].Added) != 0 || strings.Join(changes[0].Removed, ",") != "org.gimp.GIMP" {
		t.Fatalf("unexpected flatpak change: %+v", changes[0])
	}
	if strings.Join(changes[1].Added, ",") != "httpie" || strings.Join(changes[1].Removed, ",") != "black" {
		t.Fatalf("unexpected pipx change: %+v", changes[1])
	}
}

func TestDetectChanges_ManagerAppearsOrDisappears(t *testing.T) {
	prev := &state.MachineState{
		Packages: map[string]state.PackageSet{
			"apt": state.NewPackageSet("vim"),
		},
	}
	current := map[string]state.PackageSet{
		"brew": state.NewPackageSet("fd"),
	}

	changes := DetectChanges(prev, current)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %v", changes)
	}
	if changes[0].Manager != "apt" || strings.Join(changes[0].Removed, ",") != "vim" {
		t.Fatalf("unexpected apt change: %+v", changes[0])
	}
	if changes[1].Manager != "brew" || strings.Join(changes[1].Added, ",") != "fd" {
		t.Fatalf("unexpected brew change: %+v", changes[1])
	}
}
