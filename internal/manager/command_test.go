package manager

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

type call struct {
	name string
	args []string
}

type fakeExecutor struct {
	installed map[string]bool
	results   map[string]Result
	errs      map[string]error
	calls     []call
}

func (f *fakeExecutor) LookPath(file string) (string, error) {
	if f.installed[file] {
		return "/usr/bin/" + file, nil
	}
	return "", exec.ErrNotFound
}

func (f *fakeExecutor) Run(_ context.Context, name string, args ...string) (Result, error) {
	f.calls = append(f.calls, call{name: name, args: append([]string(nil), args...)})
	key := name + " " + strings.Join(args, " ")
	return f.results[key], f.errs[key]
}

func TestCommandManager_ListInstalled(t *testing.T) {
	fake := &fakeExecutor{
		installed: map[string]bool{"pipx": true, "brew": true, "flatpak": true},
		results: map[string]Result{
			"pipx list --json":                         {Stdout: `{"venvs":{"black":{},"httpie":{}}}`},
			"brew list --formula":                      {Stdout: "jq\nfd\n\n"},
			"flatpak list --app --columns=application": {Stdout: "org.mozilla.firefox\n"},
		},
	}

	cases := []struct {
		id   ID
		want string
	}{
		{Pipx, "black,httpie"},
		{Brew, "fd,jq"},
		{Flatpak, "org.mozilla.firefox"},
	}

	specs := DefaultSpecs()
	for _, tc := range cases {
		t.Run(string(tc.id), func(t *testing.T) {
			m := New(specs[tc.id], fake)
			set, err := m.ListInstalled(context.Background())
			if err != nil {
				t.Fatalf("ListInstalled: %v", err)
			}
			if got := strings.Join(set.Sorted(), ","); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCommandManager_UnavailableBinary(t *testing.T) {
	fake := &fakeExecutor{installed: map[string]bool{}}
	m := New(DefaultSpecs()[Brew], fake)

	if m.Available() {
		t.Fatalf("brew should be unavailable")
	}
	if _, err := m.ListInstalled(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := m.Install(context.Background(), "jq"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from install, got %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("no command should run for a missing binary, got %v", fake.calls)
	}
}

func TestCommandManager_InstallRemoveArgs(t *testing.T) {
	fake := &fakeExecutor{installed: map[string]bool{"flatpak": true}}
	m := New(DefaultSpecs()[Flatpak], fake)

	if err := m.Install(context.Background(), "org.gimp.GIMP"); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := m.Remove(context.Background(), "org.gimp.GIMP"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := m.UpgradeAll(context.Background()); err != nil {
		t.Fatalf("UpgradeAll: %v", err)
	}

	want := []string{
		"install -y org.gimp.GIMP",
		"uninstall -y org.gimp.GIMP",
		"update -y",
	}
	if len(fake.calls) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(fake.calls))
	}
	for i, c := range fake.calls {
		if c.name != "flatpak" {
			t.Fatalf("call %d ran %s", i, c.name)
		}
		if got := strings.Join(c.args, " "); got != want[i] {
			t.Fatalf("call %d args = %q, want %q", i, got, want[i])
		}
	}
}

func TestCommandManager_FailedCommand(t *testing.T) {
	fake := &fakeExecutor{
		installed: map[string]bool{"pipx": true},
		results: map[string]Result{
			"pipx install nope": {Stderr: "  No matching distribution found\n", ExitCode: 1},
		},
		errs: map[string]error{
			"pipx install nope": errors.New("exit status 1"),
		},
	}
	m := New(DefaultSpecs()[Pipx], fake)

	err := m.Install(context.Background(), "nope")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %T: %v", err, err)
	}
	if cmdErr.ExitCode != 1 || cmdErr.Stderr != "No matching distribution found" {
		t.Fatalf("unexpected command error: %+v", cmdErr)
	}
	if !strings.Contains(err.Error(), "pipx install nope failed") {
		t.Fatalf("unexpected message: %s", err)
	}
}

func TestNewAll_AppliesOverrides(t *testing.T) {
	fake := &fakeExecutor{installed: map[string]bool{"/opt/homebrew/bin/brew": true}}
	managers := NewAll(fake, map[ID]Override{
		Brew: {Binary: "/opt/homebrew/bin/brew", Upgrade: []string{"upgrade", "--greedy"}},
	})

	if len(managers) != 3 {
		t.Fatalf("expected 3 managers, got %d", len(managers))
	}
	for i, id := range All() {
		if managers[i].ID() != id {
			t.Fatalf("manager %d = %s, want %s", i, managers[i].ID(), id)
		}
	}

	brew := managers[1]
	if !brew.Available() {
		t.Fatalf("overridden brew binary should be found")
	}
	if err := brew.UpgradeAll(context.Background()); err != nil {
		t.Fatalf("UpgradeAll: %v", err)
	}
	last := fake.calls[len(fake.calls)-1]
	if last.name != "/opt/homebrew/bin/brew" || strings.Join(last.args, " ") != "upgrade --greedy" {
		t.Fatalf("unexpected call %+v", last)
	}
	if managers[0].Available() {
		t.Fatalf("pipx should not be available")
	}
}

func TestParseID(t *testing.T) {
	if id, err := ParseID(" Brew "); err != nil || id != Brew {
		t.Fatalf("ParseID(Brew) = %q, %v", id, err)
	}
	if _, err := ParseID("apt"); err == nil {
		t.Fatalf("expected error for unknown manager")
	}
}
