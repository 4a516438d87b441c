package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/nholik/package-sync/internal/manager"
	"gopkg.in/yaml.v3"
)

// ManagerOverride replaces the binary or argument lists of one package manager.
type ManagerOverride struct {
	Name    string   `yaml:"name"`
	Binary  string   `yaml:"binary,omitempty"`
	List    []string `yaml:"list,omitempty"`
	Install []string `yaml:"install,omitempty"`
	Remove  []string `yaml:"remove,omitempty"`
	Upgrade []string `yaml:"upgrade,omitempty"`
}

// ManagersFile is the parsed YAML structure:
// managers: [{name, binary, list, install, remove, upgrade}]
type ManagersFile struct {
	Managers []ManagerOverride `yaml:"managers"`
}

// LoadManagersFile parses a YAML overrides file from the given path.
// Returns nil if path is empty (built-in commands only).
func LoadManagersFile(path string) (map[manager.ID]manager.Override, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read managers file: %w", err)
	}

	var mf ManagersFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse managers file: %w", err)
	}

	return buildOverrides(mf.Managers)
}

func buildOverrides(entries []ManagerOverride) (map[manager.ID]manager.Override, error) {
	overrides := make(map[manager.ID]manager.Override, len(entries))

	for i, entry := range entries {
		if strings.TrimSpace(entry.Name) == "" {
			return nil, fmt.Errorf("manager %d: name is required", i)
		}

		id, err := manager.ParseID(entry.Name)
		if err != nil {
			return nil, fmt.Errorf("manager %d: %w", i, err)
		}

		if _, dup := overrides[id]; dup {
			return nil, fmt.Errorf("manager %q: duplicate name", id)
		}

		overrides[id] = manager.Override{
			Binary:  strings.TrimSpace(entry.Binary),
			List:    entry.List,
			Install: entry.Install,
			Remove:  entry.Remove,
			Upgrade: entry.Upgrade,
		}
	}

	return overrides, nil
}
