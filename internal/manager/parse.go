package manager

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nholik/package-sync/internal/state"
)

// Parser turns the output of a list command into a package set.
type Parser func(output string) (state.PackageSet, error)

// ParseLines treats each non-blank line as one package name.
func ParseLines(output string) (state.PackageSet, error) {
	set := state.NewPackageSet()
	for _, line := range strings.Split(output, "\n") {
		set.Add(strings.TrimSpace(line))
	}
	return set, nil
}

// ParsePipxJSON reads the venv names from `pipx list --json`.
func ParsePipxJSON(output string) (state.PackageSet, error) {
	if strings.TrimSpace(output) == "" {
		return state.NewPackageSet(), nil
	}

	var doc struct {
		Venvs map[string]json.RawMessage `json:"venvs"`
	}
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		return nil, fmt.Errorf("parse pipx list output: %w", err)
	}

	set := state.NewPackageSet()
	for name := range doc.Venvs {
		set.Add(name)
	}
	return set, nil
}
