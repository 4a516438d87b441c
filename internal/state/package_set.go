package state

import (
	"encoding/json"
	"sort"
)

// PackageSet is an unordered set of package names.
// It is encoded as a sorted JSON array; duplicates are dropped on decode.
type PackageSet map[string]struct{}

// NewPackageSet builds a set from names, skipping empty strings.
func NewPackageSet(names ...string) PackageSet {
	set := make(PackageSet, len(names))
	for _, name := range names {
		set.Add(name)
	}
	return set
}

// Add inserts name into the set.
func (s PackageSet) Add(name string) {
	if name == "" {
		return
	}
	s[name] = struct{}{}
}

// Has reports whether name is in the set.
func (s PackageSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Len returns the number of packages.
func (s PackageSet) Len() int {
	return len(s)
}

// Sorted returns the names in lexical order.
func (s PackageSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Difference returns the sorted names in s that are not in other.
func (s PackageSet) Difference(other PackageSet) []string {
	out := make([]string, 0)
	for name := range s {
		if !other.Has(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets hold the same names.
func (s PackageSet) Equal(other PackageSet) bool {
	if len(s) != len(other) {
		return false
	}
	for name := range s {
		if !other.Has(name) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s PackageSet) Clone() PackageSet {
	out := make(PackageSet, len(s))
	for name := range s {
		out[name] = struct{}{}
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (s PackageSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *PackageSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewPackageSet(names...)
	return nil
}
