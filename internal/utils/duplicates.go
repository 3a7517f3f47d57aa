package utils

import (
	"strings"
)

// NameFilter drops names already seen under a case-insensitive comparison.
// It is not safe for concurrent use.
type NameFilter struct {
	seen map[string]bool
}

// NewNameFilter creates an empty filter sized for n names
func NewNameFilter(n int) *NameFilter {
	return &NameFilter{seen: make(map[string]bool, n)}
}

// ShouldInclude reports whether name is new, and remembers it.
// Returns false for duplicates and for blank names.
func (f *NameFilter) ShouldInclude(name string) bool {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || f.seen[key] {
		return false
	}
	f.seen[key] = true
	return true
}
