package reconcile

import "strings"

// DefaultCategories is the allow-list used when none is configured.
var DefaultCategories = []string{"专栏评论"}

// CategoryFilter keeps only allow-listed category labels. Matching is exact after
// trimming surrounding whitespace.
type CategoryFilter struct {
	allowed map[string]struct{}
}

// NewCategoryFilter builds a filter from the allow-list. Blank entries are ignored.
func NewCategoryFilter(allowed []string) CategoryFilter {
	set := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return CategoryFilter{allowed: set}
}

// Apply returns the allowed labels of raw in their original order, without duplicates.
func (f CategoryFilter) Apply(raw []string) []string {
	if len(raw) == 0 || len(f.allowed) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if _, ok := f.allowed[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Allowed reports whether name is on the allow-list.
func (f CategoryFilter) Allowed(name string) bool {
	_, ok := f.allowed[strings.TrimSpace(name)]
	return ok
}
