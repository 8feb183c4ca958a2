package permissions

import (
	"sort"
	"strings"
)

// PathRule maps a path prefix to the permissions that grant it.
type PathRule struct {
	Prefix   string
	Required []string
}

// DefaultPathRules is the built-in path table.
func DefaultPathRules() []PathRule {
	return []PathRule{
		{Prefix: "/api/projects", Required: []string{"projects.read"}},
		{Prefix: "/api/analysis", Required: []string{"analytics.read"}},
		{Prefix: "/api/proposals", Required: []string{"projects.read"}},
		{Prefix: "/api/metrics", Required: []string{"analytics.read"}},
		{Prefix: "/api/self-improvement", Required: []string{"admin"}},
	}
}

// PathTable answers which permissions a request path requires. Matching is
// segment aware and the longest matching prefix wins.
type PathTable struct {
	rules []PathRule
}

func NewPathTable(rules []PathRule) *PathTable {
	sorted := make([]PathRule, len(rules))
	for i, r := range rules {
		sorted[i] = PathRule{
			Prefix:   strings.TrimRight(r.Prefix, "/"),
			Required: append([]string(nil), r.Required...),
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &PathTable{rules: sorted}
}

// Required returns the permissions for path and whether any rule matched.
func (t *PathTable) Required(path string) ([]string, bool) {
	for _, r := range t.rules {
		if matchPrefix(path, r.Prefix) {
			return r.Required, true
		}
	}
	return nil, false
}

// Allowed reports whether the resolved access may reach path. Paths with no
// rule are open to every authenticated user.
func (t *PathTable) Allowed(r Resolved, path string) bool {
	if r.IsMaster {
		return true
	}
	required, ok := t.Required(path)
	if !ok {
		return true
	}
	return r.HasAny(required)
}

func matchPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
