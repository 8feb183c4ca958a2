package ratelimit

import (
	"sort"
	"strings"
	"time"
)

// BurstWindow is the length of the short window the burst cap applies to.
const BurstWindow = 10 * time.Second

// DefaultEndpoint is the table key used when nothing else matches.
const DefaultEndpoint = "default"

// DefaultBurst caps BurstWindow when the default entry sets no burst.
const DefaultBurst = 20

// Limit is the quota of one canonical endpoint. An endpoint without its own
// Burst takes the default endpoint's.
type Limit struct {
	Requests int           `json:"requests"`
	Window   time.Duration `json:"window"`
	Burst    int           `json:"burst,omitempty"`
}

// DefaultLimits returns a fresh copy of the built-in table.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		"/api/auth/login":          {Requests: 5, Window: time.Minute, Burst: 3},
		"/api/auth/request-reset":  {Requests: 3, Window: 5 * time.Minute, Burst: 2},
		"/api/auth/verify-reset":   {Requests: 5, Window: 5 * time.Minute},
		"/api/auth/reset-password": {Requests: 3, Window: 5 * time.Minute},
		"/api/mcp/files/write":     {Requests: 30, Window: time.Minute, Burst: 10},
		"/api/mcp/files/read":      {Requests: 100, Window: time.Minute},
		"/api/mcp/files/tree":      {Requests: 10, Window: time.Minute},
		"/api/mcp/git":             {Requests: 10, Window: time.Minute},
		"/api/analysis":            {Requests: 60, Window: time.Minute},
		"/api/projects":            {Requests: 60, Window: time.Minute},
		DefaultEndpoint:            {Requests: 100, Window: time.Minute, Burst: 20},
	}
}

var authEndpoints = []string{"request-reset", "verify-reset", "reset-password", "login"}

// Canonical groups a request path under the key its quota is tracked by.
func Canonical(path string) string {
	path = strings.TrimRight(path, "/")
	if path == "" {
		return "/"
	}

	switch {
	case strings.HasPrefix(path, "/api/mcp/files"):
		for _, op := range []string{"write", "read", "tree"} {
			if strings.Contains(path, "/files/"+op) {
				return "/api/mcp/files/" + op
			}
		}
		return "/api/mcp/files"
	case strings.HasPrefix(path, "/api/mcp/git"):
		return "/api/mcp/git"
	case strings.HasPrefix(path, "/api/auth/"):
		for _, op := range authEndpoints {
			if strings.Contains(path, op) {
				return "/api/auth/" + op
			}
		}
	}

	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "api" {
		return "/api/" + parts[1]
	}
	return path
}

// Table resolves canonical endpoints to limits: exact key, then the
// longest key that is a prefix, then the default.
type Table struct {
	exact    map[string]Limit
	prefixes []string
	def      Limit
}

// NewTable builds a table from the defaults with overrides applied. Zero
// fields of an override keep the built-in value.
func NewTable(overrides map[string]Limit) *Table {
	limits := DefaultLimits()
	for key, o := range overrides {
		l := limits[key]
		if o.Requests > 0 {
			l.Requests = o.Requests
		}
		if o.Window > 0 {
			l.Window = o.Window
		}
		if o.Burst > 0 {
			l.Burst = o.Burst
		}
		limits[key] = l
	}

	def := limits[DefaultEndpoint]
	delete(limits, DefaultEndpoint)
	if def.Requests <= 0 {
		def.Requests = 100
	}
	if def.Window <= 0 {
		def.Window = time.Minute
	}
	if def.Burst <= 0 {
		def.Burst = DefaultBurst
	}

	prefixes := make([]string, 0, len(limits))
	for key, l := range limits {
		if l.Requests <= 0 || l.Window <= 0 {
			delete(limits, key)
			continue
		}
		if l.Burst <= 0 {
			l.Burst = def.Burst
			limits[key] = l
		}
		prefixes = append(prefixes, key)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})

	return &Table{exact: limits, prefixes: prefixes, def: def}
}

func (t *Table) Lookup(endpoint string) Limit {
	if l, ok := t.exact[endpoint]; ok {
		return l
	}
	for _, p := range t.prefixes {
		if strings.HasPrefix(endpoint, p) {
			return t.exact[p]
		}
	}
	return t.def
}
