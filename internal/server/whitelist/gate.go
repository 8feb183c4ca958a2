// Package whitelist restricts selected path prefixes to an allow-list of
// client addresses.
package whitelist

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/authgate/internal/clockx"
	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/filex"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/models"
)

var (
	DefaultProtected = []string{"/api/mcp", "/api/admin"}
	DefaultExempt    = []string{"/api/mcp/public", "/api/mcp/open"}

	loopback = []netip.Prefix{
		netip.MustParsePrefix("127.0.0.0/8"),
		netip.MustParsePrefix("::1/128"),
	}
)

// EventSink receives rejections. It must not block.
type EventSink interface {
	Record(models.IPBlockEvent)
}

// Entry is an address added at runtime.
type Entry struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	AddedBy   string    `json:"added_by"`
	Timestamp time.Time `json:"timestamp"`
}

type Options struct {
	Enabled   bool
	Allowed   []string
	Protected []string
	Exempt    []string
	// PersistPath, when set, is where runtime additions are kept across
	// restarts.
	PersistPath string
}

type Gate struct {
	enabled   bool
	protected []string
	exempt    []string
	persist   string

	clock  clockx.Clock
	logger logging.Logger
	events EventSink

	addMu   sync.Mutex
	mu      sync.RWMutex
	allowed []netip.Prefix
	entries []Entry
}

// NewGate parses the allow-list. Entries may be addresses, CIDR prefixes
// or "localhost".
func NewGate(opts Options, events EventSink, clock clockx.Clock, logger logging.Logger) (*Gate, error) {
	if opts.Protected == nil {
		opts.Protected = DefaultProtected
	}
	if opts.Exempt == nil {
		opts.Exempt = DefaultExempt
	}

	g := &Gate{
		enabled:   opts.Enabled,
		protected: append([]string(nil), opts.Protected...),
		exempt:    append([]string(nil), opts.Exempt...),
		persist:   opts.PersistPath,
		clock:     clock,
		logger:    logger.With("module", "whitelist"),
		events:    events,
		allowed:   append([]netip.Prefix(nil), loopback...),
	}

	var errs []error
	for _, s := range opts.Allowed {
		p, err := ParsePrefix(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		g.allowed = append(g.allowed, p)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if g.persist != "" {
		var stored []Entry
		if _, err := filex.ReadJSON(g.persist, &stored); err != nil {
			return nil, fmt.Errorf("load whitelist: %w", err)
		}
		for _, e := range stored {
			p, err := ParsePrefix(e.IP)
			if err != nil {
				g.logger.Warn(context.Background(), "skipping stored whitelist entry", "error", err)
				continue
			}
			g.allowed = append(g.allowed, p)
			g.entries = append(g.entries, e)
		}
	}

	return g, nil
}

// ParsePrefix accepts "10.0.0.1", "10.0.0.0/8" or "localhost".
func ParsePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if s == "localhost" {
		return loopback[0], nil
	}
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("%w: bad prefix %q", common.ErrorValidation, s)
		}
		return p.Masked(), nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: bad address %q", common.ErrorValidation, s)
	}
	a = a.Unmap()
	return netip.PrefixFrom(a, a.BitLen()), nil
}

func (g *Gate) Enabled() bool { return g.enabled }

// Protects reports whether path is subject to the allow-list.
func (g *Gate) Protects(path string) bool {
	for _, e := range g.exempt {
		if strings.HasPrefix(path, e) {
			return false
		}
	}
	for _, p := range g.protected {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Allowed reports whether ip may reach path. Rejections are recorded.
func (g *Gate) Allowed(ctx context.Context, ip, method, path string) bool {
	if !g.enabled || !g.Protects(path) {
		return true
	}
	if g.contains(ip) {
		return true
	}

	g.logger.Info(ctx, "blocked by ip whitelist", "ip_hash", common.HashIP(ip), "path", path)
	if g.events != nil {
		g.events.Record(models.IPBlockEvent{
			Timestamp: g.clock.Now(),
			IPHash:    common.HashIP(ip),
			Path:      path,
			Method:    method,
		})
	}
	return false
}

func (g *Gate) contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.allowed {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Add admits ip at runtime and persists the addition when configured.
func (g *Gate) Add(ctx context.Context, ip, reason, addedBy string) (Entry, error) {
	p, err := ParsePrefix(ip)
	if err != nil {
		return Entry{}, err
	}

	e := Entry{IP: strings.TrimSpace(ip), Reason: reason, AddedBy: addedBy, Timestamp: g.clock.Now()}

	g.addMu.Lock()
	defer g.addMu.Unlock()

	g.mu.RLock()
	entries := append(append([]Entry(nil), g.entries...), e)
	g.mu.RUnlock()

	if g.persist != "" {
		if err := filex.WriteJSONAtomic(g.persist, entries); err != nil {
			return Entry{}, fmt.Errorf("save whitelist: %w", err)
		}
	}

	g.mu.Lock()
	g.allowed = append(g.allowed, p)
	g.entries = append(g.entries, e)
	g.mu.Unlock()

	g.logger.Info(ctx, "ip added to whitelist", "prefix", p.String(), "added_by", addedBy)
	return e, nil
}

// Entries returns the runtime additions.
func (g *Gate) Entries() []Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Entry(nil), g.entries...)
}
