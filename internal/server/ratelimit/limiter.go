// Package ratelimit enforces per-endpoint, per-IP sliding-window quotas with
// a short burst cap, and escalates repeat offenders to a temporary block.
package ratelimit

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/authgate/internal/clockx"
	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/models"
)

const (
	shardCount = 64

	DefaultViolationThreshold = 5
	DefaultBlockBase          = 5 * time.Minute
	DefaultBlockMax           = time.Hour
)

// EventSink receives violation events. It must not block.
type EventSink interface {
	Record(models.RateLimitEvent)
}

// AlertSink receives block alerts. It must not block.
type AlertSink interface {
	Record(models.Alert)
}

type Options struct {
	Limits             map[string]Limit
	Adaptive           bool
	ViolationThreshold int
	BlockBase          time.Duration
	BlockMax           time.Duration
}

// Decision is the outcome of Check. Limit, Remaining and Reset are set for
// allowed requests; RetryAfter is set for rejected ones.
type Decision struct {
	Allowed    bool
	Endpoint   string
	Reason     string
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter int
}

type window struct {
	ip     string
	stamps []time.Time
}

type windowShard struct {
	mu      sync.Mutex
	windows map[string]*window
}

type ipState struct {
	violations    int
	lastViolation time.Time
	blockedUntil  time.Time
}

type ipShard struct {
	mu  sync.Mutex
	ips map[string]*ipState
}

// Stats is a point-in-time view of the limiter.
type Stats struct {
	TotalRequests   int64 `json:"total_requests"`
	BlockedRequests int64 `json:"blocked_requests"`
	LimitedRequests int64 `json:"rate_limited_requests"`
	UniqueIPs       int   `json:"unique_ips"`
	BlockedIPs      int   `json:"currently_blocked_ips"`
	ActiveEndpoints int   `json:"active_endpoints"`
}

type Limiter struct {
	table     *Table
	retain    time.Duration
	adaptive  bool
	threshold int
	blockBase time.Duration
	blockMax  time.Duration

	clock  clockx.Clock
	logger logging.Logger
	events EventSink
	alerts AlertSink

	windows [shardCount]windowShard
	ips     [shardCount]ipShard

	total   atomic.Int64
	blocked atomic.Int64
	limited atomic.Int64
}

func New(opts Options, events EventSink, alerts AlertSink, clock clockx.Clock, logger logging.Logger) *Limiter {
	if opts.ViolationThreshold <= 0 {
		opts.ViolationThreshold = DefaultViolationThreshold
	}
	if opts.BlockBase <= 0 {
		opts.BlockBase = DefaultBlockBase
	}
	if opts.BlockMax <= 0 {
		opts.BlockMax = DefaultBlockMax
	}

	l := &Limiter{
		table:     NewTable(opts.Limits),
		adaptive:  opts.Adaptive,
		threshold: opts.ViolationThreshold,
		blockBase: opts.BlockBase,
		blockMax:  opts.BlockMax,
		clock:     clock,
		logger:    logger.With("module", "ratelimit"),
		events:    events,
		alerts:    alerts,
	}
	l.retain = l.longestWindow()
	for i := range l.windows {
		l.windows[i].windows = map[string]*window{}
		l.ips[i].ips = map[string]*ipState{}
	}
	return l
}

func shardOf(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

// Check decides whether a request from ip to path may proceed and records
// it when it does. Check and record happen under one lock per key.
func (l *Limiter) Check(ctx context.Context, ip, path string) Decision {
	l.total.Add(1)

	endpoint := Canonical(path)
	limit := l.table.Lookup(endpoint)
	now := l.clock.Now()

	if remaining, ok := l.blockedFor(ip, now); ok {
		l.blocked.Add(1)
		l.record(ip, endpoint, models.RateLimitIPBlock, l.violations(ip), remaining)
		return Decision{Endpoint: endpoint, Reason: models.RateLimitIPBlock, RetryAfter: remaining}
	}

	d := l.take(ip, endpoint, limit, now)
	if d.Allowed {
		return d
	}

	l.limited.Add(1)
	l.violation(ctx, ip, endpoint, d.Reason, d.RetryAfter, now)
	return d
}

func (l *Limiter) blockedFor(ip string, now time.Time) (int, bool) {
	s := &l.ips[shardOf(ip)]
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.ips[ip]
	if !ok || st.blockedUntil.IsZero() {
		return 0, false
	}
	if now.Before(st.blockedUntil) {
		return ceilSeconds(st.blockedUntil.Sub(now)), true
	}
	delete(s.ips, ip)
	return 0, false
}

func (l *Limiter) take(ip, endpoint string, limit Limit, now time.Time) Decision {
	key := endpoint + "|" + ip
	s := &l.windows[shardOf(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &window{ip: ip}
		s.windows[key] = w
	}

	keep := limit.Window
	if keep < BurstWindow {
		keep = BurstWindow
	}
	w.stamps = prune(w.stamps, now.Add(-keep))

	if limit.Burst > 0 {
		inBurst := since(w.stamps, now.Add(-BurstWindow))
		if len(inBurst) >= limit.Burst {
			return Decision{
				Endpoint:   endpoint,
				Reason:     models.RateLimitBurst,
				Limit:      limit.Requests,
				RetryAfter: clamp(ceilSeconds(inBurst[0].Add(BurstWindow).Sub(now)), BurstWindow),
			}
		}
	}

	inWindow := since(w.stamps, now.Add(-limit.Window))
	if len(inWindow) >= limit.Requests {
		return Decision{
			Endpoint:   endpoint,
			Reason:     models.RateLimitExceeded,
			Limit:      limit.Requests,
			RetryAfter: clamp(ceilSeconds(inWindow[0].Add(limit.Window).Sub(now)), limit.Window),
		}
	}

	w.stamps = append(w.stamps, now)
	oldest := now
	if len(inWindow) > 0 {
		oldest = inWindow[0]
	}
	return Decision{
		Allowed:   true,
		Endpoint:  endpoint,
		Limit:     limit.Requests,
		Remaining: limit.Requests - len(inWindow) - 1,
		Reset:     oldest.Add(limit.Window),
	}
}

func (l *Limiter) violation(ctx context.Context, ip, endpoint, reason string, retryAfter int, now time.Time) {
	s := &l.ips[shardOf(ip)]
	s.mu.Lock()
	st, ok := s.ips[ip]
	if !ok {
		st = &ipState{}
		s.ips[ip] = st
	}
	// a count idle for longer than any window starts over
	if !st.lastViolation.IsZero() && !st.lastViolation.After(now.Add(-l.retain)) {
		st.violations = 0
	}
	st.violations++
	st.lastViolation = now
	violations := st.violations
	var until time.Time
	if l.adaptive && violations >= l.threshold {
		d := time.Duration(violations) * l.blockBase
		if d > l.blockMax {
			d = l.blockMax
		}
		st.blockedUntil = now.Add(d)
		until = st.blockedUntil
	}
	s.mu.Unlock()

	l.record(ip, endpoint, reason, violations, retryAfter)

	if until.IsZero() {
		return
	}
	hash := common.HashIP(ip)
	l.logger.Warn(ctx, "ip blocked", "ip_hash", hash, "violations", violations, "until", until)
	if l.alerts != nil {
		l.alerts.Record(models.Alert{
			Timestamp: now,
			Source:    "ratelimit",
			Severity:  models.SeverityMedium,
			IPHash:    hash,
			Message:   fmt.Sprintf("blocked after %d violations, last %s on %s", violations, reason, endpoint),
			Until:     until,
		})
	}
}

func (l *Limiter) violations(ip string) int {
	s := &l.ips[shardOf(ip)]
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.ips[ip]; ok {
		return st.violations
	}
	return 0
}

func (l *Limiter) record(ip, endpoint, kind string, violations, retryAfter int) {
	if l.events == nil {
		return
	}
	l.events.Record(models.RateLimitEvent{
		Timestamp:  l.clock.Now(),
		Type:       kind,
		IPHash:     common.HashIP(ip),
		Endpoint:   endpoint,
		Violations: violations,
		RetryAfter: retryAfter,
	})
}

// Sweep drops windows with no timestamp newer than the longest tracked
// window, expired blocks, and unblocked violation counts idle for as long.
func (l *Limiter) Sweep() {
	now := l.clock.Now()
	horizon := now.Add(-l.retain)

	for i := range l.windows {
		s := &l.windows[i]
		s.mu.Lock()
		for key, w := range s.windows {
			if len(w.stamps) == 0 || !w.stamps[len(w.stamps)-1].After(horizon) {
				delete(s.windows, key)
			}
		}
		s.mu.Unlock()
	}

	for i := range l.ips {
		s := &l.ips[i]
		s.mu.Lock()
		for ip, st := range s.ips {
			switch {
			case !st.blockedUntil.IsZero():
				if !now.Before(st.blockedUntil) {
					delete(s.ips, ip)
				}
			case !st.lastViolation.After(horizon):
				delete(s.ips, ip)
			}
		}
		s.mu.Unlock()
	}
}

// Run sweeps every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}

func (l *Limiter) longestWindow() time.Duration {
	longest := l.table.def.Window
	for _, lim := range l.table.exact {
		if lim.Window > longest {
			longest = lim.Window
		}
	}
	if longest < BurstWindow {
		longest = BurstWindow
	}
	return longest
}

func (l *Limiter) Stats() Stats {
	now := l.clock.Now()
	st := Stats{
		TotalRequests:   l.total.Load(),
		BlockedRequests: l.blocked.Load(),
		LimitedRequests: l.limited.Load(),
	}

	ips := map[string]struct{}{}
	endpoints := map[string]struct{}{}
	for i := range l.windows {
		s := &l.windows[i]
		s.mu.Lock()
		for key, w := range s.windows {
			if len(w.stamps) == 0 {
				continue
			}
			ips[w.ip] = struct{}{}
			endpoints[key[:len(key)-len(w.ip)-1]] = struct{}{}
		}
		s.mu.Unlock()
	}
	st.UniqueIPs = len(ips)
	st.ActiveEndpoints = len(endpoints)

	for i := range l.ips {
		s := &l.ips[i]
		s.mu.Lock()
		for _, ipst := range s.ips {
			if now.Before(ipst.blockedUntil) {
				st.BlockedIPs++
			}
		}
		s.mu.Unlock()
	}
	return st
}

// prune drops stamps at or before cutoff. stamps is ordered.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}

func since(stamps []time.Time, cutoff time.Time) []time.Time {
	for i, t := range stamps {
		if t.After(cutoff) {
			return stamps[i:]
		}
	}
	return nil
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

func clamp(secs int, w time.Duration) int {
	upper := ceilSeconds(w)
	if secs < 1 {
		return 1
	}
	if secs > upper {
		return upper
	}
	return secs
}
