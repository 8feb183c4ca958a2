package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/authgate/internal/clockx"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/logs"
)

const (
	topN             = 5
	recentThreats    = 10
	recentViolations = 20
	topPaths         = 20
)

// Monitor builds the security reports from the persisted event streams.
type Monitor struct {
	threats    logs.Repository[models.SecurityEvent]
	rateLimits logs.Repository[models.RateLimitEvent]
	ipBlocks   logs.Repository[models.IPBlockEvent]
	alerts     logs.Repository[models.Alert]
	clock      clockx.Clock
}

func NewMonitor(
	threats logs.Repository[models.SecurityEvent],
	rateLimits logs.Repository[models.RateLimitEvent],
	ipBlocks logs.Repository[models.IPBlockEvent],
	alerts logs.Repository[models.Alert],
	clock clockx.Clock,
) *Monitor {
	return &Monitor{threats: threats, rateLimits: rateLimits, ipBlocks: ipBlocks, alerts: alerts, clock: clock}
}

type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type ThreatSummary struct {
	TotalThreats   int                    `json:"total_threats"`
	Threats24h     int                    `json:"threats_24h"`
	BlockedIPs     int                    `json:"blocked_ips"`
	TopAttackTypes []Count                `json:"top_attack_types"`
	RecentThreats  []models.SecurityEvent `json:"recent_threats"`
}

type RateLimitStatus struct {
	TotalLimited         int                     `json:"total_limited"`
	RecentViolations     []models.RateLimitEvent `json:"recent_violations"`
	BlockedIPs           int                     `json:"blocked_ips"`
	TopViolatedEndpoints []Count                 `json:"top_violated_endpoints"`
}

type PathAttempts struct {
	Path        string    `json:"path"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt"`
}

type BlockedPaths struct {
	TotalAttempts int            `json:"total_attempts"`
	UniquePaths   int            `json:"unique_paths"`
	BlockedPaths  []PathAttempts `json:"blocked_paths"`
}

// LoggedEvent is one entry of the merged security log.
type LoggedEvent struct {
	LogType   string    `json:"log_type"`
	Timestamp time.Time `json:"timestamp"`
	Event     any       `json:"event"`
}

func (m *Monitor) ThreatSummary(ctx context.Context) (*ThreatSummary, error) {
	events, err := m.threats.Tail(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("read threats: %w", err)
	}

	dayAgo := m.clock.Now().Add(-24 * time.Hour)
	types := map[string]int{}
	blocked := map[string]struct{}{}
	s := &ThreatSummary{TotalThreats: len(events)}
	for _, e := range events {
		if e.Timestamp.After(dayAgo) {
			s.Threats24h++
		}
		types[e.Type]++
		if e.Type == models.ThreatBlockedIP {
			blocked[e.IPHash] = struct{}{}
		}
	}
	s.BlockedIPs = len(blocked)
	s.TopAttackTypes = top(types, topN)
	s.RecentThreats = last(events, recentThreats)
	return s, nil
}

func (m *Monitor) RateLimitStatus(ctx context.Context) (*RateLimitStatus, error) {
	events, err := m.rateLimits.Tail(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("read rate limits: %w", err)
	}

	hourAgo := m.clock.Now().Add(-time.Hour)
	endpoints := map[string]int{}
	blocked := map[string]struct{}{}
	var recent []models.RateLimitEvent
	for _, e := range events {
		endpoints[e.Endpoint]++
		if e.Type == models.RateLimitIPBlock {
			blocked[e.IPHash] = struct{}{}
		}
		if e.Timestamp.After(hourAgo) {
			recent = append(recent, e)
		}
	}

	return &RateLimitStatus{
		TotalLimited:         len(events),
		RecentViolations:     last(recent, recentViolations),
		BlockedIPs:           len(blocked),
		TopViolatedEndpoints: top(endpoints, topN),
	}, nil
}

func (m *Monitor) BlockedPaths(ctx context.Context) (*BlockedPaths, error) {
	events, err := m.threats.Tail(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("read threats: %w", err)
	}

	counts := map[string]int{}
	lastSeen := map[string]time.Time{}
	total := 0
	for _, e := range events {
		if e.Type != models.ThreatMaliciousPath {
			continue
		}
		total++
		counts[e.Path]++
		if e.Timestamp.After(lastSeen[e.Path]) {
			lastSeen[e.Path] = e.Timestamp
		}
	}

	paths := make([]PathAttempts, 0, len(counts))
	for _, c := range top(counts, topPaths) {
		paths = append(paths, PathAttempts{Path: c.Key, Attempts: c.Count, LastAttempt: lastSeen[c.Key]})
	}
	return &BlockedPaths{TotalAttempts: total, UniquePaths: len(counts), BlockedPaths: paths}, nil
}

// SecurityLog merges threats, rate-limit events and whitelist blocks,
// newest first.
func (m *Monitor) SecurityLog(ctx context.Context, limit int) ([]LoggedEvent, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	if limit > MaxAuditLimit {
		limit = MaxAuditLimit
	}

	var out []LoggedEvent

	threats, err := m.threats.Tail(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read threats: %w", err)
	}
	for _, e := range threats {
		out = append(out, LoggedEvent{LogType: "threats", Timestamp: e.Timestamp, Event: e})
	}

	limited, err := m.rateLimits.Tail(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read rate limits: %w", err)
	}
	for _, e := range limited {
		out = append(out, LoggedEvent{LogType: "rate_limits", Timestamp: e.Timestamp, Event: e})
	}

	blocks, err := m.ipBlocks.Tail(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read ip blocks: %w", err)
	}
	for _, e := range blocks {
		out = append(out, LoggedEvent{LogType: "ip_blocks", Timestamp: e.Timestamp, Event: e})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Alerts returns up to limit newest alerts, newest first.
func (m *Monitor) Alerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	alerts, err := m.alerts.Tail(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read alerts: %w", err)
	}
	for i, j := 0, len(alerts)-1; i < j; i, j = i+1, j-1 {
		alerts[i], alerts[j] = alerts[j], alerts[i]
	}
	return alerts, nil
}

func top(counts map[string]int, n int) []Count {
	out := make([]Count, 0, len(counts))
	for k, v := range counts {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func last[T any](s []T, n int) []T {
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return append([]T{}, s...)
}
