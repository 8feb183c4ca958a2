// Package threat inspects incoming requests for exploit probes, scanner
// user agents and injection payloads, and keeps a per-IP attack counter
// that escalates to a temporary block.
package threat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/dmitrijs2005/authgate/internal/clockx"
	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/models"
)

const (
	DefaultThreshold     = 5
	DefaultBlockDuration = time.Hour

	matchTimeout = 50 * time.Millisecond
)

// EventSink receives security events. It must not block.
type EventSink interface {
	Record(models.SecurityEvent)
}

// AlertSink receives block alerts. It must not block.
type AlertSink interface {
	Record(models.Alert)
}

// Request is the part of an HTTP request the detector looks at.
type Request struct {
	IP        string
	Method    string
	Path      string
	RawQuery  string
	UserAgent string
}

// Verdict is the outcome of Inspect. A zero Verdict lets the request pass.
type Verdict struct {
	Rejected bool
	Status   int
	Type     string
	Detail   string
}

type Options struct {
	Threshold     int
	BlockDuration time.Duration
}

type ipRecord struct {
	attacks      int
	blockedUntil time.Time
}

// Stats is a point-in-time view of the detector.
type Stats struct {
	Detections int            `json:"detections"`
	ByType     map[string]int `json:"by_type"`
	TrackedIPs int            `json:"tracked_ips"`
	BlockedIPs int            `json:"blocked_ips"`
}

type Detector struct {
	paths []*regexp2.Regexp
	sqli  []*regexp.Regexp
	xss   []*regexp.Regexp

	threshold     int
	blockDuration time.Duration

	clock  clockx.Clock
	logger logging.Logger
	events EventSink
	alerts AlertSink

	mu     sync.Mutex
	ips    map[string]*ipRecord
	byType map[string]int
	total  int
}

func NewDetector(opts Options, events EventSink, alerts AlertSink, clock clockx.Clock, logger logging.Logger) *Detector {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.BlockDuration <= 0 {
		opts.BlockDuration = DefaultBlockDuration
	}

	paths := compilePaths(blockedPaths)
	for _, re := range paths {
		re.MatchTimeout = matchTimeout
	}

	return &Detector{
		paths:         paths,
		sqli:          compileQuery(sqlInjection),
		xss:           compileQuery(crossSiteScripting),
		threshold:     opts.Threshold,
		blockDuration: opts.BlockDuration,
		clock:         clock,
		logger:        logger.With("module", "threat"),
		events:        events,
		alerts:        alerts,
		ips:           map[string]*ipRecord{},
		byType:        map[string]int{},
	}
}

// Inspect runs the checks in order: active block, probe path, user agent,
// SQL injection, XSS. The first hit decides the verdict.
func (d *Detector) Inspect(ctx context.Context, r Request) Verdict {
	if until, ok := d.blocked(r.IP); ok {
		d.record(r, models.ThreatBlockedIP, "blocked until "+until.UTC().Format(time.RFC3339))
		return Verdict{
			Rejected: true,
			Status:   http.StatusForbidden,
			Type:     models.ThreatBlockedIP,
			Detail:   "Access denied - Your IP has been temporarily blocked",
		}
	}

	if d.MaliciousPath(r.Path) {
		d.attack(ctx, r, models.ThreatMaliciousPath, r.UserAgent)
		return Verdict{Rejected: true, Status: http.StatusNotFound, Type: models.ThreatMaliciousPath, Detail: "Not found"}
	}

	ua := strings.ToLower(r.UserAgent)
	if SuspiciousAgent(ua) {
		d.attack(ctx, r, models.ThreatBadUserAgent, ua)
		return Verdict{
			Rejected: true,
			Status:   http.StatusForbidden,
			Type:     models.ThreatBadUserAgent,
			Detail:   "Access denied - Suspicious client detected",
		}
	}

	if r.RawQuery != "" {
		candidates := queryCandidates(r.RawQuery)
		if matchAny(d.sqli, candidates) {
			d.attack(ctx, r, models.ThreatSQLInjection, r.RawQuery)
			return Verdict{Rejected: true, Status: http.StatusBadRequest, Type: models.ThreatSQLInjection, Detail: "Bad request"}
		}
		if matchAny(d.xss, candidates) {
			d.attack(ctx, r, models.ThreatXSS, r.RawQuery)
			return Verdict{Rejected: true, Status: http.StatusBadRequest, Type: models.ThreatXSS, Detail: "Bad request"}
		}
	}

	return Verdict{}
}

// MaliciousPath reports whether path matches a probe pattern. A pattern
// that times out counts as a match.
func (d *Detector) MaliciousPath(path string) bool {
	for _, re := range d.paths {
		ok, err := re.MatchString(path)
		if err != nil || ok {
			return true
		}
	}
	return false
}

// SuspiciousAgent reports whether a lowercased user agent is blocked.
func SuspiciousAgent(ua string) bool {
	for _, a := range allowedAgents {
		if strings.Contains(ua, a) {
			return false
		}
	}
	for _, b := range blockedAgents {
		if strings.Contains(ua, b) {
			return true
		}
	}
	return ua == "" || ua == "-"
}

func queryCandidates(raw string) []string {
	out := []string{raw}
	if decoded, err := url.QueryUnescape(raw); err == nil && decoded != raw {
		out = append(out, decoded)
	}
	return out
}

func matchAny(res []*regexp.Regexp, inputs []string) bool {
	for _, in := range inputs {
		for _, re := range res {
			if re.MatchString(in) {
				return true
			}
		}
	}
	return false
}

// blocked reports an active block. An expired block is removed together
// with the attack counter.
func (d *Detector) blocked(ip string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.ips[ip]
	if !ok || rec.blockedUntil.IsZero() {
		return time.Time{}, false
	}
	if d.clock.Now().Before(rec.blockedUntil) {
		return rec.blockedUntil, true
	}
	delete(d.ips, ip)
	return time.Time{}, false
}

func (d *Detector) attack(ctx context.Context, r Request, kind, detail string) {
	now := d.clock.Now()

	d.mu.Lock()
	rec, ok := d.ips[r.IP]
	if !ok {
		rec = &ipRecord{}
		d.ips[r.IP] = rec
	}
	rec.attacks++
	attacks := rec.attacks
	var until time.Time
	if attacks >= d.threshold && rec.blockedUntil.IsZero() {
		rec.blockedUntil = now.Add(d.blockDuration)
		until = rec.blockedUntil
	}
	d.mu.Unlock()

	d.record(r, kind, detail)

	if !until.IsZero() {
		hash := common.HashIP(r.IP)
		d.logger.Warn(ctx, "ip blocked", "ip_hash", hash, "attacks", attacks, "last_type", kind)
		if d.alerts != nil {
			d.alerts.Record(models.Alert{
				Timestamp: now,
				Source:    "threat",
				Severity:  models.SeverityHigh,
				IPHash:    hash,
				Message:   fmt.Sprintf("blocked after %d attack attempts, last %s on %s", attacks, kind, r.Path),
				Until:     until,
			})
		}
	}
}

func (d *Detector) record(r Request, kind, detail string) {
	d.mu.Lock()
	d.total++
	d.byType[kind]++
	d.mu.Unlock()

	if d.events == nil {
		return
	}
	d.events.Record(models.SecurityEvent{
		Timestamp: d.clock.Now(),
		Type:      kind,
		IPHash:    common.HashIP(r.IP),
		Path:      r.Path,
		Method:    r.Method,
		Details:   detail,
	})
}

func (d *Detector) Stats() Stats {
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	s := Stats{Detections: d.total, ByType: make(map[string]int, len(d.byType)), TrackedIPs: len(d.ips)}
	for k, v := range d.byType {
		s.ByType[k] = v
	}
	for _, rec := range d.ips {
		if now.Before(rec.blockedUntil) {
			s.BlockedIPs++
		}
	}
	return s
}
