// Package logs stores the append-only, size-capped event streams: the auth
// audit trail, threat detections, rate-limit violations, whitelist blocks
// and alerts. When a stream exceeds its cap the oldest entries are dropped.
package logs

import "context"

// Stream names a log and its retention.
type Stream struct {
	Name string
	File string
	Cap  int
}

var (
	StreamAudit      = Stream{Name: "audit", File: "auth_audit.json", Cap: 10000}
	StreamThreats    = Stream{Name: "security_threats", File: "security_threats.json", Cap: 10000}
	StreamRateLimits = Stream{Name: "rate_limits", File: "rate_limits.json", Cap: 5000}
	StreamIPBlocks   = Stream{Name: "ip_blocks", File: "ip_blocks.json", Cap: 1000}
	StreamAlerts     = Stream{Name: "alerts", File: "alerts.json", Cap: 1000}
)

// Streams lists every stream, in archive order.
func Streams() []Stream {
	return []Stream{StreamAudit, StreamThreats, StreamRateLimits, StreamIPBlocks, StreamAlerts}
}

type Repository[T any] interface {
	// Append adds entry at the end of the stream and enforces the cap.
	Append(ctx context.Context, entry T) error
	// Tail returns up to limit newest entries, oldest first. limit <= 0 means all.
	Tail(ctx context.Context, limit int) ([]T, error)
}

func capSlice[T any](entries []T, limit int) []T {
	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}
