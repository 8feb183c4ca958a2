package models

import "time"

// Audit event types.
const (
	AuditLoginSuccess           = "login_success"
	AuditLoginFailed            = "login_failed"
	AuditMFACodeIssued          = "mfa_code_issued"
	AuditTempUserCreated        = "temp_user_created"
	AuditUserUpdated            = "user_updated"
	AuditUserDeactivated        = "user_deactivated"
	AuditMasterAdminSeeded      = "master_admin_seeded"
	AuditPasswordResetRequested = "password_reset_requested"
	AuditPasswordResetCompleted = "password_reset_completed"
	AuditWhitelistIPAdded       = "whitelist_ip_added"
	AuditLogsArchived           = "logs_archived"
)

// Security event types emitted by the threat detector.
const (
	ThreatMaliciousPath = "malicious_path"
	ThreatBadUserAgent  = "blocked_user_agent"
	ThreatSQLInjection  = "sql_injection"
	ThreatXSS           = "xss_attempt"
	ThreatBlockedIP     = "blocked_ip"
)

// Rate-limit event types.
const (
	RateLimitExceeded = "rate_limit"
	RateLimitBurst    = "burst_limit"
	RateLimitIPBlock  = "ip_blocked"
)

// AuditEntry records an identity or account-administration event.
type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	Details   map[string]any `json:"details,omitempty"`
}

// SecurityEvent records one threat detection.
type SecurityEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	IPHash    string    `json:"ip_hash"`
	Path      string    `json:"path"`
	Method    string    `json:"method,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// RateLimitEvent records one limiter violation or block.
type RateLimitEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	IPHash     string    `json:"ip_hash"`
	Endpoint   string    `json:"endpoint"`
	Violations int       `json:"violations"`
	RetryAfter int       `json:"retry_after,omitempty"`
}

// IPBlockEvent records a whitelist rejection.
type IPBlockEvent struct {
	Timestamp time.Time `json:"timestamp"`
	IPHash    string    `json:"ip_hash"`
	Path      string    `json:"path"`
	Method    string    `json:"method,omitempty"`
}

// Alert severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// Alert is raised when an IP crosses a blocking threshold.
type Alert struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Severity  string    `json:"severity"`
	IPHash    string    `json:"ip_hash"`
	Message   string    `json:"message"`
	Until     time.Time `json:"until"`
}
