package httpapi

import "net/http"

// Access says which credential a route demands.
type Access int

const (
	// AccessToken requires a bearer access token. It is the zero value so
	// that a route without an explicit tag is protected.
	AccessToken Access = iota
	// AccessPublic skips authentication and the permission gate.
	AccessPublic
	// AccessRefresh requires a bearer refresh token.
	AccessRefresh
)

type Route struct {
	Method  string
	Pattern string
	Access  Access
	Handler http.HandlerFunc
}

func (s *Server) routes() []Route {
	return []Route{
		{Method: http.MethodGet, Pattern: "/", Access: AccessPublic, Handler: s.liveness},
		{Method: http.MethodGet, Pattern: "/health", Access: AccessPublic, Handler: s.liveness},
		{Method: http.MethodGet, Pattern: "/api/health", Access: AccessPublic, Handler: s.liveness},

		{Method: http.MethodGet, Pattern: "/api/auth/health", Access: AccessPublic, Handler: s.authHealth},
		{Method: http.MethodPost, Pattern: "/api/auth/login", Access: AccessPublic, Handler: s.login},
		{Method: http.MethodPost, Pattern: "/api/auth/request-reset", Access: AccessPublic, Handler: s.requestReset},
		{Method: http.MethodPost, Pattern: "/api/auth/verify-reset", Access: AccessPublic, Handler: s.verifyReset},
		{Method: http.MethodPost, Pattern: "/api/auth/reset-password", Access: AccessPublic, Handler: s.resetPassword},
		{Method: http.MethodPost, Pattern: "/api/auth/refresh", Access: AccessRefresh, Handler: s.refresh},

		{Method: http.MethodGet, Pattern: "/api/auth/me", Handler: s.me},
		{Method: http.MethodPost, Pattern: "/api/auth/verify-token", Handler: s.verifyToken},
		{Method: http.MethodPost, Pattern: "/api/auth/logout", Handler: s.logout},
		{Method: http.MethodPost, Pattern: "/api/auth/create-temp-user", Handler: s.createTempUser},
		{Method: http.MethodGet, Pattern: "/api/auth/users", Handler: s.listUsers},
		{Method: http.MethodPut, Pattern: "/api/auth/users/{email}", Handler: s.updateUser},
		{Method: http.MethodDelete, Pattern: "/api/auth/users/{email}", Handler: s.deactivateUser},
		{Method: http.MethodGet, Pattern: "/api/auth/users/{email}/permissions", Handler: s.userPermissions},
		{Method: http.MethodGet, Pattern: "/api/auth/audit-logs", Handler: s.auditLogs},

		{Method: http.MethodGet, Pattern: "/api/security/health", Access: AccessPublic, Handler: s.securityHealth},
		{Method: http.MethodGet, Pattern: "/api/security/threats/summary", Handler: s.threatSummary},
		{Method: http.MethodGet, Pattern: "/api/security/rate-limits/status", Handler: s.rateLimitStatus},
		{Method: http.MethodGet, Pattern: "/api/security/blocked-paths", Handler: s.blockedPaths},
		{Method: http.MethodGet, Pattern: "/api/security/audit-log", Handler: s.securityLog},
		{Method: http.MethodGet, Pattern: "/api/security/alerts", Handler: s.alerts},
		{Method: http.MethodGet, Pattern: "/api/security/whitelist", Handler: s.whitelistEntries},
		{Method: http.MethodPost, Pattern: "/api/security/whitelist/add", Handler: s.whitelistAdd},
		{Method: http.MethodPost, Pattern: "/api/security/logs/archive", Handler: s.archiveLogs},
	}
}
