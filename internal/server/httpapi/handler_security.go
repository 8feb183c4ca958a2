package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/ratelimit"
	"github.com/dmitrijs2005/authgate/internal/server/services"
	"github.com/dmitrijs2005/authgate/internal/server/threat"
)

func (s *Server) securityHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "active",
		"threat_detection": s.detector != nil,
		"rate_limiting":    s.limiter != nil,
		"ip_whitelist":     s.whitelist != nil && s.whitelist.Enabled(),
		"log_archive":      s.archiver.Enabled(),
		"timestamp":        s.clock.Now().UTC(),
	})
}

// requireAdmin writes the error response and reports false when the caller
// is not an admin.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if err := services.RequireAdmin(UserFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return false
	}
	return true
}

func (s *Server) requireMaster(w http.ResponseWriter, r *http.Request) bool {
	if err := services.RequireMaster(UserFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return false
	}
	return true
}

func (s *Server) threatSummary(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	sum, err := s.monitor.ThreatSummary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var stats threat.Stats
	if s.detector != nil {
		stats = s.detector.Stats()
	}
	writeJSON(w, http.StatusOK, struct {
		*services.ThreatSummary
		Detector threat.Stats `json:"detector"`
	}{sum, stats})
}

func (s *Server) rateLimitStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	st, err := s.monitor.RateLimitStatus(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var stats ratelimit.Stats
	if s.limiter != nil {
		stats = s.limiter.Stats()
	}
	writeJSON(w, http.StatusOK, struct {
		*services.RateLimitStatus
		Limiter ratelimit.Stats `json:"limiter"`
	}{st, stats})
}

func (s *Server) blockedPaths(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	bp, err := s.monitor.BlockedPaths(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bp)
}

func (s *Server) securityLog(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	events, err := s.monitor.SecurityLog(r.Context(), queryLimit(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": events, "total": len(events)})
}

func (s *Server) alerts(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	alerts, err := s.monitor.Alerts(r.Context(), queryLimit(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "total": len(alerts)})
}

func (s *Server) whitelistEntries(w http.ResponseWriter, r *http.Request) {
	if !s.requireMaster(w, r) {
		return
	}
	if s.whitelist == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false, "entries": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": s.whitelist.Enabled(), "entries": s.whitelist.Entries()})
}

type whitelistAddRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason"`
}

func (s *Server) whitelistAdd(w http.ResponseWriter, r *http.Request) {
	if !s.requireMaster(w, r) {
		return
	}
	if s.whitelist == nil {
		writeDetail(w, http.StatusServiceUnavailable, "IP whitelist is not configured")
		return
	}

	var req whitelistAddRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	actor := UserFrom(r.Context())
	entry, err := s.whitelist.Add(r.Context(), req.IP, req.Reason, actor.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.auth.Audit(models.AuditWhitelistIPAdded, map[string]any{
		"ip":       entry.IP,
		"reason":   entry.Reason,
		"added_by": actor.Email,
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "IP added to whitelist", "entry": entry})
}

func (s *Server) archiveLogs(w http.ResponseWriter, r *http.Request) {
	if !s.requireMaster(w, r) {
		return
	}

	actor := UserFrom(r.Context())
	res, err := s.archiver.Archive(r.Context(), actor.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.auth.Audit(models.AuditLogsArchived, map[string]any{
		"bucket":      res.Bucket,
		"key":         res.Key,
		"counts":      res.Counts,
		"archived_by": actor.Email,
	})
	writeJSON(w, http.StatusOK, res)
}
