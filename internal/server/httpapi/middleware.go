package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/server/metrics"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/permissions"
	"github.com/dmitrijs2005/authgate/internal/server/threat"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const (
	clientIPKey ctxKey = "clientIP"
	userKey     ctxKey = "user"
	tokenKey    ctxKey = "token"
)

// ClientIP returns the address resolved for the request.
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// UserFrom returns the authenticated user, or nil on public routes.
func UserFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

func tokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

var hardeningHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "1; mode=block",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Content-Security-Policy":   "default-src 'self'; frame-ancestors 'none'",
	"Permissions-Policy":        "geolocation=(), microphone=(), camera=()",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Server":                    "authgate",
}

// securityHeaders is set before the handler runs so that rejections carry
// the headers too.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for k, v := range hardeningHeaders {
			h.Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := context.WithValue(r.Context(), clientIPKey, s.ips.clientIP(r))
		r = r.WithContext(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(r.Method, status, elapsed)
		s.logger.Info(ctx, "request",
			"request_id", middleware.GetReqID(ctx),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", elapsed.Milliseconds(),
			"ip_hash", common.HashIP(ClientIP(ctx)),
		)
	})
}

func (s *Server) whitelistGate(next http.Handler) http.Handler {
	if s.whitelist == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.whitelist.Allowed(r.Context(), ClientIP(r.Context()), r.Method, r.URL.Path) {
			s.metrics.Rejected(metrics.StageWhitelist, "ip_not_whitelisted")
			writeDetail(w, http.StatusForbidden, "Access denied - IP not whitelisted")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) threatGate(next http.Handler) http.Handler {
	if s.detector == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := s.detector.Inspect(r.Context(), threat.Request{
			IP:        ClientIP(r.Context()),
			Method:    r.Method,
			Path:      r.URL.Path,
			RawQuery:  r.URL.RawQuery,
			UserAgent: r.UserAgent(),
		})
		if v.Rejected {
			s.metrics.Rejected(metrics.StageThreat, v.Type)
			writeDetail(w, v.Status, v.Detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitGate(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := s.limiter.Check(r.Context(), ClientIP(r.Context()), r.URL.Path)
		h := w.Header()

		if !d.Allowed {
			s.metrics.Rejected(metrics.StageRateLimit, d.Reason)
			h.Set("Retry-After", strconv.Itoa(d.RetryAfter))
			if d.Limit > 0 {
				h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			}
			h.Set("X-RateLimit-Remaining", "0")
			h.Set("X-RateLimit-Reset", strconv.FormatInt(s.clock.Now().Add(time.Duration(d.RetryAfter)*time.Second).Unix(), 10))

			detail := "Rate limit exceeded. Try again in " + strconv.Itoa(d.RetryAfter) + " seconds"
			if d.Reason == models.RateLimitIPBlock {
				detail = "IP temporarily blocked due to repeated violations. Try again in " + strconv.Itoa(d.RetryAfter) + " seconds"
			}
			writeDetail(w, http.StatusTooManyRequests, detail)
			return
		}

		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get(common.AuthorizationHeaderName)
	if len(h) < len(common.BearerPrefix) || !strings.EqualFold(h[:len(common.BearerPrefix)], common.BearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(common.BearerPrefix):])
	return tok, tok != ""
}

// authenticate verifies the bearer token of the kind access demands and
// stores the user in the request context.
func (s *Server) authenticate(access Access) func(http.Handler) http.Handler {
	kind := common.TokenKindAccess
	if access == AccessRefresh {
		kind = common.TokenKindRefresh
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := bearerToken(r)
			if !ok {
				s.metrics.Rejected(metrics.StageAuthn, "missing_token")
				unauthorized(w, "Not authenticated")
				return
			}

			u, err := s.auth.VerifyToken(r.Context(), tok, kind)
			if err != nil {
				s.metrics.Rejected(metrics.StageAuthn, "invalid_token")
				s.writeError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, u)
			ctx = context.WithValue(ctx, tokenKey, tok)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authorize applies the path permission table to the authenticated user.
func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFrom(r.Context())
		if u == nil {
			unauthorized(w, "Not authenticated")
			return
		}
		if !s.paths.Allowed(permissions.Resolve(u), r.URL.Path) {
			s.metrics.Rejected(metrics.StagePermission, "insufficient_permissions")
			writeDetail(w, http.StatusForbidden, "Insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}
