// Package httpapi is the HTTP surface of the gate: the ordered gate
// middleware, token authentication, permission checks, the auth and
// security routes, and the collaborator mount under /api/.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/dmitrijs2005/authgate/internal/clockx"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/archive"
	"github.com/dmitrijs2005/authgate/internal/server/metrics"
	"github.com/dmitrijs2005/authgate/internal/server/permissions"
	"github.com/dmitrijs2005/authgate/internal/server/ratelimit"
	"github.com/dmitrijs2005/authgate/internal/server/services"
	"github.com/dmitrijs2005/authgate/internal/server/threat"
	"github.com/dmitrijs2005/authgate/internal/server/whitelist"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

// Deps are the collaborators of the HTTP layer. Collaborator, Archiver,
// Metrics, Paths and TrustedProxies are optional.
type Deps struct {
	Authority *services.Authority
	Monitor   *services.Monitor
	Detector  *threat.Detector
	Limiter   *ratelimit.Limiter
	Whitelist *whitelist.Gate
	Archiver  *archive.Archiver
	Metrics   *metrics.Metrics
	Paths     *permissions.PathTable

	// Collaborator serves everything under /api/ that is not an auth or
	// security route.
	Collaborator   http.Handler
	TrustedProxies []netip.Prefix

	Clock  clockx.Clock
	Logger logging.Logger
}

type Server struct {
	address string

	auth      *services.Authority
	monitor   *services.Monitor
	detector  *threat.Detector
	limiter   *ratelimit.Limiter
	whitelist *whitelist.Gate
	archiver  *archive.Archiver
	metrics   *metrics.Metrics
	paths     *permissions.PathTable
	collab    http.Handler
	ips       ipResolver
	clock     clockx.Clock
	logger    logging.Logger

	handler http.Handler
}

func NewServer(address string, d Deps) *Server {
	s := &Server{
		address:   address,
		auth:      d.Authority,
		monitor:   d.Monitor,
		detector:  d.Detector,
		limiter:   d.Limiter,
		whitelist: d.Whitelist,
		archiver:  d.Archiver,
		metrics:   d.Metrics,
		paths:     d.Paths,
		collab:    d.Collaborator,
		ips:       ipResolver{trusted: d.TrustedProxies},
		clock:     d.Clock,
		logger:    d.Logger.With("module", "http_server"),
	}

	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.paths == nil {
		s.paths = permissions.NewPathTable(permissions.DefaultPathRules())
	}
	if s.collab == nil {
		s.collab = http.HandlerFunc(notFound)
	}
	if s.ips.trusted == nil {
		s.ips.trusted = DefaultTrustedProxies()
	}
	if s.clock == nil {
		s.clock = clockx.Real()
	}

	s.handler = s.router()
	return s
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeDetail(w, http.StatusNotFound, "Not found")
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(securityHeaders)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.whitelistGate)
	r.Use(s.threatGate)
	r.Use(s.rateLimitGate)

	for _, rt := range s.routes() {
		r.With(s.guard(rt.Access)...).Method(rt.Method, rt.Pattern, rt.Handler)
	}

	r.With(s.guard(AccessToken)...).Handle("/api/*", s.collab)

	authed := chi.Chain(s.guard(AccessToken)...)
	r.NotFound(authed.HandlerFunc(notFound).ServeHTTP)
	r.MethodNotAllowed(authed.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
	}).ServeHTTP)

	return r
}

// guard returns the per-route middleware for access.
func (s *Server) guard(access Access) []func(http.Handler) http.Handler {
	if access == AccessPublic {
		return nil
	}
	return []func(http.Handler) http.Handler{s.authenticate(access), s.authorize}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
