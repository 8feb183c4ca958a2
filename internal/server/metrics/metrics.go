// Package metrics exposes gate and log-sink counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authgate"

// Gate stages that can reject a request.
const (
	StageWhitelist  = "whitelist"
	StageThreat     = "threat"
	StageRateLimit  = "ratelimit"
	StageAuthn      = "authn"
	StagePermission = "permission"
)

type Metrics struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rejections *prometheus.CounterVec
	logins     *prometheus.CounterVec
	logWrites  *prometheus.CounterVec
	logDrops   *prometheus.CounterVec
}

// New registers all collectors on a private registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_rejections_total",
			Help:      "Requests rejected by a gate stage.",
		}, []string{"stage", "reason"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		logWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_writes_total",
			Help:      "Event log writes by stream and result.",
		}, []string{"stream", "result"}),
		logDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_dropped_total",
			Help:      "Event log entries dropped because the queue was full or closed.",
		}, []string{"stream"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.duration, m.rejections, m.logins, m.logWrites, m.logDrops,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Run serves /metrics on address until ctx is done.
func (m *Metrics) Run(ctx context.Context, address string, logger logging.Logger) error {
	logger = logger.With("module", "metrics")

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", m.Handler())
	srv := &http.Server{Addr: address, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Stopping metrics server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "Starting metrics server", "address", address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) Rejected(stage, reason string) {
	m.rejections.WithLabelValues(stage, reason).Inc()
}

func (m *Metrics) Login(result string) {
	m.logins.WithLabelValues(result).Inc()
}

// OnWrite and OnDrop make Metrics a sidechannel.Observer.
func (m *Metrics) OnWrite(stream string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.logWrites.WithLabelValues(stream, result).Inc()
}

func (m *Metrics) OnDrop(stream string) {
	m.logDrops.WithLabelValues(stream).Inc()
}
