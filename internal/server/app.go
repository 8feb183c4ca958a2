// Package server wires the gate together: storage backend, credential
// store, log recorders, authority, the request gate and the HTTP,
// metrics and gRPC health listeners. It also handles graceful shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/authgate/internal/clockx"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/archive"
	"github.com/dmitrijs2005/authgate/internal/server/config"
	"github.com/dmitrijs2005/authgate/internal/server/credentials"
	"github.com/dmitrijs2005/authgate/internal/server/health"
	"github.com/dmitrijs2005/authgate/internal/server/httpapi"
	"github.com/dmitrijs2005/authgate/internal/server/metrics"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/ratelimit"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/logs"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authgate/internal/server/services"
	"github.com/dmitrijs2005/authgate/internal/server/sidechannel"
	"github.com/dmitrijs2005/authgate/internal/server/threat"
	"github.com/dmitrijs2005/authgate/internal/server/whitelist"
)

const (
	sweepInterval = time.Minute
	flushTimeout  = 5 * time.Second
	whitelistFile = "ip_whitelist.json"
)

type recorder interface {
	Flush(ctx context.Context) error
	Close()
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   repomanager.RepositoryManager
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
	health  *health.Server
	http    *httpapi.Server

	recorders []recorder
}

func NewApp(c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx := context.Background()
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	clock := clockx.Real()

	repos, whitelistPath, err := openRepositories(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := repos.RunMigrations(ctx); err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	store := credentials.NewStore(repos.Users(), logger)
	if err := store.Load(ctx); err != nil {
		_ = repos.Close()
		return nil, err
	}

	app := &App{
		config:  c,
		logger:  logger.With("module", "app"),
		repos:   repos,
		metrics: metrics.New(),
		health:  health.NewServer(c.HealthAddrGRPC, logger),
	}
	observer := sidechannel.Observers(app.metrics, app.health)

	audit := sidechannel.New[models.AuditEntry](logs.StreamAudit.Name, repos.Audit(), 0, logger, observer)
	threats := sidechannel.New[models.SecurityEvent](logs.StreamThreats.Name, repos.Threats(), 0, logger, observer)
	rateLimits := sidechannel.New[models.RateLimitEvent](logs.StreamRateLimits.Name, repos.RateLimits(), 0, logger, observer)
	ipBlocks := sidechannel.New[models.IPBlockEvent](logs.StreamIPBlocks.Name, repos.IPBlocks(), 0, logger, observer)
	alerts := sidechannel.New[models.Alert](logs.StreamAlerts.Name, repos.Alerts(), 0, logger, observer)
	app.recorders = []recorder{audit, threats, rateLimits, ipBlocks, alerts}

	authority, err := services.NewAuthority(services.Options{
		SecretKey:    []byte(c.SecretKey),
		AccessTTL:    c.AccessTokenValidityDuration,
		RefreshTTL:   c.RefreshTokenValidityDuration,
		MFACodeTTL:   c.MFACodeValidityDuration,
		ResetCodeTTL: c.ResetCodeValidityDuration,
		BcryptCost:   c.BcryptCost,
		LoginBaseURL: c.LoginBaseURL,
	}, store, audit, repos.Audit(), services.NewLogNotifier(logger), clock, logger)
	if err != nil {
		app.close()
		return nil, err
	}
	if err := authority.SeedMasterAdmin(ctx, c.MasterAdminEmail, c.MasterAdminPassword, c.MasterAdminMFA); err != nil {
		app.close()
		return nil, err
	}

	detector := threat.NewDetector(threat.Options{
		Threshold:     c.ThreatAttackThreshold,
		BlockDuration: c.ThreatBlockDuration,
	}, threats, alerts, clock, logger)

	app.limiter = ratelimit.New(ratelimit.Options{
		Limits:             limitOverrides(c.RateLimits),
		Adaptive:           c.AdaptiveBlocking,
		ViolationThreshold: c.RateLimitViolationThreshold,
		BlockBase:          c.RateLimitBlockBase,
		BlockMax:           c.RateLimitBlockMax,
	}, rateLimits, alerts, clock, logger)

	gate, err := whitelist.NewGate(whitelist.Options{
		Enabled:     c.IPWhitelistEnabled,
		Allowed:     c.AllowedIPs,
		PersistPath: whitelistPath,
	}, ipBlocks, clock, logger)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("ip whitelist: %w", err)
	}

	var uploader archive.Uploader
	if c.ArchiveEnabled {
		client, err := archive.NewS3Client(ctx, archive.S3Options{
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			app.close()
			return nil, err
		}
		uploader = client
	}
	archiver := archive.New(c.S3Bucket, uploader, archive.Sources{
		Threats:    repos.Threats(),
		RateLimits: repos.RateLimits(),
		IPBlocks:   repos.IPBlocks(),
		Alerts:     repos.Alerts(),
	}, clock, logger)

	trusted, err := httpapi.ParseTrustedProxies(c.TrustedProxies)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	app.http = httpapi.NewServer(c.HTTPAddr, httpapi.Deps{
		Authority: authority,
		Monitor:   services.NewMonitor(repos.Threats(), repos.RateLimits(), repos.IPBlocks(), repos.Alerts(), clock),
		Detector:  detector,
		Limiter:   app.limiter,
		Whitelist: gate,
		Archiver:  archiver,
		Metrics:   app.metrics,

		TrustedProxies: trusted,
		Clock:          clock,
		Logger:         logger,
	})

	return app, nil
}

// openRepositories returns the backend and, for the file backend, where
// runtime whitelist additions are kept.
func openRepositories(ctx context.Context, c *config.Config) (repomanager.RepositoryManager, string, error) {
	switch c.StoreBackend {
	case config.BackendPostgres:
		m, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, "", fmt.Errorf("db init error: %w", err)
		}
		return m, "", nil
	default:
		m, err := repomanager.NewFileRepositoryManager(c.DataDir)
		if err != nil {
			return nil, "", err
		}
		return m, filepath.Join(m.Dir(), whitelistFile), nil
	}
}

// limitOverrides converts configured overrides; zero fields keep the built-in
// values.
func limitOverrides(rules map[string]config.RateLimitRule) map[string]ratelimit.Limit {
	if len(rules) == 0 {
		return nil
	}
	out := make(map[string]ratelimit.Limit, len(rules))
	for endpoint, r := range rules {
		out[endpoint] = ratelimit.Limit{Requests: r.Requests, Window: r.Window, Burst: r.Burst}
	}
	return out
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) serve(ctx context.Context, cancelFunc context.CancelFunc, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, "listener failed", "listener", name, "error", err)
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled or a signal arrives, then stops the
// listeners and drains the log recorders.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.serve(ctx, cancelFunc, "http", app.http.Run)
	}()

	if app.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.serve(ctx, cancelFunc, "metrics", func(ctx context.Context) error {
				return app.metrics.Run(ctx, app.config.MetricsAddr, app.logger)
			})
		}()
	}

	if app.config.HealthAddrGRPC != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.serve(ctx, cancelFunc, "grpc_health", app.health.Run)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.limiter.Run(ctx, sweepInterval)
	}()

	wg.Wait()

	app.logger.Info(context.Background(), "Stopping app...")
	app.close()
}

func (app *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	for _, r := range app.recorders {
		if err := r.Flush(ctx); err != nil {
			app.logger.Warn(ctx, "log flush", "error", err)
		}
		r.Close()
	}
	if err := app.repos.Close(); err != nil {
		app.logger.Warn(ctx, "close repositories", "error", err)
	}
}
