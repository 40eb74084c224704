package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/sessionguard/config"
	"github.com/target/sessionguard/internal/adapters/auditpost"
	"github.com/target/sessionguard/internal/adapters/legacycookie"
	redisadapter "github.com/target/sessionguard/internal/adapters/redis"
	"github.com/target/sessionguard/internal/data"
	httpx "github.com/target/sessionguard/internal/http"
	"github.com/target/sessionguard/internal/observability/notify"
	"github.com/target/sessionguard/internal/observability/notify/pagerduty"
	"github.com/target/sessionguard/internal/observability/notify/slack"
	"github.com/target/sessionguard/internal/observability/statsd"
	"github.com/target/sessionguard/internal/ports"
	"github.com/target/sessionguard/internal/service"
	"github.com/target/sessionguard/internal/service/audit"
	"github.com/target/sessionguard/internal/service/tenant"
	"github.com/target/sessionguard/internal/service/timeout"
)

const shutdownWaitTimeout = 10 * time.Second

// CacheKeyPrefix namespaces every shared-cache key this service writes to Redis.
const CacheKeyPrefix = "sessionguard:"

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Auth     *service.AuthService
	Resolver *tenant.Resolver
	Registry *timeout.Registry
	Recovery ports.RecoveryStore
	Legacy   ports.LegacyTenantReader
	Audit    *audit.Recorder
	// Pruner is nil when audit events are not persisted.
	Pruner *audit.Pruner
	Cache  *data.TieredCache
	Health httpx.Pinger

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   statsd.Sink
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB // optional; audit persistence is skipped when nil
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures the metrics sink. A nil sink drops metrics.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	out := ObservabilityContainer{MetricsConfig: cfg.Metrics}
	if !cfg.Metrics.IsEnabled() {
		return out
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  obsLogger,
	})
	if err != nil {
		obsLogger.Error("failed to initialise statsd client", "error", err)
		return out
	}
	out.MetricsSink = client
	return out
}

// buildAuditWriters collects the configured audit destinations.
func buildAuditWriters(cfg config.AuditConfig, db *sql.DB, logger *slog.Logger) []audit.WriterRegistration {
	var writers []audit.WriterRegistration
	if cfg.Endpoint != "" {
		client, err := auditpost.NewClient(auditpost.Config{
			Endpoint:   cfg.Endpoint,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Warn("audit endpoint disabled", "error", err)
		} else {
			writers = append(writers, audit.WriterRegistration{Name: "endpoint", Writer: client})
		}
	}
	if cfg.Persist && db != nil {
		writers = append(writers, audit.WriterRegistration{Name: "postgres", Writer: data.NewAuditRepo(db)})
	}
	return writers
}

// buildAlertWriters wraps the enabled paging and chat clients as audit writers
// that only forward security events.
func buildAlertWriters(cfg config.ObservabilityNotificationsConfig, logger *slog.Logger) []audit.WriterRegistration {
	if !cfg.Enabled {
		return nil
	}

	writers := make([]audit.WriterRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:    cfg.Slack.WebhookURL,
			Channel:       cfg.Slack.Channel,
			Username:      cfg.Slack.Username,
			Timeout:       cfg.Timeout,
			RetryLimit:    cfg.RetryLimit,
			UserURLPrefix: cfg.Slack.UserURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			writers = append(writers, audit.WriterRegistration{Name: "slack", Writer: notify.NewWriter(client)})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			writers = append(writers, audit.WriterRegistration{Name: "pagerduty", Writer: notify.NewWriter(client)})
		}
	}

	return writers
}

func newAuditPruner(cfg config.AuditConfig, db *sql.DB, sink statsd.Sink, logger *slog.Logger) *audit.Pruner {
	if db == nil || !cfg.Persist || cfg.Retention <= 0 {
		return nil
	}
	p, err := audit.NewPruner(audit.PrunerOptions{
		Repo:      data.NewAuditRepo(db),
		Retention: cfg.Retention,
		Interval:  cfg.PruneInterval,
		Metrics:   sink,
		Logger:    logger,
	})
	if err != nil {
		logger.Warn("audit retention disabled", "error", err)
		return nil
	}
	return p
}

func newTenantCache(cfg config.TenantConfig, client redis.UniversalClient, sink statsd.Sink, logger *slog.Logger) *data.TieredCache {
	opts := data.TieredCacheOptions{
		Local:    data.NewLocalLRU(data.LocalLRUConfig{Capacity: cfg.LocalCacheCapacity}),
		LocalTTL: cfg.LocalCacheTTL,
		Metrics:  sink,
		Logger:   logger,
	}
	if client != nil {
		opts.Remote = data.NewRedisCache(client, CacheKeyPrefix)
	}
	return data.NewTieredCache(opts)
}

type resolverDeps struct {
	cfg        config.TenantConfig
	gateway    ports.AuthGateway
	cache      ports.Cache
	attributes ports.AttributeStore
	legacy     ports.LegacyTenantReader
	audit      ports.AuditSink
	metrics    statsd.Sink
	logger     *slog.Logger
}

func newTenantResolver(d resolverDeps) (*tenant.Resolver, error) {
	idp, err := tenant.NewIdentityProviderSource(d.gateway, d.cfg.AttributeExpr, d.cfg.FetchTimeout)
	if err != nil {
		return nil, fmt.Errorf("build identity provider source: %w", err)
	}
	return tenant.NewResolver(tenant.ResolverOptions{
		Sources: []tenant.Source{
			tenant.NewSessionSource(d.gateway),
			tenant.NewCacheSource(d.cache),
			idp,
			tenant.NewLegacySource(d.legacy, d.cfg.LegacyFallbackEnabled, d.logger),
		},
		Cache:         d.cache,
		CacheTTL:      d.cfg.CacheTTL,
		Attributes:    d.attributes,
		AttributeName: d.cfg.AttributeName,
		Audit:         d.audit,
		Metrics:       d.metrics,
		Logger:        d.logger,
	}), nil
}

// healthPinger checks Redis and, when configured, Postgres.
func healthPinger(client redis.UniversalClient, db *sql.DB) httpx.PingFunc {
	return func(ctx context.Context) error {
		var errs []error
		if client != nil {
			if err := client.Ping(ctx).Err(); err != nil {
				errs = append(errs, fmt.Errorf("redis: %w", err))
			}
		}
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				errs = append(errs, fmt.Errorf("postgres: %w", err))
			}
		}
		return errors.Join(errs...)
	}
}

// NewServices wires the auth service, tenant resolver, timeout registry and audit
// fan-out. The returned container owns the audit recorder; call Close when done.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	obs := buildObservability(logger, cfg.Observability)
	recorder := audit.NewRecorder(audit.Options{
		Writers: append(
			buildAuditWriters(cfg.Observability.Audit, deps.DB, logger),
			buildAlertWriters(cfg.Observability.Notifications, logger)...,
		),
		QueueSize:       cfg.Observability.Audit.QueueSize,
		DeliveryTimeout: cfg.Observability.Audit.Timeout,
		Metrics:         obs.MetricsSink,
		Logger:          logger,
	})

	var attrs ports.AttributeStore
	if deps.RedisClient != nil {
		attrs = redisadapter.NewAttributeStore(deps.RedisClient)
	}
	authSvc := BuildAuthService(AuthConfig{
		Auth:        cfg.Auth,
		Tenant:      cfg.Tenant,
		RedisClient: deps.RedisClient,
		Attributes:  attrs,
		Audit:       recorder,
		Logger:      logger,
	})
	if authSvc == nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()
		_ = recorder.Close(closeCtx)
		return ServiceContainer{}, errors.New("auth service unavailable: check AUTH_MODE and provider settings")
	}

	cache := newTenantCache(cfg.Tenant, deps.RedisClient, obs.MetricsSink, logger)
	legacy := legacycookie.NewReader(cfg.Tenant.LegacyCookieNames)

	resolver, err := newTenantResolver(resolverDeps{
		cfg:        cfg.Tenant,
		gateway:    authSvc,
		cache:      cache,
		attributes: attrs,
		legacy:     legacy,
		audit:      recorder,
		metrics:    obs.MetricsSink,
		logger:     logger,
	})
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()
		_ = recorder.Close(closeCtx)
		return ServiceContainer{}, err
	}

	recovery := redisadapter.NewRecoveryStore(deps.RedisClient)
	inbox := timeout.NewInbox(0)
	registry := timeout.NewRegistry(timeout.RegistryOptions{
		Config:   timeout.ConfigFrom(cfg.Timeout, cfg.HTTP.SignedOutPath),
		Auth:     authSvc,
		Recovery: recovery,
		Audit:    recorder,
		Cleaners: []ports.SessionCleaner{resolver, inbox},
		Inbox:    inbox,
		Metrics:  obs.MetricsSink,
		Logger:   logger,
	})

	return ServiceContainer{
		Auth:          authSvc,
		Resolver:      resolver,
		Registry:      registry,
		Recovery:      recovery,
		Legacy:        legacy,
		Audit:         recorder,
		Pruner:        newAuditPruner(cfg.Observability.Audit, deps.DB, obs.MetricsSink, logger),
		Cache:         cache,
		Health:        healthPinger(deps.RedisClient, deps.DB),
		Observability: obs,
	}, nil
}

// Close stops every coordinator, then drains the audit queue so their final
// events are delivered.
func (c ServiceContainer) Close(ctx context.Context) error {
	if c.Registry != nil {
		c.Registry.Close(ctx)
	}
	if c.Audit != nil {
		if err := c.Audit.Close(ctx); err != nil {
			return fmt.Errorf("close audit recorder: %w", err)
		}
	}
	return nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown serves HTTP and runs background work until ctx is
// cancelled or a component fails, then shuts everything down.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := NewHTTPServer(&HTTPServerConfig{
		Config:   cfg.Config,
		Services: cfg.Services,
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.InfoContext(gctx, "starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.Services.Pruner != nil {
		g.Go(func() error { return cfg.Services.Pruner.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down services...")
		return gracefulStop(server, cfg.Services, logger)
	})

	return g.Wait()
}

// gracefulStop drains HTTP first so no request starts a coordinator after the
// registry has been closed.
func gracefulStop(server *http.Server, services ServiceContainer, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
	defer cancel()

	var errs []error
	if err := ShutdownHTTPServer(ShutdownConfig{Context: ctx, Server: server, Logger: logger}); err != nil {
		errs = append(errs, err)
	}
	if err := services.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
