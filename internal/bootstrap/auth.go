package bootstrap

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/sessionguard/config"
	"github.com/target/sessionguard/internal/adapters/devauth"
	"github.com/target/sessionguard/internal/adapters/oidc"
	redisadapter "github.com/target/sessionguard/internal/adapters/redis"
	"github.com/target/sessionguard/internal/ports"
	"github.com/target/sessionguard/internal/service"
	"github.com/target/sessionguard/internal/service/tenant"
)

// AuthConfig contains configuration for auth service.
type AuthConfig struct {
	Auth        config.AuthConfig
	Tenant      config.TenantConfig
	RedisClient redis.UniversalClient
	Attributes  ports.AttributeStore
	Audit       ports.AuditSink
	Logger      *slog.Logger
}

// BuildAuthService creates an auth service based on the configured auth mode.
// Returns nil if auth is not configured or configuration is invalid.
func BuildAuthService(cfg AuthConfig) *service.AuthService {
	if cfg.RedisClient == nil {
		if cfg.Logger != nil {
			cfg.Logger.Warn("auth service disabled: redis client not configured", "mode", cfg.Auth.Mode)
		}
		return nil
	}

	var (
		prov ports.AuthProvider
		err  error
	)
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		prov, err = buildDevProvider(cfg)
	case config.AuthModeOAuth:
		prov, err = buildOAuthProvider(cfg)
	default:
		return nil
	}
	if err != nil {
		if cfg.Logger != nil {
			cfg.Logger.Warn("failed to create auth provider, auth disabled", "mode", cfg.Auth.Mode, "error", err)
		}
		return nil
	}
	if prov == nil {
		return nil
	}

	// A bad tenant expression only loses the login-time hint; resolution still runs.
	extractor, err := tenant.NewAttributeExtractor(cfg.Tenant.AttributeExpr)
	if err != nil && cfg.Logger != nil {
		cfg.Logger.Warn("tenant attribute expression rejected", "expr", cfg.Tenant.AttributeExpr, "error", err)
	}

	attrs := cfg.Attributes
	if attrs == nil {
		attrs = redisadapter.NewAttributeStore(cfg.RedisClient)
	}

	opts := service.AuthServiceOptions{
		Provider:   prov,
		Sessions:   redisadapter.NewSessionStoreWithPrefix(cfg.RedisClient, "session:"),
		Attributes: attrs,
		Audit:      cfg.Audit,
		Logger:     cfg.Logger,

		AllowedTenantsAttribute: cfg.Tenant.AllowedAttribute,
	}
	if extractor != nil {
		opts.Tenants = extractor
	}
	return service.NewAuthService(opts)
}

//nolint:ireturn // callers pick the provider by mode.
func buildDevProvider(cfg AuthConfig) (ports.AuthProvider, error) {
	prov, err := devauth.NewProvider(devauth.Config{
		UserID:          cfg.Auth.DevAuth.UserID,
		Email:           cfg.Auth.DevAuth.Email,
		TenantID:        cfg.Auth.DevAuth.TenantID,
		TenantAttribute: cfg.Tenant.AttributeName,
	})
	if err != nil {
		return nil, err
	}
	return prov, nil
}

//nolint:ireturn // callers pick the provider by mode.
func buildOAuthProvider(cfg AuthConfig) (ports.AuthProvider, error) {
	// Only enable when fully configured
	oauth := cfg.Auth.OAuth
	if oauth.DiscoveryURL == "" || oauth.ClientID == "" || oauth.ClientSecret == "" {
		if cfg.Logger != nil {
			cfg.Logger.Warn("AuthModeOAuth selected but required config missing; auth disabled",
				"discovery_url_empty", oauth.DiscoveryURL == "",
				"client_id_empty", oauth.ClientID == "",
				"client_secret_empty", oauth.ClientSecret == "",
			)
		}
		return nil, nil
	}

	prov, err := oidc.NewProvider(oidc.ProviderConfig{
		ClientID:          oauth.ClientID,
		ClientSecret:      oauth.ClientSecret,
		RedirectURL:       oauth.RedirectURL,
		Scope:             oauth.Scope,
		DiscoveryURL:      oauth.DiscoveryURL,
		LogoutURL:         oauth.LogoutURL,
		ConfigureAttempts: oauth.ConfigureAttempts,
		Logger:            cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return prov, nil
}
