package bootstrap

import (
	"io"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/target/sessionguard/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildAuthServiceReturnsNilWithoutRedis(t *testing.T) {
	logger := discardLogger()

	tests := []struct {
		name string
		auth config.AuthConfig
	}{
		{
			name: "dev auth mode",
			auth: config.AuthConfig{
				Mode: config.AuthModeMock,
				DevAuth: config.DevAuthConfig{
					UserID:   "dev",
					Email:    "dev@example.com",
					TenantID: "a1b2c3d4",
				},
			},
		},
		{
			name: "oauth mode",
			auth: config.AuthConfig{
				Mode: config.AuthModeOAuth,
				OAuth: config.OAuthConfig{
					ClientID:     "client-id",
					ClientSecret: "client-secret",
					DiscoveryURL: "https://issuer.example.com",
					RedirectURL:  "https://app.example.com/auth/callback",
					Scope:        "openid",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AuthConfig{
				Auth:        tt.auth,
				RedisClient: nil,
				Logger:      logger,
			}

			if svc := BuildAuthService(cfg); svc != nil {
				t.Fatalf("BuildAuthService() = %v, want nil", svc)
			}
		})
	}
}

func TestBuildAuthServiceByMode(t *testing.T) {
	// The client is never dialled while building the service.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	tenantCfg := config.TenantConfig{AttributeName: "custom:tenant_id", AttributeExpr: `"custom:tenant_id"`}

	tests := []struct {
		name    string
		auth    config.AuthConfig
		tenant  config.TenantConfig
		wantNil bool
	}{
		{
			name: "dev auth builds",
			auth: config.AuthConfig{
				Mode:    config.AuthModeMock,
				DevAuth: config.DevAuthConfig{UserID: "dev", Email: "dev@example.com"},
			},
			tenant: tenantCfg,
		},
		{
			name:    "dev auth without email is disabled",
			auth:    config.AuthConfig{Mode: config.AuthModeMock, DevAuth: config.DevAuthConfig{UserID: "dev"}},
			tenant:  tenantCfg,
			wantNil: true,
		},
		{
			name: "oauth without discovery is disabled",
			auth: config.AuthConfig{
				Mode:  config.AuthModeOAuth,
				OAuth: config.OAuthConfig{ClientID: "id", ClientSecret: "secret"},
			},
			tenant:  tenantCfg,
			wantNil: true,
		},
		{
			name: "bad tenant expression still builds",
			auth: config.AuthConfig{
				Mode:    config.AuthModeMock,
				DevAuth: config.DevAuthConfig{UserID: "dev", Email: "dev@example.com"},
			},
			tenant: config.TenantConfig{AttributeExpr: "[[["},
		},
		{
			name:    "unknown mode",
			auth:    config.AuthConfig{Mode: config.AuthMode("saml")},
			tenant:  tenantCfg,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := BuildAuthService(AuthConfig{
				Auth:        tt.auth,
				Tenant:      tt.tenant,
				RedisClient: client,
				Logger:      discardLogger(),
			})
			if tt.wantNil && svc != nil {
				t.Fatalf("expected nil auth service")
			}
			if !tt.wantNil && svc == nil {
				t.Fatalf("expected auth service to be built")
			}
		})
	}
}
