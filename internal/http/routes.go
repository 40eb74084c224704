package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/target/sessionguard/internal/ports"
)

// AuthAPI is the auth service surface the router needs.
type AuthAPI interface {
	AuthServiceInterface
	TenantSwitcher
}

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth     AuthAPI
	Registry CoordinatorRegistry
	Resolver TenantResolver
	Recovery ports.RecoveryStore
	// Legacy is optional; when set, migrated legacy tenant cookies are cleared.
	Legacy ports.LegacyTenantReader
	// Health is pinged by /healthz. Nil reports liveness only.
	Health Pinger

	CookieDomain     string
	SignedOutPath    string
	AccountSetupPath string
	TokenTimeout     time.Duration
	Logger           *slog.Logger
}

// NewRouter creates and configures a new HTTP router with browser middleware.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	authHandlers := &AuthHandlers{
		Svc:           services.Auth,
		Tracker:       services.Registry,
		Tenants:       services.Resolver,
		CookieDomain:  services.CookieDomain,
		SignedOutPath: services.SignedOutPath,
		TokenTimeout:  services.TokenTimeout,
		Logger:        services.Logger,
	}
	sessionHandlers := &SessionHandlers{
		Registry:     services.Registry,
		Recovery:     services.Recovery,
		CookieDomain: services.CookieDomain,
		Logger:       services.Logger,
	}
	tenantHandlers := &TenantHandlers{
		Switcher: services.Auth,
		Resolver: services.Resolver,
		Registry: services.Registry,
		Logger:   services.Logger,
	}

	mux.Handle("GET /healthz", healthHandler(services.Health))
	mux.Handle("HEAD /healthz", healthHandler(services.Health))
	registerAuthRoutes(mux, authHandlers)
	registerSessionRoutes(mux, sessionHandlers, services)
	registerTenantRoutes(mux, tenantHandlers, services)

	return BrowserDetection()(mux)
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET /auth/login", h.Login)
	mux.HandleFunc("GET /auth/callback", h.Callback)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/status", h.Status)
	mux.HandleFunc("GET /auth/signed-out", h.SignedOut)
}

// tenantChain authenticates and resolves the tenant before the handler runs.
func tenantChain(services RouterServices) func(http.Handler) http.Handler {
	auth := RequireAuth(services.Auth)
	tenant := RequireTenant(TenantMiddlewareOptions{
		Resolver:         services.Resolver,
		Legacy:           services.Legacy,
		AccountSetupPath: services.AccountSetupPath,
		Logger:           services.Logger,
	})
	return func(h http.Handler) http.Handler {
		return auth(tenant(h))
	}
}

func registerSessionRoutes(mux *http.ServeMux, h *SessionHandlers, services RouterServices) {
	wrap := tenantChain(services)
	auth := RequireAuth(services.Auth)

	mux.Handle("POST /api/session/start", wrap(http.HandlerFunc(h.Start)))
	mux.Handle("POST /api/session/activity", auth(http.HandlerFunc(h.Activity)))
	mux.Handle("POST /api/session/route", auth(http.HandlerFunc(h.Route)))
	mux.Handle("POST /api/session/extend", auth(http.HandlerFunc(h.Extend)))
	mux.Handle("POST /api/session/cancel", auth(http.HandlerFunc(h.Cancel)))
	mux.Handle("POST /api/session/unload", auth(http.HandlerFunc(h.Unload)))
	mux.Handle("PUT /api/session/forms/{id}", auth(http.HandlerFunc(h.PutForm)))
	mux.Handle("DELETE /api/session/forms/{id}", auth(http.HandlerFunc(h.DeleteForm)))
	mux.Handle("GET /api/session/recovery", auth(http.HandlerFunc(h.Recovery)))
	// The forced-logout redirect must be reachable after the session is gone.
	mux.Handle("GET /api/session/state", OptionalAuth(services.Auth)(http.HandlerFunc(h.State)))
}

func registerTenantRoutes(mux *http.ServeMux, h *TenantHandlers, services RouterServices) {
	wrap := tenantChain(services)
	mux.Handle("GET /api/tenant", wrap(http.HandlerFunc(h.Current)))
	mux.Handle("POST /api/tenant/switch", RequireAuth(services.Auth)(http.HandlerFunc(h.Switch)))
}
