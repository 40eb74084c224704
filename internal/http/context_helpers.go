package httpx

import (
	"context"

	domainauth "github.com/target/sessionguard/internal/domain/auth"
	domaintenant "github.com/target/sessionguard/internal/domain/tenant"
)

// Context key types are unexported to avoid collisions across packages.
type (
	sessionKey struct{}
	tenantKey  struct{}
)

// SetSessionInContext returns a child context that carries the given session.
// If session is nil, the original ctx is returned unchanged.
func SetSessionInContext(ctx context.Context, session *domainauth.Session) context.Context {
	if session == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, session)
}

// GetUserSessionFromContext returns the user session from context and a boolean indicating presence.
func GetUserSessionFromContext(ctx context.Context) (*domainauth.Session, bool) {
	if session, ok := ctx.Value(sessionKey{}).(*domainauth.Session); ok && session != nil {
		return session, true
	}
	return nil, false
}

// SetTenantInContext stores the resolved tenant identity for downstream data access.
func SetTenantInContext(ctx context.Context, id domaintenant.Identity) context.Context {
	return context.WithValue(ctx, tenantKey{}, id)
}

// GetTenantFromContext returns the tenant identity resolved by RequireTenant.
func GetTenantFromContext(ctx context.Context) (domaintenant.Identity, bool) {
	id, ok := ctx.Value(tenantKey{}).(domaintenant.Identity)
	return id, ok && id.TenantID != ""
}

// tenantIDFromContext returns the resolved tenant id, falling back to the one issued
// with the session.
func tenantIDFromContext(ctx context.Context) string {
	if id, ok := GetTenantFromContext(ctx); ok {
		return id.TenantID
	}
	if s, ok := GetUserSessionFromContext(ctx); ok {
		return s.TenantID
	}
	return ""
}
