package config

import (
	"strings"
	"time"
)

// TenantConfig controls tenant identifier resolution.
type TenantConfig struct {
	// CacheTTL is how long a resolved tenant id stays in the shared (Redis) cache tier.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"8h" validate:"gt=0"`

	// LocalCacheCapacity and LocalCacheTTL size the in-process first cache tier.
	LocalCacheCapacity int           `env:"LOCAL_CACHE_CAPACITY" envDefault:"4096" validate:"gt=0"`
	LocalCacheTTL      time.Duration `env:"LOCAL_CACHE_TTL"      envDefault:"5m"   validate:"gt=0"`

	// FetchTimeout bounds identity-provider attribute lookups during resolution.
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"2s" validate:"gt=0"`

	// AttributeExpr is a JMESPath expression evaluated against the user attribute map.
	AttributeExpr string `env:"ATTRIBUTE_EXPR" envDefault:"\"custom:tenant_id\" || tenant_id || \"custom:business_id\""`

	// AttributeName is the overlay attribute that legacy values are migrated into.
	AttributeName string `env:"ATTRIBUTE_NAME" envDefault:"custom:tenant_id"`

	// AllowedAttribute names the user attribute listing extra tenants a user may
	// switch to. The user's own tenant is always allowed.
	AllowedAttribute string `env:"ALLOWED_ATTRIBUTE" envDefault:"custom:allowed_tenants"`

	// LegacyFallbackEnabled turns on the deprecated cookie-based tenant lookup.
	LegacyFallbackEnabled bool     `env:"LEGACY_FALLBACK_ENABLED" envDefault:"false"`
	LegacyCookieNames     []string `env:"LEGACY_COOKIE_NAMES"     envDefault:"tenant_id;businessId;current_business_id" envSeparator:";"`
}

// Sanitize trims expressions and cookie names.
func (c *TenantConfig) Sanitize() {
	c.AttributeExpr = strings.TrimSpace(c.AttributeExpr)
	c.AttributeName = strings.TrimSpace(c.AttributeName)
	c.AllowedAttribute = strings.TrimSpace(c.AllowedAttribute)
	if c.AttributeName == "" {
		c.AttributeName = "custom:tenant_id"
	}
	if c.AttributeExpr == "" {
		c.AttributeExpr = `"` + c.AttributeName + `"`
	}

	names := make([]string, 0, len(c.LegacyCookieNames))
	for _, n := range c.LegacyCookieNames {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	c.LegacyCookieNames = names
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 2 * time.Second
	}
}
