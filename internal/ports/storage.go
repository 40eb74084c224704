package ports

import (
	"context"
	"net/http"
	"time"

	"github.com/target/sessionguard/internal/domain/audit"
)

// Cache is a simple key/value store with optional expiry.
type Cache interface {
	// Get returns nil when the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
}

// LegacyTenantReader reads the deprecated cookie-based tenant id.
type LegacyTenantReader interface {
	Read(r *http.Request) (string, bool)
	Clear(w http.ResponseWriter, r *http.Request)
}

// AuditSink accepts audit events without blocking the caller.
type AuditSink interface {
	Record(ctx context.Context, ev audit.Event)
}

// AuditWriter delivers one audit event to a downstream store or endpoint.
type AuditWriter interface {
	Write(ctx context.Context, ev audit.Event) error
}
