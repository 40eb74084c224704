package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	domaintenant "github.com/target/sessionguard/internal/domain/tenant"
	"github.com/target/sessionguard/internal/ports"
)

const cacheKeyPrefix = "tenant:session:"

// CacheKey is the cache key holding the resolved tenant id of a session.
func CacheKey(sessionID string) string { return cacheKeyPrefix + sessionID }

// Input is the browser context a resolution runs for.
type Input struct {
	SessionID string
	UserID    string
	// Request carries the legacy cookies. It may be nil outside an HTTP request.
	Request *http.Request
}

// Candidate is a value offered by one source.
type Candidate struct {
	TenantID string
	Source   domaintenant.Source
}

// Source is one strategy in the resolution chain.
type Source interface {
	Kind() domaintenant.Source
	// Local reports whether the source is cheap enough to consult again when
	// cross-checking a higher-priority hit.
	Local() bool
	TryResolve(ctx context.Context, in Input) (Candidate, bool, error)
}

func hit(kind domaintenant.Source, raw string) (Candidate, bool, error) {
	id := domaintenant.Normalize(raw)
	if id == "" {
		return Candidate{}, false, nil
	}
	return Candidate{TenantID: id, Source: kind}, true, nil
}

// SessionSource reads the tenant hint carried by the authenticated session.
type SessionSource struct {
	gateway ports.AuthGateway
}

// NewSessionSource creates a session-backed source.
func NewSessionSource(gateway ports.AuthGateway) *SessionSource {
	return &SessionSource{gateway: gateway}
}

func (s *SessionSource) Kind() domaintenant.Source { return domaintenant.SourceSession }

func (s *SessionSource) Local() bool { return true }

func (s *SessionSource) TryResolve(ctx context.Context, in Input) (Candidate, bool, error) {
	cur, err := s.gateway.FetchCurrentSession(ctx, in.SessionID)
	if err != nil {
		return Candidate{}, false, fmt.Errorf("fetch current session: %w", err)
	}
	if !cur.Authenticated {
		return Candidate{}, false, nil
	}
	if cur.TenantHint != "" {
		return hit(s.Kind(), cur.TenantHint)
	}
	return hit(s.Kind(), cur.User.TenantID)
}

// CacheSource reads the per-session cache entry written by earlier resolutions.
type CacheSource struct {
	cache ports.Cache
}

// NewCacheSource creates a cache-backed source.
func NewCacheSource(cache ports.Cache) *CacheSource {
	return &CacheSource{cache: cache}
}

func (s *CacheSource) Kind() domaintenant.Source { return domaintenant.SourceCache }

func (s *CacheSource) Local() bool { return true }

func (s *CacheSource) TryResolve(ctx context.Context, in Input) (Candidate, bool, error) {
	if in.SessionID == "" {
		return Candidate{}, false, nil
	}
	b, err := s.cache.Get(ctx, CacheKey(in.SessionID))
	if err != nil {
		return Candidate{}, false, fmt.Errorf("get cached tenant: %w", err)
	}
	if b == nil {
		return Candidate{}, false, nil
	}
	return hit(s.Kind(), string(b))
}

// AttributeExtractor pulls the tenant id out of a flattened attribute map with a
// JMESPath expression such as `"custom:tenant_id" || tenant_id`.
type AttributeExtractor struct {
	expr string
}

// NewAttributeExtractor validates expr.
func NewAttributeExtractor(expr string) (*AttributeExtractor, error) {
	if expr == "" {
		return nil, errors.New("tenant attribute expression is required")
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, fmt.Errorf("compile tenant attribute expression: %w", err)
	}
	return &AttributeExtractor{expr: expr}, nil
}

// Extract returns the normalized tenant id, or "" when the expression selects
// nothing usable.
func (e *AttributeExtractor) Extract(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "", nil
	}
	data := make(map[string]any, len(attrs))
	for k, v := range attrs {
		data[k] = v
	}
	v, err := jmespath.Search(e.expr, data)
	if err != nil {
		return "", fmt.Errorf("evaluate tenant attribute expression: %w", err)
	}
	str, ok := v.(string)
	if !ok {
		return "", nil
	}
	return domaintenant.Normalize(str), nil
}

// IdentityProviderSource reads the tenant attribute from the user's identity
// provider attributes.
type IdentityProviderSource struct {
	gateway   ports.AuthGateway
	extractor *AttributeExtractor
	timeout   time.Duration
}

// NewIdentityProviderSource validates expr and returns the source. A non-positive
// timeout leaves the fetch bounded only by the caller's context.
func NewIdentityProviderSource(gateway ports.AuthGateway, expr string, timeout time.Duration) (*IdentityProviderSource, error) {
	ex, err := NewAttributeExtractor(expr)
	if err != nil {
		return nil, err
	}
	return &IdentityProviderSource{gateway: gateway, extractor: ex, timeout: timeout}, nil
}

func (s *IdentityProviderSource) Kind() domaintenant.Source { return domaintenant.SourceIdentityProvider }

func (s *IdentityProviderSource) Local() bool { return false }

func (s *IdentityProviderSource) TryResolve(ctx context.Context, in Input) (Candidate, bool, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	attrs, err := s.gateway.FetchUserAttributes(ctx, in.SessionID)
	if err != nil {
		return Candidate{}, false, fmt.Errorf("fetch user attributes: %w", err)
	}
	id, err := s.extractor.Extract(attrs)
	if err != nil {
		return Candidate{}, false, err
	}
	return hit(s.Kind(), id)
}

// LegacySource reads the deprecated cookie-based tenant id. It only participates
// while the legacy fallback is enabled.
type LegacySource struct {
	reader  ports.LegacyTenantReader
	enabled bool
	logger  *slog.Logger
}

// NewLegacySource creates the legacy cookie source.
func NewLegacySource(reader ports.LegacyTenantReader, enabled bool, logger *slog.Logger) *LegacySource {
	if logger == nil {
		logger = slog.Default()
	}
	return &LegacySource{reader: reader, enabled: enabled, logger: logger}
}

func (s *LegacySource) Kind() domaintenant.Source { return domaintenant.SourceLegacyFallback }

func (s *LegacySource) Local() bool { return true }

func (s *LegacySource) TryResolve(ctx context.Context, in Input) (Candidate, bool, error) {
	if !s.enabled || s.reader == nil || in.Request == nil {
		return Candidate{}, false, nil
	}
	raw, ok := s.reader.Read(in.Request)
	if !ok {
		return Candidate{}, false, nil
	}
	s.logger.WarnContext(ctx, "legacy tenant cookie consulted; migration mode is enabled",
		"session_id", in.SessionID,
		"user_id", in.UserID,
	)
	return hit(s.Kind(), raw)
}
