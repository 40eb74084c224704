// Package tenant resolves the authoritative tenant id of a session from an ordered
// chain of sources and reconciles disagreements between them.
package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/target/sessionguard/internal/clock"
	"github.com/target/sessionguard/internal/domain/audit"
	domaintenant "github.com/target/sessionguard/internal/domain/tenant"
	"github.com/target/sessionguard/internal/observability/metrics"
	"github.com/target/sessionguard/internal/observability/statsd"
	"github.com/target/sessionguard/internal/ports"
)

const (
	sourceNone        = "none"
	conflictKeyPrefix = "tenant:conflict:"
)

var _ ports.SessionCleaner = (*Resolver)(nil)

// ResolverOptions bundles dependencies for NewResolver. Sources must be in priority
// order: session, cache, identity provider, legacy.
type ResolverOptions struct {
	Sources  []Source
	Cache    ports.Cache
	CacheTTL time.Duration

	// Attributes receives legacy-sourced values under AttributeName.
	Attributes    ports.AttributeStore
	AttributeName string

	Audit   ports.AuditSink
	Metrics statsd.Sink
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Resolver produces exactly one tenant id per session.
type Resolver struct {
	sources       []Source
	cache         ports.Cache
	cacheTTL      time.Duration
	attributes    ports.AttributeStore
	attributeName string
	audit         ports.AuditSink
	metrics       statsd.Sink
	clock         clock.Clock
	logger        *slog.Logger

	group singleflight.Group
}

// NewResolver creates a Resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AttributeName == "" {
		opts.AttributeName = "custom:tenant_id"
	}
	return &Resolver{
		sources:       opts.Sources,
		cache:         opts.Cache,
		cacheTTL:      opts.CacheTTL,
		attributes:    opts.Attributes,
		attributeName: opts.AttributeName,
		audit:         opts.Audit,
		metrics:       opts.Metrics,
		clock:         opts.Clock,
		logger:        opts.Logger.With("component", "tenant_resolver"),
	}
}

// Resolve walks the sources in priority order and stops at the first hit. A
// returned identity with Source == SourceLegacyFallback tells the caller the value
// was migrated and the legacy cookies can be cleared. Concurrent calls for the same
// session share one pass.
func (r *Resolver) Resolve(ctx context.Context, in Input) (domaintenant.Identity, error) {
	if in.SessionID == "" {
		return r.resolve(ctx, in)
	}
	v, err, shared := r.group.Do(in.SessionID, func() (any, error) {
		return r.resolve(ctx, in)
	})
	if shared {
		r.logger.DebugContext(ctx, "tenant resolution shared with concurrent caller", "session_id", in.SessionID)
	}
	id, _ := v.(domaintenant.Identity)
	return id, err
}

func (r *Resolver) resolve(ctx context.Context, in Input) (domaintenant.Identity, error) {
	start := r.clock.Now()
	log := r.logger.With("session_id", in.SessionID)

	winner, idx, found := r.first(ctx, log, in)
	if !found {
		log.WarnContext(ctx, "no tenant identifier available from any source")
		r.record(ctx, in, audit.TenantUnresolved, "", nil)
		metrics.EmitTenantResolution(r.metrics, metrics.ResolutionMetric{
			Source:   sourceNone,
			Result:   metrics.ResultMiss,
			Duration: r.clock.Now().Sub(start),
		})
		return domaintenant.Identity{}, domaintenant.ErrNoTenantIdentifier
	}

	id := domaintenant.Identity{
		TenantID:    winner.TenantID,
		Source:      winner.Source,
		ResolvedAt:  r.clock.Now(),
		FormatValid: domaintenant.ValidateID(winner.TenantID) == nil,
	}
	log = log.With("tenant_id", id.TenantID, "source", id.Source.String())

	if !id.FormatValid {
		log.WarnContext(ctx, "tenant identifier has an unexpected format; using it anyway")
		r.record(ctx, in, audit.TenantInvalidFormat, id.TenantID, map[string]any{
			"source": id.Source.String(),
		})
	}

	id.Conflicts = r.crossCheck(ctx, log, in, winner, idx)
	for _, c := range id.Conflicts {
		if !r.firstReport(ctx, log, in.SessionID, id.TenantID, c) {
			log.DebugContext(ctx, "tenant conflict already reported",
				"conflicting_source", c.Source.String(),
				"conflicting_tenant_id", c.TenantID,
			)
			continue
		}
		log.ErrorContext(ctx, "tenant sources disagree; higher-priority source wins",
			"conflicting_source", c.Source.String(),
			"conflicting_tenant_id", c.TenantID,
		)
		r.record(ctx, in, audit.TenantConflict, id.TenantID, map[string]any{
			"winner":           id.Source.String(),
			"loser":            c.Source.String(),
			"loser_tenant_id":  c.TenantID,
			"winner_tenant_id": id.TenantID,
		})
		metrics.EmitTenantConflict(r.metrics, id.Source.String(), c.Source.String())
	}

	if id.Source != domaintenant.SourceCache || id.HasConflict() {
		r.backfill(ctx, log, in.SessionID, id.TenantID)
	}
	if id.Source == domaintenant.SourceLegacyFallback {
		r.migrateLegacy(ctx, log, in, id.TenantID)
	}
	if id.Source != domaintenant.SourceCache {
		r.record(ctx, in, audit.TenantResolved, id.TenantID, map[string]any{
			"source":       id.Source.String(),
			"format_valid": id.FormatValid,
		})
	}

	result := metrics.ResultHit
	if !id.FormatValid {
		result = "invalid_format"
	}
	metrics.EmitTenantResolution(r.metrics, metrics.ResolutionMetric{
		Source:   id.Source.String(),
		Result:   result,
		Duration: r.clock.Now().Sub(start),
	})
	return id, nil
}

// first returns the highest-priority hit. Source errors are logged and treated as
// misses so resolution can fall back to the next source.
func (r *Resolver) first(ctx context.Context, log *slog.Logger, in Input) (Candidate, int, bool) {
	for i, src := range r.sources {
		cand, ok, err := src.TryResolve(ctx, in)
		if err != nil {
			log.WarnContext(ctx, "tenant source failed; falling back",
				"source", src.Kind().String(),
				"error", err,
			)
			metrics.EmitTenantResolution(r.metrics, metrics.ResolutionMetric{
				Source: src.Kind().String(),
				Result: metrics.ResultError,
				Err:    err,
			})
			continue
		}
		if ok {
			return cand, i, true
		}
	}
	return Candidate{}, -1, false
}

// crossCheck consults the remaining local sources after a hit. Remote sources are
// never queried again once a value is known.
func (r *Resolver) crossCheck(ctx context.Context, log *slog.Logger, in Input, winner Candidate, idx int) []domaintenant.Conflict {
	var conflicts []domaintenant.Conflict
	for _, src := range r.sources[idx+1:] {
		if !src.Local() {
			continue
		}
		cand, ok, err := src.TryResolve(ctx, in)
		if err != nil {
			log.DebugContext(ctx, "tenant cross-check source failed", "source", src.Kind().String(), "error", err)
			continue
		}
		if ok && cand.TenantID != winner.TenantID {
			conflicts = append(conflicts, domaintenant.Conflict{Source: cand.Source, TenantID: cand.TenantID})
		}
	}
	return conflicts
}

// firstReport marks a session's disagreement as reported and returns false when it
// already was. Without a cache every occurrence is reported.
func (r *Resolver) firstReport(ctx context.Context, log *slog.Logger, sessionID, winner string, c domaintenant.Conflict) bool {
	if r.cache == nil || sessionID == "" {
		return true
	}
	key := conflictKeyPrefix + sessionID + ":" + winner + ":" + c.Source.String() + ":" + c.TenantID
	seen, err := r.cache.Get(ctx, key)
	if err != nil {
		log.DebugContext(ctx, "read conflict marker failed", "error", err)
		return true
	}
	if seen != nil {
		return false
	}
	if err := r.cache.Set(ctx, key, []byte{'1'}, r.cacheTTL); err != nil {
		log.WarnContext(ctx, "store conflict marker failed", "error", err)
	}
	return true
}

func (r *Resolver) backfill(ctx context.Context, log *slog.Logger, sessionID, tenantID string) {
	if r.cache == nil || sessionID == "" {
		return
	}
	if err := r.cache.Set(ctx, CacheKey(sessionID), []byte(tenantID), r.cacheTTL); err != nil {
		log.WarnContext(ctx, "cache tenant identifier failed", "error", err)
	}
}

func (r *Resolver) migrateLegacy(ctx context.Context, log *slog.Logger, in Input, tenantID string) {
	log.WarnContext(ctx, "tenant resolved from legacy cookie; migrating to identity attributes")
	r.record(ctx, in, audit.TenantLegacyFallback, tenantID, nil)
	if r.attributes == nil || in.UserID == "" {
		return
	}
	if err := r.attributes.PutUserAttribute(ctx, in.UserID, r.attributeName, tenantID); err != nil {
		log.WarnContext(ctx, "migrate legacy tenant identifier failed", "error", err)
		return
	}
	r.record(ctx, in, audit.TenantLegacyMigrated, tenantID, map[string]any{"attribute": r.attributeName})
}

// Invalidate drops the cached tenant for sessionID so the next Resolve starts over.
func (r *Resolver) Invalidate(ctx context.Context, sessionID string) error {
	r.group.Forget(sessionID)
	if r.cache == nil || sessionID == "" {
		return nil
	}
	if _, err := r.cache.Delete(ctx, CacheKey(sessionID)); err != nil {
		return fmt.Errorf("invalidate tenant cache: %w", err)
	}
	return nil
}

// ClearSession implements ports.SessionCleaner.
func (r *Resolver) ClearSession(ctx context.Context, sessionID string) error {
	return r.Invalidate(ctx, sessionID)
}

func (r *Resolver) record(ctx context.Context, in Input, name audit.Name, tenantID string, details map[string]any) {
	if r.audit == nil {
		return
	}
	r.audit.Record(ctx, audit.Event{
		Timestamp: r.clock.Now(),
		Event:     name,
		SessionID: in.SessionID,
		UserID:    in.UserID,
		TenantID:  tenantID,
		Details:   details,
	})
}
