package data

import (
	"context"
	"log/slog"
	"time"

	"github.com/target/sessionguard/internal/observability/metrics"
	"github.com/target/sessionguard/internal/observability/statsd"
	"github.com/target/sessionguard/internal/ports"
)

// TieredCacheOptions configures a TieredCache.
type TieredCacheOptions struct {
	Local *LocalLRU
	// Remote is the shared tier. When nil the cache is process-local only.
	Remote   ports.Cache
	LocalTTL time.Duration // upper bound on how long an entry lives in the local tier
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

// TieredCache implements ports.Cache over an in-process LRU backed by a shared tier.
// Reads that miss locally are served from the shared tier and copied into the LRU.
// A shared-tier read failure degrades to a miss.
type TieredCache struct {
	local    *LocalLRU
	remote   ports.Cache
	localTTL time.Duration
	metrics  statsd.Sink
	logger   *slog.Logger
}

var _ ports.Cache = (*TieredCache)(nil)

// NewTieredCache creates a TieredCache.
func NewTieredCache(opts TieredCacheOptions) *TieredCache {
	local := opts.Local
	if local == nil {
		local = NewLocalLRU(LocalLRUConfig{})
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	localTTL := opts.LocalTTL
	if localTTL <= 0 {
		localTTL = 5 * time.Minute
	}
	return &TieredCache{
		local:    local,
		remote:   opts.Remote,
		localTTL: localTTL,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "tiered_cache"),
	}
}

func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := c.local.Get(key); ok {
		metrics.EmitCacheLookup(c.metrics, "local", true)
		return v, nil
	}
	metrics.EmitCacheLookup(c.metrics, "local", false)
	if c.remote == nil {
		return nil, nil
	}

	v, err := c.remote.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "shared cache read failed; treating as miss", "key", key, "error", err)
		return nil, nil
	}
	metrics.EmitCacheLookup(c.metrics, "remote", v != nil)
	if v != nil {
		c.local.Set(key, v, c.localTTL)
	}
	return v, nil
}

// Set writes the shared tier first so other instances see the value even if the
// local write is later evicted.
func (c *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.remote != nil {
		if err := c.remote.Set(ctx, key, value, ttl); err != nil {
			c.local.Delete(key)
			return err
		}
	}
	c.local.Set(key, value, c.boundTTL(ttl))
	return nil
}

func (c *TieredCache) Delete(ctx context.Context, key string) (bool, error) {
	localHit := c.local.Delete(key)
	if c.remote == nil {
		return localHit, nil
	}
	remoteHit, err := c.remote.Delete(ctx, key)
	if err != nil {
		return localHit, err
	}
	return localHit || remoteHit, nil
}

func (c *TieredCache) boundTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > c.localTTL {
		return c.localTTL
	}
	return ttl
}

// Stats exposes the local tier counters.
func (c *TieredCache) Stats() LocalLRUStats { return c.local.Stats() }
