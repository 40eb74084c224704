package audit

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/sessionguard/internal/clock"
	"github.com/target/sessionguard/internal/observability/metrics"
	"github.com/target/sessionguard/internal/observability/statsd"
)

// Pruneable deletes persisted audit events older than a cutoff.
type Pruneable interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PrunerOptions groups dependencies for Pruner.
type PrunerOptions struct {
	Repo      Pruneable     // Required
	Retention time.Duration // Required, > 0
	Interval  time.Duration // default 1h
	Clock     clock.Clock
	Metrics   statsd.Sink
	Logger    *slog.Logger
}

// Pruner enforces audit retention on a fixed interval.
type Pruner struct {
	repo      Pruneable
	retention time.Duration
	interval  time.Duration
	clock     clock.Clock
	metrics   statsd.Sink
	logger    *slog.Logger
}

// NewPruner validates options and builds a Pruner.
func NewPruner(opts PrunerOptions) (*Pruner, error) {
	if opts.Repo == nil {
		return nil, errors.New("audit pruner: repo is required")
	}
	if opts.Retention <= 0 {
		return nil, errors.New("audit pruner: retention must be positive")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		repo:      opts.Repo,
		retention: opts.Retention,
		interval:  opts.Interval,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "audit_pruner"),
	}, nil
}

// Run prunes once after a short jitter and then on every tick until ctx ends.
// It returns nil on cancellation.
func (p *Pruner) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "starting audit pruner", "interval", p.interval, "retention", p.retention)

	p.waitWithJitter(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := p.PruneOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.WarnContext(ctx, "audit prune failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "audit pruner stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// PruneOnce deletes events older than the retention window and returns the count.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.clock.Now().Add(-p.retention)
	n, err := p.repo.DeleteBefore(ctx, cutoff)
	metrics.EmitAuditPruned(p.metrics, n, err)
	if err != nil {
		return n, fmt.Errorf("delete audit events before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if n > 0 {
		p.logger.InfoContext(ctx, "pruned audit events", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// waitWithJitter delays up to a tenth of the interval so replicas do not prune in lockstep.
func (p *Pruner) waitWithJitter(ctx context.Context) {
	maxJitter := int64(p.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	t := time.NewTimer(jitter)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
