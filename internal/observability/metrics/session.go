package metrics

import (
	"time"

	obserrors "github.com/target/sessionguard/internal/observability/errors"
	"github.com/target/sessionguard/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultHit     = "hit"
	ResultMiss    = "miss"
)

// Metric names.
const (
	SessionTransition  = "session.transition"
	SessionLogout      = "session.logout"
	TenantResolution   = "tenant.resolution"
	TenantResolutionMS = "tenant.resolution.duration"
	TenantConflict     = "tenant.conflict"
	AuditDropped       = "audit.dropped"
	AuditPruned        = "audit.pruned"
	CacheLookup        = "cache.lookup"
)

// TransitionMetric describes one coordinator state change.
type TransitionMetric struct {
	Transition string
	Level      string
	RouteClass string
}

// EmitSessionTransition counts a coordinator transition.
func EmitSessionTransition(sink statsd.Sink, in TransitionMetric) {
	if sink == nil {
		return
	}
	sink.Count(SessionTransition, 1, map[string]string{
		"transition":  in.Transition,
		"level":       in.Level,
		"route_class": in.RouteClass,
	})
}

// EmitLogout counts a forced logout and whether the provider call succeeded.
func EmitLogout(sink statsd.Sink, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": ResultSuccess}
	if err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(err)
	}
	sink.Count(SessionLogout, 1, tags)
}

// ResolutionMetric captures one tenant resolution pass.
type ResolutionMetric struct {
	Source   string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitTenantResolution emits the resolution counter and, when measured, its duration.
func EmitTenantResolution(sink statsd.Sink, in ResolutionMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"source": in.Source,
		"result": in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	sink.Count(TenantResolution, 1, tags)
	if in.Duration > 0 {
		sink.Timing(TenantResolutionMS, in.Duration, CloneTags(tags))
	}
}

// EmitTenantConflict counts a disagreement between two tenant sources.
func EmitTenantConflict(sink statsd.Sink, winner, loser string) {
	if sink == nil {
		return
	}
	sink.Count(TenantConflict, 1, map[string]string{"winner": winner, "loser": loser})
}

// EmitAuditDropped counts audit events discarded because the queue was full.
func EmitAuditDropped(sink statsd.Sink, event string) {
	if sink == nil {
		return
	}
	sink.Count(AuditDropped, 1, map[string]string{"event": event})
}

// EmitAuditPruned counts persisted audit events removed by retention.
func EmitAuditPruned(sink statsd.Sink, count int64, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": ResultSuccess}
	if err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(err)
	}
	sink.Count(AuditPruned, count, tags)
}

// EmitCacheLookup counts a lookup against one cache tier.
func EmitCacheLookup(sink statsd.Sink, tier string, hit bool) {
	if sink == nil {
		return
	}
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	sink.Count(CacheLookup, 1, map[string]string{"tier": tier, "result": result})
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
