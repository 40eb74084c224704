package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/sessionguard/internal/observability/statsd"
)

func TestEmitTenantResolution(t *testing.T) {
	t.Parallel()
	var sink statsd.Memory

	EmitTenantResolution(&sink, ResolutionMetric{Source: "cache", Result: ResultHit, Duration: 3 * time.Millisecond})
	EmitTenantResolution(&sink, ResolutionMetric{
		Source: "identity_provider",
		Result: ResultError,
		Err:    fmt.Errorf("fetch: %w", context.DeadlineExceeded),
	})

	samples := sink.Samples()
	require.Len(t, samples, 3)
	assert.Equal(t, TenantResolutionMS, samples[1].Name)
	assert.Equal(t, "timeout", samples[2].Tags["error_class"])
	assert.Equal(t, int64(1), sink.CountTotal(TenantResolution, map[string]string{"source": "cache"}))
}

func TestEmitLogout(t *testing.T) {
	t.Parallel()
	var sink statsd.Memory

	EmitLogout(&sink, nil)
	EmitLogout(&sink, errors.New("down"))

	assert.Equal(t, int64(1), sink.CountTotal(SessionLogout, map[string]string{"result": ResultSuccess}))
	assert.Equal(t, int64(1), sink.CountTotal(SessionLogout, map[string]string{"result": ResultError}))
}

func TestEmitters_NilSink(t *testing.T) {
	t.Parallel()

	EmitSessionTransition(nil, TransitionMetric{})
	EmitLogout(nil, nil)
	EmitTenantResolution(nil, ResolutionMetric{})
	EmitTenantConflict(nil, "session", "cache")
	EmitAuditDropped(nil, "session.warning")
	EmitCacheLookup(nil, "local", true)
}

func TestEmitCacheLookup(t *testing.T) {
	t.Parallel()
	var sink statsd.Memory

	EmitCacheLookup(&sink, "local", false)
	EmitCacheLookup(&sink, "redis", true)

	assert.Equal(t, int64(1), sink.CountTotal(CacheLookup, map[string]string{"tier": "local", "result": ResultMiss}))
	assert.Equal(t, int64(1), sink.CountTotal(CacheLookup, map[string]string{"tier": "redis", "result": ResultHit}))
}

func TestCloneTags(t *testing.T) {
	t.Parallel()

	assert.Nil(t, CloneTags(nil))
	src := map[string]string{"a": "b"}
	cp := CloneTags(src)
	cp["a"] = "c"
	assert.Equal(t, "b", src["a"])
}
