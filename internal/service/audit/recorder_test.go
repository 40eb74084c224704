package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	domainaudit "github.com/target/sessionguard/internal/domain/audit"
	"github.com/target/sessionguard/internal/mocks"
	"github.com/target/sessionguard/internal/observability/metrics"
	"github.com/target/sessionguard/internal/observability/statsd"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type captureWriter struct {
	mu     sync.Mutex
	events []domainaudit.Event
}

func (c *captureWriter) Write(_ context.Context, ev domainaudit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureWriter) names() []domainaudit.Name {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domainaudit.Name, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Event)
	}
	return out
}

func TestRecorder_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	w := &captureWriter{}
	r := NewRecorder(Options{Writers: []WriterRegistration{{Name: "capture", Writer: w}}})

	ctx := context.Background()
	r.Record(ctx, domainaudit.Event{Event: domainaudit.SessionStarted})
	r.Record(ctx, domainaudit.Event{Event: domainaudit.SessionWarning})
	r.Record(ctx, domainaudit.Event{Event: domainaudit.SessionExpired})

	require.NoError(t, r.Close(ctx))
	assert.Equal(t, []domainaudit.Name{
		domainaudit.SessionStarted,
		domainaudit.SessionWarning,
		domainaudit.SessionExpired,
	}, w.names())
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	blocking := WriterFunc(func(ctx context.Context, _ domainaudit.Event) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return nil
	})
	sink := &statsd.Memory{}
	r := NewRecorder(Options{
		Writers:         []WriterRegistration{{Name: "slow", Writer: blocking}},
		QueueSize:       1,
		DeliveryTimeout: time.Minute,
		Metrics:         sink,
	})

	ctx := context.Background()
	r.Record(ctx, domainaudit.Event{Event: domainaudit.SessionStarted})
	<-entered
	r.Record(ctx, domainaudit.Event{Event: domainaudit.SessionWarning})
	r.Record(ctx, domainaudit.Event{Event: domainaudit.SessionExpired})

	assert.Equal(t, int64(1), sink.CountTotal(metrics.AuditDropped, map[string]string{"event": "session.expired"}))

	close(release)
	require.NoError(t, r.Close(ctx))
}

func TestRecorder_WriterErrorsAreSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	failing := mocks.NewMockAuditWriter(ctrl)
	failing.EXPECT().Write(gomock.Any(), gomock.Any()).Return(errors.New("endpoint down")).Times(2)
	ok := &captureWriter{}

	r := NewRecorder(Options{Writers: []WriterRegistration{
		{Name: "failing", Writer: failing},
		{Writer: ok},
	}})
	ctx := context.Background()
	r.Record(ctx, domainaudit.Event{Event: domainaudit.TenantConflict})
	r.Record(ctx, domainaudit.Event{Event: domainaudit.TenantResolved})

	require.NoError(t, r.Close(ctx))
	assert.Len(t, ok.names(), 2)
}

func TestRecorder_RecordAfterCloseIsIgnored(t *testing.T) {
	w := &captureWriter{}
	r := NewRecorder(Options{Writers: []WriterRegistration{{Writer: w}}})
	ctx := context.Background()

	require.NoError(t, r.Close(ctx))
	r.Record(ctx, domainaudit.Event{Event: domainaudit.SessionStarted})

	assert.Empty(t, w.names())
	assert.ErrorIs(t, r.Close(ctx), ErrClosed)
}

func TestRecorder_NoWritersStillLogs(t *testing.T) {
	r := NewRecorder(Options{})
	assert.False(t, r.Enabled())
	r.Record(context.Background(), domainaudit.Event{Event: domainaudit.AuthLogin})
	require.NoError(t, r.Close(context.Background()))
}
