// Package audit fans audit events out to downstream writers without blocking the
// code paths that produce them.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	domainaudit "github.com/target/sessionguard/internal/domain/audit"
	"github.com/target/sessionguard/internal/observability/metrics"
	"github.com/target/sessionguard/internal/observability/statsd"
	"github.com/target/sessionguard/internal/ports"
)

const (
	defaultQueueSize       = 256
	defaultDeliveryTimeout = 3 * time.Second
)

// ErrClosed is returned by Close when the recorder was already closed.
var ErrClosed = errors.New("audit recorder closed")

// WriterFunc adapts a function to ports.AuditWriter.
type WriterFunc func(ctx context.Context, ev domainaudit.Event) error

// Write implements ports.AuditWriter.
func (f WriterFunc) Write(ctx context.Context, ev domainaudit.Event) error { return f(ctx, ev) }

// WriterRegistration pairs a writer with a name for logging.
type WriterRegistration struct {
	Name   string
	Writer ports.AuditWriter
}

// Options configures the recorder.
type Options struct {
	Writers         []WriterRegistration
	QueueSize       int
	DeliveryTimeout time.Duration
	Metrics         statsd.Sink
	Logger          *slog.Logger
}

var _ ports.AuditSink = (*Recorder)(nil)

// Recorder queues events for a single worker goroutine. When the queue is full new
// events are dropped with a warning; Record never blocks.
type Recorder struct {
	logger  *slog.Logger
	writers []WriterRegistration
	timeout time.Duration
	metrics statsd.Sink

	queue chan domainaudit.Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts the delivery worker. Call Close to stop it.
func NewRecorder(opts Options) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	timeout := opts.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}

	var writers []WriterRegistration
	for _, w := range opts.Writers {
		if w.Writer == nil {
			continue
		}
		if w.Name == "" {
			w.Name = "writer"
		}
		writers = append(writers, w)
	}

	r := &Recorder{
		logger:  logger.With("component", "audit_recorder"),
		writers: writers,
		timeout: timeout,
		metrics: opts.Metrics,
		queue:   make(chan domainaudit.Event, size),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record implements ports.AuditSink.
func (r *Recorder) Record(ctx context.Context, ev domainaudit.Event) {
	level := slog.LevelInfo
	if ev.IsSecurity() {
		level = slog.LevelWarn
	}
	r.logger.Log(ctx, level, "audit event",
		"event", string(ev.Event),
		"session_id", ev.SessionID,
		"user_id", ev.UserID,
		"tenant_id", ev.TenantID,
		"page", ev.Page,
	)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed || len(r.writers) == 0 {
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.logger.WarnContext(ctx, "audit queue full, dropping event", "event", string(ev.Event))
		metrics.EmitAuditDropped(r.metrics, string(ev.Event))
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.queue {
		r.deliver(ev)
	}
}

func (r *Recorder) deliver(ev domainaudit.Event) {
	var wg sync.WaitGroup
	for _, w := range r.writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()
			if err := w.Writer.Write(ctx, ev); err != nil {
				r.logger.Warn("audit delivery failed",
					"writer", w.Name,
					"event", string(ev.Event),
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether any writer is registered.
func (r *Recorder) Enabled() bool { return len(r.writers) > 0 }

// Close stops accepting events and waits for queued ones to be delivered or for
// ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
