// Package notify forwards security-relevant audit events to paging and chat sinks.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/target/sessionguard/internal/domain/audit"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// SecurityAlert captures the canonical data we emit for security notifications.
type SecurityAlert struct {
	Event      audit.Name
	SessionID  string
	UserID     string
	TenantID   string
	Page       string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Summary is a one-line description used as a page title.
func (a SecurityAlert) Summary() string {
	switch a.Event {
	case audit.TenantConflict:
		return fmt.Sprintf("Tenant identifier conflict for user %s", fallback(a.UserID, "unknown"))
	default:
		return fmt.Sprintf("Security event %s", fallback(string(a.Event), "unknown"))
	}
}

// AlertFromEvent converts an audit event into an alert payload.
func AlertFromEvent(ev audit.Event) SecurityAlert {
	alert := SecurityAlert{
		Event:      ev.Event,
		SessionID:  ev.SessionID,
		UserID:     ev.UserID,
		TenantID:   ev.TenantID,
		Page:       ev.Page,
		Severity:   SeverityError,
		OccurredAt: ev.Timestamp,
	}
	if len(ev.Details) > 0 {
		alert.Metadata = make(map[string]string, len(ev.Details))
		for k, v := range ev.Details {
			alert.Metadata[k] = fmt.Sprint(v)
		}
	}
	return alert
}

// Sink describes a destination capable of consuming security alerts.
type Sink interface {
	SendSecurityAlert(ctx context.Context, alert SecurityAlert) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, alert SecurityAlert) error

// SendSecurityAlert implements the Sink interface.
func (f SinkFunc) SendSecurityAlert(ctx context.Context, alert SecurityAlert) error {
	if f == nil {
		return nil
	}
	return f(ctx, alert)
}

// Writer is an audit writer that forwards security events to a Sink and
// ignores everything else.
type Writer struct {
	sink Sink
}

// NewWriter wraps sink as an audit writer.
func NewWriter(sink Sink) *Writer {
	return &Writer{sink: sink}
}

// Write implements ports.AuditWriter.
func (w *Writer) Write(ctx context.Context, ev audit.Event) error {
	if w == nil || w.sink == nil || !ev.IsSecurity() {
		return nil
	}
	return w.sink.SendSecurityAlert(ctx, AlertFromEvent(ev))
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
