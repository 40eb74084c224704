// Package auditpost delivers audit events to the backend audit endpoint.
package auditpost

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/target/sessionguard/internal/domain/audit"
	"github.com/target/sessionguard/internal/observability/notify"
	"github.com/target/sessionguard/internal/ports"
)

// Config captures the endpoint and delivery policy.
type Config struct {
	Endpoint   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Backoff is the base delay between attempts; attempt n waits n*Backoff.
	Backoff time.Duration
}

// Client POSTs each event as JSON. Delivery is best effort: transport failures and
// 5xx/429 responses are retried with linear backoff, other statuses are not.
type Client struct {
	delivery notify.Delivery
}

var _ ports.AuditWriter = (*Client)(nil)

// NewClient builds an audit endpoint client.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("audit endpoint url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{delivery: notify.Delivery{
		Client:     hc,
		Endpoint:   endpoint,
		Name:       "audit endpoint",
		RetryLimit: max(cfg.RetryLimit, 0),
		Backoff:    cfg.Backoff,
		Retry:      retryable,
	}}, nil
}

// Write implements ports.AuditWriter.
func (c *Client) Write(ctx context.Context, ev audit.Event) error {
	return c.delivery.Post(ctx, ev)
}

// retryable repeats transport failures and retryable statuses only.
func retryable(err error) bool {
	var se *notify.StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
