package pagerduty

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/sessionguard/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	Endpoint   string // default APIEndpoint
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	endpoint   string
	routingKey string
	source     string
	component  string
	retryLimit int
	client     *http.Client
}

// NewClient constructs a PagerDuty events client from config. Callers must provide a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	retries := max(cfg.RetryLimit, 0)

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		endpoint:   fallbackString(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		routingKey: key,
		source:     fallbackString(strings.TrimSpace(cfg.Source), "sessionguard"),
		component:  fallbackString(strings.TrimSpace(cfg.Component), "tenant-resolver"),
		retryLimit: retries,
		client:     hc,
	}, nil
}

// SendSecurityAlert submits a trigger event to PagerDuty.
func (c *Client) SendSecurityAlert(ctx context.Context, alert notify.SecurityAlert) error {
	return notify.PostJSON(ctx, c.client, c.endpoint, "pagerduty api", c.retryLimit, c.buildEvent(alert))
}

func (c *Client) buildEvent(alert notify.SecurityAlert) map[string]any {
	severity := fallbackString(strings.ToLower(alert.Severity), notify.SeverityCritical)

	occurredAt := alert.OccurredAt.UTC()
	if alert.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	custom := map[string]any{
		"event":      string(alert.Event),
		"session_id": alert.SessionID,
		"user_id":    alert.UserID,
		"tenant_id":  alert.TenantID,
		"page":       alert.Page,
	}

	for k, v := range alert.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	// One incident per session and event type; repeats within a session are folded.
	dedupKey := fmt.Sprintf("%s:%s", alert.Event, alert.SessionID)
	dedupKey = strings.Trim(dedupKey, ":")

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey,
		"payload": map[string]any{
			"summary":        alert.Summary(),
			"severity":       severity,
			"source":         c.source,
			"component":      c.component,
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}

func fallbackString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
