package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/target/sessionguard/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL    string
	Channel       string
	Username      string
	Timeout       time.Duration
	RetryLimit    int
	Client        *http.Client
	UserURLPrefix string
}

// Client delivers security alerts to a Slack webhook.
type Client struct {
	webhookURL    string
	channel       string
	username      string
	retryLimit    int
	userURLPrefix string
	client        *http.Client
}

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	retries := cfg.RetryLimit
	if retries < 0 {
		retries = 0
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		webhookURL:    webhookURL,
		channel:       strings.TrimSpace(cfg.Channel),
		username:      fallbackString(strings.TrimSpace(cfg.Username), "sessionguard"),
		retryLimit:    retries,
		userURLPrefix: strings.TrimSpace(cfg.UserURLPrefix),
		client:        hc,
	}, nil
}

// SendSecurityAlert posts a formatted message to Slack.
func (c *Client) SendSecurityAlert(ctx context.Context, alert notify.SecurityAlert) error {
	return notify.PostJSON(ctx, c.client, c.webhookURL, "slack webhook", c.retryLimit, c.formatMessage(alert))
}

func (c *Client) formatMessage(alert notify.SecurityAlert) map[string]any {
	timestamp := alert.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	text := strings.Builder{}
	writeSlackHeader(&text, alert)
	appendSlackDetails(&text, alert, c.formatUserValue(alert.UserID))
	appendSlackMetadata(&text, alert.Metadata)
	writeSlackTimestamp(&text, timestamp)

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func writeSlackHeader(text *strings.Builder, alert notify.SecurityAlert) {
	text.WriteString("*Security alert*")
	if alert.Event != "" {
		text.WriteString(" `")
		text.WriteString(string(alert.Event))
		text.WriteByte('`')
	}
	text.WriteByte('\n')
	text.WriteString(escapeSlackText(alert.Summary()))
	text.WriteByte('\n')
}

func appendSlackDetails(text *strings.Builder, alert notify.SecurityAlert, userValue string) {
	fields := []struct {
		label string
		value string
	}{
		{"Severity", fallbackString(alert.Severity, notify.SeverityCritical)},
		{"User", userValue},
		{"Session", escapeSlackText(alert.SessionID)},
		{"Tenant", escapeSlackText(alert.TenantID)},
		{"Page", escapeSlackText(alert.Page)},
	}

	for _, field := range fields {
		appendSlackField(text, field.label, field.value)
	}
}

func (c *Client) formatUserValue(userID string) string {
	raw := strings.TrimSpace(userID)
	if raw == "" {
		return ""
	}
	id := escapeSlackText(raw)
	if link := c.buildUserLink(raw); link != "" {
		return fmt.Sprintf("<%s|%s>", link, id)
	}
	return id
}

func escapeSlackText(value string) string {
	if value == "" {
		return ""
	}
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	).Replace(value)
}

func (c *Client) buildUserLink(userID string) string {
	prefix := strings.TrimSpace(c.userURLPrefix)
	if prefix == "" {
		return ""
	}

	u, err := url.Parse(prefix)
	if err != nil {
		return ""
	}
	if u.Scheme == "" || u.Host == "" {
		return ""
	}

	link, err := url.JoinPath(u.String(), userID)
	if err != nil {
		return ""
	}

	return link
}

func appendSlackField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}

func appendSlackMetadata(text *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	text.WriteString("• Metadata:\n")
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := metadata[k]
		text.WriteString("    • ")
		text.WriteString(escapeSlackText(k))
		text.WriteString(": ")
		text.WriteString(escapeSlackText(v))
		text.WriteByte('\n')
	}
}

func writeSlackTimestamp(text *strings.Builder, timestamp time.Time) {
	text.WriteString("• Timestamp: ")
	text.WriteString(timestamp.UTC().Format(time.RFC3339))
}
