package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/target/sessionguard/internal/domain/audit"
	"github.com/target/sessionguard/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when webhook url missing")
	}
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#security",
		Username:   "bot",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.SecurityAlert{
		Event:     audit.TenantConflict,
		SessionID: "sess-1",
		UserID:    "user-1",
		TenantID:  "a1b2c3d4",
		Page:      "/reports",
		Severity:  notify.SeverityError,
		Metadata:  map[string]string{"idp_tenant": "ffff0000"},
	})

	if msg["username"] != "bot" {
		t.Fatalf("expected username to be preserved, got %v", msg["username"])
	}
	if msg["channel"] != "#security" {
		t.Fatalf("expected channel to be set, got %v", msg["channel"])
	}

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}
	if !containsAll(
		text,
		[]string{"Security alert", "tenant.conflict", "sess-1", "user-1", "a1b2c3d4", "/reports", "error", "idp_tenant: ffff0000"},
	) {
		t.Fatalf("message text missing fields: %s", text)
	}
}

func TestFormatMessageDefaultsUsername(t *testing.T) {
	client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := client.formatMessage(notify.SecurityAlert{Event: audit.TenantConflict})
	if msg["username"] != "sessionguard" {
		t.Fatalf("expected default username, got %v", msg["username"])
	}
	if _, ok := msg["channel"]; ok {
		t.Fatalf("expected channel to be omitted")
	}
}

func TestFormatMessageEscapesMetadata(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.SecurityAlert{
		Event:    audit.TenantConflict,
		Metadata: map[string]string{"source": "legacy & <cookie>"},
	})

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}

	if !strings.Contains(text, "legacy &amp; &lt;cookie&gt;") {
		t.Fatalf("expected escaped metadata, got: %s", text)
	}
}

func TestFormatUserValuePermutations(t *testing.T) {
	tcs := []struct {
		name   string
		userID string
		prefix string
		want   string
	}{
		{
			name:   "id with link",
			userID: "user-1",
			prefix: "https://admin.example/users",
			want:   "<https://admin.example/users/user-1|user-1>",
		},
		{
			name:   "id without prefix",
			userID: "user-2",
			want:   "user-2",
		},
		{
			name:   "id with invalid prefix",
			userID: "user-3",
			prefix: "not a url",
			want:   "user-3",
		},
		{
			name:   "empty id",
			prefix: "https://admin.example/users",
			want:   "",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(Config{
				WebhookURL:    "https://hooks.slack.com/services/test",
				UserURLPrefix: tc.prefix,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := client.formatUserValue(tc.userID)
			if got != tc.want {
				t.Fatalf("formatUserValue(%q) = %q, want %q", tc.userID, got, tc.want)
			}
		})
	}
}

func TestSendSecurityAlertRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	var lastBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if calls.Add(1) == 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		lastBody = body
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := client.SendSecurityAlert(context.Background(), notify.SecurityAlert{Event: audit.TenantConflict, UserID: "u1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}

	var decoded map[string]any
	if err := json.Unmarshal(lastBody, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if text, _ := decoded["text"].(string); !strings.Contains(text, "u1") {
		t.Fatalf("expected user in delivered text: %v", decoded["text"])
	}
}

func TestSendSecurityAlertReturnsLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendSecurityAlert(context.Background(), notify.SecurityAlert{Event: audit.TenantConflict})
	if err == nil || !strings.Contains(err.Error(), "invalid_token") {
		t.Fatalf("expected webhook error, got %v", err)
	}
}

func containsAll(text string, substrs []string) bool {
	for _, s := range substrs {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return true
}
