package timeout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/target/sessionguard/internal/clock"
	"github.com/target/sessionguard/internal/observability/statsd"
	"github.com/target/sessionguard/internal/ports"
)

const redirectRetention = time.Hour

var _ ports.Navigator = (*Registry)(nil)

// RegistryOptions bundles dependencies shared by every coordinator.
type RegistryOptions struct {
	Config   Config
	Clock    clock.Clock
	Auth     ports.AuthGateway
	Recovery ports.RecoveryStore
	Audit    ports.AuditSink
	Cleaners []ports.SessionCleaner
	Inbox    *Inbox
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

type pendingRedirect struct {
	url string
	at  time.Time
}

// Registry owns one coordinator per session id. It is also the coordinators'
// Navigator: a forced logout parks the redirect here until the tab picks it up.
type Registry struct {
	opts  RegistryOptions
	clock clock.Clock
	inbox *Inbox

	mu        sync.Mutex
	coords    map[string]*Coordinator
	redirects map[string]pendingRedirect
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Inbox == nil {
		opts.Inbox = NewInbox(0)
	}
	opts.Config = opts.Config.withDefaults()
	return &Registry{
		opts:      opts,
		clock:     opts.Clock,
		inbox:     opts.Inbox,
		coords:    make(map[string]*Coordinator),
		redirects: make(map[string]pendingRedirect),
	}
}

// Inbox returns the shared notice inbox.
func (r *Registry) Inbox() *Inbox { return r.inbox }

// Get returns the coordinator for sessionID, if one exists.
func (r *Registry) Get(sessionID string) (*Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coords[sessionID]
	return c, ok
}

// Ensure returns the coordinator for sessionID, creating an idle one if needed.
func (r *Registry) Ensure(sessionID, userID, tenantID string) *Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.coords[sessionID]; ok {
		if tenantID != "" {
			c.SetTenant(tenantID)
		}
		return c
	}
	c := NewCoordinator(CoordinatorOptions{
		SessionID: sessionID,
		UserID:    userID,
		TenantID:  tenantID,
		Config:    r.opts.Config,
		Clock:     r.clock,
		Auth:      r.opts.Auth,
		Navigator: r,
		Notifier:  r.inbox,
		Recovery:  r.opts.Recovery,
		Audit:     r.opts.Audit,
		Cleaners:  r.opts.Cleaners,
		Metrics:   r.opts.Metrics,
		Logger:    r.opts.Logger,
	})
	r.coords[sessionID] = c
	delete(r.redirects, sessionID)
	return c
}

// Redirect implements ports.Navigator. The expired coordinator is dropped and the
// target is held for TakeRedirect.
func (r *Registry) Redirect(ctx context.Context, sessionID, url string) {
	now := r.clock.Now()
	r.mu.Lock()
	delete(r.coords, sessionID)
	r.redirects[sessionID] = pendingRedirect{url: url, at: now}
	for id, p := range r.redirects {
		if now.Sub(p.at) > redirectRetention {
			delete(r.redirects, id)
		}
	}
	r.mu.Unlock()
	r.opts.Logger.DebugContext(ctx, "forced redirect parked", "session_id", sessionID)
}

// TakeRedirect returns and clears the pending forced-logout redirect.
func (r *Registry) TakeRedirect(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.redirects[sessionID]
	delete(r.redirects, sessionID)
	return p.url, ok
}

// Remove stops and forgets the coordinator for sessionID without logging out.
func (r *Registry) Remove(ctx context.Context, sessionID string) {
	r.mu.Lock()
	c, ok := r.coords[sessionID]
	delete(r.coords, sessionID)
	delete(r.redirects, sessionID)
	r.mu.Unlock()
	if ok {
		c.Stop(ctx)
	}
	_ = r.inbox.ClearSession(ctx, sessionID)
}

// Len reports how many sessions are tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.coords)
}

// Close stops every coordinator.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	coords := make([]*Coordinator, 0, len(r.coords))
	for _, c := range r.coords {
		coords = append(coords, c)
	}
	clear(r.coords)
	r.mu.Unlock()
	for _, c := range coords {
		c.Stop(ctx)
	}
}
