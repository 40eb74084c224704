// Package timeout implements the per-session inactivity coordinator: progressive
// warnings, a cancellable grace period and the fail-safe forced logout that saves a
// recovery snapshot before redirecting to sign-in.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/target/sessionguard/internal/clock"
	"github.com/target/sessionguard/internal/domain/audit"
	"github.com/target/sessionguard/internal/domain/session"
	apperrors "github.com/target/sessionguard/internal/errors"
	"github.com/target/sessionguard/internal/observability/metrics"
	"github.com/target/sessionguard/internal/observability/statsd"
	"github.com/target/sessionguard/internal/ports"
)

// ErrNotRunning is returned when an operation needs a started coordinator.
var ErrNotRunning = errors.New("session timeout coordinator is not running")

const (
	timerTick  = "tick"
	timerGrace = "grace"
)

// CoordinatorOptions bundles dependencies for NewCoordinator.
type CoordinatorOptions struct {
	SessionID string
	UserID    string
	TenantID  string

	Config Config
	Clock  clock.Clock

	Auth      ports.AuthGateway
	Navigator ports.Navigator
	Notifier  ports.Notifier
	Recovery  ports.RecoveryStore
	Audit     ports.AuditSink
	Cleaners  []ports.SessionCleaner
	Forms     *FormTracker
	Metrics   statsd.Sink
	Logger    *slog.Logger
}

// Coordinator owns the timeout state of one authenticated session. All timers go
// through a named Scheduler so a reset or cancel clears them together, and every
// callback re-checks the episode it was armed in.
type Coordinator struct {
	sessionID string
	userID    string
	cfg       Config
	clock     clock.Clock
	sched     *clock.Scheduler
	limiter   *rate.Limiter
	forms     *FormTracker

	auth      ports.AuthGateway
	navigator ports.Navigator
	notifier  ports.Notifier
	recovery  ports.RecoveryStore
	audit     ports.AuditSink
	cleaners  []ports.SessionCleaner
	metrics   statsd.Sink
	logger    *slog.Logger

	mu            sync.Mutex
	tenantID      string
	episode       uint64
	running       bool
	armed         bool
	route         string
	scroll        int
	timeout       time.Duration
	lastActivity  time.Time
	deadline      time.Time
	level         session.WarningLevel
	extended      bool
	inGrace       bool
	graceDeadline time.Time
}

// NewCoordinator builds an idle coordinator. Call Start to arm it.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	cfg := opts.Config.withDefaults()
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	forms := opts.Forms
	if forms == nil {
		forms = NewFormTracker()
	}

	limit := rate.Inf
	if cfg.ActivityThrottle > 0 {
		limit = rate.Every(cfg.ActivityThrottle)
	}

	return &Coordinator{
		sessionID: opts.SessionID,
		userID:    opts.UserID,
		tenantID:  opts.TenantID,
		cfg:       cfg,
		clock:     clk,
		sched:     clock.NewScheduler(clk),
		limiter:   rate.NewLimiter(limit, 1),
		forms:     forms,
		auth:      opts.Auth,
		navigator: opts.Navigator,
		notifier:  opts.Notifier,
		recovery:  opts.Recovery,
		audit:     opts.Audit,
		cleaners:  opts.Cleaners,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "timeout_coordinator", "session_id", opts.SessionID),
		timeout:   cfg.Policy.Default,
	}
}

// Forms returns the tracker whose dirty state drives the unsaved-changes extension.
func (c *Coordinator) Forms() *FormTracker { return c.forms }

// SetTenant records the tenant id attached to audit events and snapshots.
func (c *Coordinator) SetTenant(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tenantID = tenantID
}

// Start begins tracking on route and arms the countdown. Calling it again re-arms.
func (c *Coordinator) Start(ctx context.Context, route string) {
	var out outbox
	c.mu.Lock()
	now := c.clock.Now()
	c.running = true
	c.setRouteLocked(route)
	c.armLocked(now)
	timeout := c.timeout
	out.event(c.eventLocked(now, audit.SessionStarted, map[string]any{
		"timeout_ms": timeout.Milliseconds(),
	}))
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "session timeout started", "route", route, "timeout", timeout)
	c.flush(ctx, &out)
}

// UpdateActivity registers a user interaction. Only qualifying kinds count and bursts
// within the throttle window collapse into the first event. It reports whether the
// countdown was reset.
func (c *Coordinator) UpdateActivity(ctx context.Context, kind session.ActivityKind, source string) bool {
	if !kind.Qualifies() {
		return false
	}

	var out outbox
	c.mu.Lock()
	if !c.running || !c.cfg.SlidingWindow {
		c.mu.Unlock()
		return false
	}
	now := c.clock.Now()
	if allowed := c.limiter.AllowN(now, 1); !allowed && c.armed {
		c.mu.Unlock()
		return false
	}
	prev := c.level
	wasGrace := c.inGrace
	c.armLocked(now)
	if prev != session.LevelNone || wasGrace {
		out.event(c.eventLocked(now, audit.SessionActivityReset, map[string]any{
			"kind":       string(kind),
			"source":     source,
			"from_level": prev.String(),
			"from_grace": wasGrace,
		}))
		out.transition(c.transitionLocked("reset", session.LevelNone))
	}
	c.mu.Unlock()

	c.flush(ctx, &out)
	return true
}

// CancelTimeout clears every timer and all warning and grace state. It is safe from
// any state and does not re-arm; the next activity, route change or extension does.
func (c *Coordinator) CancelTimeout(ctx context.Context) {
	var out outbox
	c.mu.Lock()
	now := c.clock.Now()
	prev := c.level
	wasGrace := c.inGrace
	cleared := c.disarmLocked()
	c.lastActivity = now
	if c.running {
		out.event(c.eventLocked(now, audit.SessionCancelled, map[string]any{
			"from_level":     prev.String(),
			"from_grace":     wasGrace,
			"timers_cleared": cleared,
		}))
		out.transition(c.transitionLocked("cancel", session.LevelNone))
		if wasGrace {
			out.notice(session.Notice{At: now, Kind: session.NoticeCancelled, Message: "Sign-out cancelled."})
		}
	}
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "session timeout cancelled", "from_level", prev.String(), "from_grace", wasGrace)
	c.flush(ctx, &out)
}

// ExtendSession handles "stay signed in": the countdown is re-armed like activity
// (aborting a pending grace logout) and the auth collaborator is told about it.
// Collaborator failures are logged only.
func (c *Coordinator) ExtendSession(ctx context.Context) error {
	var out outbox
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	now := c.clock.Now()
	prev := c.level
	wasGrace := c.inGrace
	c.armLocked(now)
	c.limiter.AllowN(now, 1)
	out.event(c.eventLocked(now, audit.SessionExtended, map[string]any{
		"from_level": prev.String(),
		"from_grace": wasGrace,
	}))
	out.transition(c.transitionLocked("extend", session.LevelNone))
	out.notice(session.Notice{At: now, Kind: session.NoticeExtended, Message: "Your session has been extended."})
	c.mu.Unlock()

	c.flush(ctx, &out)

	if c.auth != nil {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.LogoutTimeout)
		defer cancel()
		if err := c.auth.ExtendSession(callCtx, c.sessionID); err != nil {
			c.logger.WarnContext(ctx, "extend session call failed", "error", err)
		}
	}
	return nil
}

// SetRoute records the current route and scroll position. Navigating to a different
// route while running counts as activity and re-arms with that route's timeout.
func (c *Coordinator) SetRoute(ctx context.Context, path string, scroll int) {
	var out outbox
	c.mu.Lock()
	c.scroll = scroll
	if path == "" || path == c.route {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	from := c.route
	c.setRouteLocked(path)
	if c.running {
		c.armLocked(now)
		c.limiter.AllowN(now, 1)
		out.event(c.eventLocked(now, audit.SessionRouteChanged, map[string]any{
			"from":        from,
			"route_class": string(c.cfg.Policy.Classify(path)),
			"timeout_ms":  c.timeout.Milliseconds(),
		}))
	}
	c.mu.Unlock()

	c.flush(ctx, &out)
}

// Stop clears all timers without logging out, as on tab unload.
func (c *Coordinator) Stop(ctx context.Context) {
	var out outbox
	c.mu.Lock()
	wasRunning := c.running
	c.disarmLocked()
	c.running = false
	if wasRunning {
		out.event(c.eventLocked(c.clock.Now(), audit.SessionStopped, nil))
	}
	c.mu.Unlock()

	c.flush(ctx, &out)
}

// State returns a snapshot of the reactive fields.
func (c *Coordinator) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	st := session.State{
		LastActivityAt:    c.lastActivity,
		WarningLevel:      c.level,
		IsInGracePeriod:   c.inGrace,
		CurrentTimeout:    c.timeout,
		HasUnsavedChanges: c.forms.HasUnsavedChanges(),
		Route:             c.route,
		Running:           c.running,
		Extended:          c.extended,
	}
	switch {
	case c.inGrace:
		st.GraceRemaining = max(c.graceDeadline.Sub(now), 0)
	case c.level != session.LevelNone:
		st.TimeRemaining = max(c.deadline.Sub(now), 0)
	}
	return st
}

// PendingTimers reports how many timers are armed.
func (c *Coordinator) PendingTimers() int { return c.sched.Pending() }

func (c *Coordinator) setRouteLocked(route string) {
	if route != "" {
		c.route = route
	}
	c.timeout = c.cfg.Policy.TimeoutFor(c.route)
}

// armLocked starts a fresh inactivity episode at now.
func (c *Coordinator) armLocked(now time.Time) {
	c.disarmLocked()
	c.armed = true
	c.lastActivity = now
	c.deadline = now.Add(c.timeout)
	c.scheduleTickLocked(c.cfg.nextTick(session.LevelNone, c.timeout))
}

// disarmLocked cancels every timer and resets warning state. It returns the number
// of timers that were pending.
func (c *Coordinator) disarmLocked() int {
	c.episode++
	n := c.sched.CancelAll()
	c.armed = false
	c.level = session.LevelNone
	c.extended = false
	c.inGrace = false
	c.graceDeadline = time.Time{}
	return n
}

func (c *Coordinator) scheduleTickLocked(d time.Duration) {
	ep := c.episode
	c.sched.Schedule(timerTick, d, func() { c.onTick(ep) })
}

func (c *Coordinator) onTick(ep uint64) {
	ctx := context.Background()
	var out outbox

	c.mu.Lock()
	if ep != c.episode || !c.armed || c.inGrace {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	remaining := c.deadline.Sub(now)

	target := max(c.level, c.cfg.levelFor(remaining))
	for l := c.level + 1; l <= target; l++ {
		c.raiseLocked(&out, now, l, remaining)
	}

	if c.level >= session.LevelUrgent && !c.extended && c.cfg.UnsavedExtension > 0 && c.forms.HasUnsavedChanges() {
		c.extended = true
		c.deadline = c.deadline.Add(c.cfg.UnsavedExtension)
		remaining = c.deadline.Sub(now)
		out.event(c.eventLocked(now, audit.SessionUnsavedExtension, map[string]any{
			"extension_ms": c.cfg.UnsavedExtension.Milliseconds(),
			"remaining_ms": remaining.Milliseconds(),
		}))
		out.notice(session.Notice{
			At:            now,
			Kind:          session.NoticeUnsavedExtension,
			Level:         c.level,
			TimeRemaining: remaining,
			Message:       "You have unsaved changes, so your session was extended. Save your work soon.",
		})
	}

	if remaining <= 0 {
		c.enterGraceLocked(&out, now)
	} else {
		c.scheduleTickLocked(c.cfg.nextTick(c.level, remaining))
	}
	c.mu.Unlock()

	c.flush(ctx, &out)
}

func (c *Coordinator) raiseLocked(out *outbox, now time.Time, l session.WarningLevel, remaining time.Duration) {
	c.level = l
	remaining = max(remaining, 0)
	out.event(c.eventLocked(now, audit.SessionWarning, map[string]any{
		"level":        l.String(),
		"remaining_ms": remaining.Milliseconds(),
	}))
	out.transition(c.transitionLocked("warning", l))
	out.notice(session.Notice{
		At:            now,
		Kind:          session.NoticeWarning,
		Level:         l,
		TimeRemaining: remaining,
		Message:       fmt.Sprintf("Your session will expire in %s due to inactivity.", remaining.Round(time.Second)),
	})
	out.log(func(ctx context.Context) {
		c.logger.InfoContext(ctx, "session warning raised", "level", l.String(), "remaining", remaining)
	})
}

func (c *Coordinator) enterGraceLocked(out *outbox, now time.Time) {
	c.sched.Cancel(timerTick)
	c.inGrace = true
	c.graceDeadline = now.Add(c.cfg.GracePeriod)
	ep := c.episode
	c.sched.Schedule(timerGrace, c.cfg.GracePeriod, func() { c.onGraceExpired(ep) })

	out.event(c.eventLocked(now, audit.SessionGraceStarted, map[string]any{
		"grace_ms": c.cfg.GracePeriod.Milliseconds(),
	}))
	out.transition(c.transitionLocked("grace", c.level))
	out.notice(session.Notice{
		At:            now,
		Kind:          session.NoticeGrace,
		Level:         c.level,
		TimeRemaining: c.cfg.GracePeriod,
		Message:       fmt.Sprintf("Signing you out in %s. Choose Stay signed in to continue.", c.cfg.GracePeriod),
	})
}

func (c *Coordinator) onGraceExpired(ep uint64) {
	ctx := context.Background()

	c.mu.Lock()
	if ep != c.episode || !c.inGrace {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	snap := session.RecoverySnapshot{
		Timestamp:         now,
		CurrentPath:       c.route,
		FormData:          c.forms.Snapshot(),
		ScrollPosition:    c.scroll,
		HasUnsavedChanges: c.forms.HasUnsavedChanges(),
		UserID:            c.userID,
		TenantID:          c.tenantID,
		Reason:            session.ReasonTimeout,
	}
	c.disarmLocked()
	c.running = false
	routeClass := string(c.cfg.Policy.Classify(c.route))
	c.mu.Unlock()

	c.expire(ctx, snap, routeClass)
}

// expire runs the forced logout sequence. Every step proceeds even if an earlier one
// failed so the user always ends up on the sign-in page.
func (c *Coordinator) expire(ctx context.Context, snap session.RecoverySnapshot, routeClass string) {
	var logoutErr error
	if c.auth != nil {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.LogoutTimeout)
		if err := c.auth.Logout(callCtx, c.sessionID); err != nil {
			logoutErr = apperrors.Wrap(err, apperrors.ErrCodeLogoutCallFailed, "logout call failed")
		}
		cancel()
	}
	metrics.EmitLogout(c.metrics, logoutErr)
	if logoutErr != nil {
		c.logger.ErrorContext(ctx, "forced logout call failed, continuing local sign-out", "error", logoutErr)
		c.record(ctx, c.newEvent(snap.Timestamp, snap, audit.SessionLogoutFailed, map[string]any{
			"error": logoutErr.Error(),
		}))
	}

	c.forms.Clear()
	for _, cl := range c.cleaners {
		if err := cl.ClearSession(ctx, c.sessionID); err != nil {
			c.logger.WarnContext(ctx, "clear session state failed", "error", err)
		}
	}

	if c.recovery != nil && c.userID != "" {
		if err := c.recovery.Save(ctx, c.userID, snap, c.cfg.RecoveryTTL); err != nil {
			c.logger.WarnContext(ctx, "save recovery snapshot failed", "error", err)
		}
	}

	target := session.SignInURL(c.cfg.SignInPath, session.ReasonTimeout, snap.CurrentPath)
	c.record(ctx, c.newEvent(snap.Timestamp, snap, audit.SessionExpired, map[string]any{
		"logout_ok":   logoutErr == nil,
		"unsaved":     snap.HasUnsavedChanges,
		"route_class": routeClass,
	}))
	metrics.EmitSessionTransition(c.metrics, metrics.TransitionMetric{
		Transition: "expired",
		Level:      session.LevelFinal.String(),
		RouteClass: routeClass,
	})
	if c.notifier != nil {
		c.notifier.Notify(ctx, c.sessionID, session.Notice{
			At:      snap.Timestamp,
			Kind:    session.NoticeExpired,
			Message: session.ReasonTimeout.Message(),
		})
	}
	c.logger.InfoContext(ctx, "session expired after inactivity", "redirect", target)
	if c.navigator != nil {
		c.navigator.Redirect(ctx, c.sessionID, target)
	}
}

func (c *Coordinator) eventLocked(now time.Time, name audit.Name, details map[string]any) audit.Event {
	return audit.Event{
		Timestamp: now,
		Event:     name,
		Page:      c.route,
		SessionID: c.sessionID,
		UserID:    c.userID,
		TenantID:  c.tenantID,
		Details:   details,
	}
}

func (c *Coordinator) newEvent(
	now time.Time,
	snap session.RecoverySnapshot,
	name audit.Name,
	details map[string]any,
) audit.Event {
	return audit.Event{
		Timestamp: now,
		Event:     name,
		Page:      snap.CurrentPath,
		SessionID: c.sessionID,
		UserID:    snap.UserID,
		TenantID:  snap.TenantID,
		Details:   details,
	}
}

func (c *Coordinator) transitionLocked(transition string, l session.WarningLevel) metrics.TransitionMetric {
	return metrics.TransitionMetric{
		Transition: transition,
		Level:      l.String(),
		RouteClass: string(c.cfg.Policy.Classify(c.route)),
	}
}

func (c *Coordinator) record(ctx context.Context, ev audit.Event) {
	if c.audit != nil {
		c.audit.Record(ctx, ev)
	}
}

// outbox collects side effects produced under the lock so they run after it is released.
type outbox struct {
	notices     []session.Notice
	events      []audit.Event
	transitions []metrics.TransitionMetric
	logs        []func(context.Context)
}

func (o *outbox) notice(n session.Notice) { o.notices = append(o.notices, n) }

func (o *outbox) event(ev audit.Event) { o.events = append(o.events, ev) }

func (o *outbox) transition(t metrics.TransitionMetric) { o.transitions = append(o.transitions, t) }

func (o *outbox) log(fn func(context.Context)) { o.logs = append(o.logs, fn) }

func (c *Coordinator) flush(ctx context.Context, o *outbox) {
	for _, fn := range o.logs {
		fn(ctx)
	}
	for _, t := range o.transitions {
		metrics.EmitSessionTransition(c.metrics, t)
	}
	for _, ev := range o.events {
		c.record(ctx, ev)
	}
	if c.notifier != nil {
		for _, n := range o.notices {
			c.notifier.Notify(ctx, c.sessionID, n)
		}
	}
}
