package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	domainsession "github.com/target/sessionguard/internal/domain/session"
	"github.com/target/sessionguard/internal/ports"
	"github.com/target/sessionguard/internal/service/timeout"
)

// CoordinatorRegistry is the per-session coordinator lookup used by the tab API.
type CoordinatorRegistry interface {
	Ensure(sessionID, userID, tenantID string) *timeout.Coordinator
	Get(sessionID string) (*timeout.Coordinator, bool)
	TakeRedirect(sessionID string) (string, bool)
	Remove(ctx context.Context, sessionID string)
	Inbox() *timeout.Inbox
}

// SessionHandlers expose the inactivity coordinator to the browser tab.
type SessionHandlers struct {
	Registry     CoordinatorRegistry
	Recovery     ports.RecoveryStore
	CookieDomain string
	Logger       *slog.Logger
}

func (h *SessionHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type noticeResponse struct {
	At              time.Time                  `json:"at"`
	Kind            domainsession.NoticeKind   `json:"kind"`
	Level           domainsession.WarningLevel `json:"level"`
	TimeRemainingMS int64                      `json:"time_remaining_ms"`
	Message         string                     `json:"message"`
}

type stateResponse struct {
	Running           bool                       `json:"running"`
	WarningLevel      domainsession.WarningLevel `json:"warning_level"`
	TimeRemainingMS   int64                      `json:"time_remaining_ms"`
	IsInGracePeriod   bool                       `json:"is_in_grace_period"`
	GraceRemainingMS  int64                      `json:"grace_remaining_ms"`
	CurrentTimeoutMS  int64                      `json:"current_timeout_ms"`
	HasUnsavedChanges bool                       `json:"has_unsaved_changes"`
	LastActivityAt    time.Time                  `json:"last_activity_at"`
	Route             string                     `json:"route,omitempty"`
	Extended          bool                       `json:"extended"`
	ActivityReset     bool                       `json:"activity_reset,omitempty"`

	Notices    []noticeResponse `json:"notices,omitempty"`
	Expired    bool             `json:"expired"`
	RedirectTo string           `json:"redirect_to,omitempty"`
}

func newStateResponse(st domainsession.State) stateResponse {
	return stateResponse{
		Running:           st.Running,
		WarningLevel:      st.WarningLevel,
		TimeRemainingMS:   st.TimeRemaining.Milliseconds(),
		IsInGracePeriod:   st.IsInGracePeriod,
		GraceRemainingMS:  st.GraceRemaining.Milliseconds(),
		CurrentTimeoutMS:  st.CurrentTimeout.Milliseconds(),
		HasUnsavedChanges: st.HasUnsavedChanges,
		LastActivityAt:    st.LastActivityAt,
		Route:             st.Route,
		Extended:          st.Extended,
	}
}

func newNoticeResponses(in []domainsession.Notice) []noticeResponse {
	if len(in) == 0 {
		return nil
	}
	out := make([]noticeResponse, 0, len(in))
	for _, n := range in {
		out = append(out, noticeResponse{
			At:              n.At,
			Kind:            n.Kind,
			Level:           n.Level,
			TimeRemainingMS: n.TimeRemaining.Milliseconds(),
			Message:         n.Message,
		})
	}
	return out
}

var errNoSession = errors.New("authentication required")

func writeNoSession(w http.ResponseWriter) {
	WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_required", Err: errNoSession})
}

func writeNotStarted(w http.ResponseWriter) {
	WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "not_running", Err: timeout.ErrNotRunning})
}

// ensure returns the coordinator bound to the request's session.
func (h *SessionHandlers) ensure(r *http.Request) (*timeout.Coordinator, bool) {
	sess, ok := GetUserSessionFromContext(r.Context())
	if !ok {
		return nil, false
	}
	return h.Registry.Ensure(sess.ID, sess.UserID, tenantIDFromContext(r.Context())), true
}

func (h *SessionHandlers) existing(r *http.Request) (*timeout.Coordinator, bool) {
	sess, ok := GetUserSessionFromContext(r.Context())
	if !ok {
		return nil, false
	}
	return h.Registry.Get(sess.ID)
}

type startRequest struct {
	Route string `json:"route"`
}

// Start begins inactivity tracking for the tab.
// POST /api/session/start.
func (h *SessionHandlers) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	coord, ok := h.ensure(r)
	if !ok {
		writeNoSession(w)
		return
	}
	if req.Route == "" {
		req.Route = "/"
	}
	coord.Start(r.Context(), req.Route)
	WriteJSON(w, http.StatusOK, newStateResponse(coord.State()))
}

type activityRequest struct {
	Kind   domainsession.ActivityKind `json:"kind"`
	Source string                     `json:"source,omitempty"`
}

// Activity reports a user interaction. Non-qualifying or throttled events are
// accepted but leave the countdown untouched.
// POST /api/session/activity.
func (h *SessionHandlers) Activity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	coord, ok := h.existing(r)
	if !ok {
		writeNotStarted(w)
		return
	}
	reset := coord.UpdateActivity(r.Context(), req.Kind, req.Source)
	resp := newStateResponse(coord.State())
	resp.ActivityReset = reset
	WriteJSON(w, http.StatusOK, resp)
}

type routeRequest struct {
	Path   string `json:"path"`
	Scroll int    `json:"scroll"`
}

// Route records navigation and the scroll position used by recovery snapshots.
// The session must have been started.
// POST /api/session/route.
func (h *SessionHandlers) Route(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	coord, ok := h.existing(r)
	if !ok {
		writeNotStarted(w)
		return
	}
	coord.SetRoute(r.Context(), req.Path, req.Scroll)
	WriteJSON(w, http.StatusOK, newStateResponse(coord.State()))
}

// Extend handles "stay signed in".
// POST /api/session/extend.
func (h *SessionHandlers) Extend(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.existing(r)
	if !ok {
		writeNotStarted(w)
		return
	}
	if err := coord.ExtendSession(r.Context()); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, newStateResponse(coord.State()))
}

// Cancel clears every warning and timer without logging out.
// POST /api/session/cancel.
func (h *SessionHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.existing(r)
	if !ok {
		writeNotStarted(w)
		return
	}
	coord.CancelTimeout(r.Context())
	WriteJSON(w, http.StatusOK, newStateResponse(coord.State()))
}

// Unload stops tracking when the tab goes away.
// POST /api/session/unload.
func (h *SessionHandlers) Unload(w http.ResponseWriter, r *http.Request) {
	sess, ok := GetUserSessionFromContext(r.Context())
	if !ok {
		writeNoSession(w)
		return
	}
	h.Registry.Remove(r.Context(), sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

type formRequest struct {
	Fields map[string]string `json:"fields"`
	Dirty  bool              `json:"dirty"`
}

// PutForm records the latest values of an open form.
// PUT /api/session/forms/{id}.
func (h *SessionHandlers) PutForm(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("id")
	if formID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation", Err: errors.New("form id is required")})
		return
	}
	var req formRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	coord, ok := h.existing(r)
	if !ok {
		writeNotStarted(w)
		return
	}
	coord.Forms().Update(formID, req.Fields, req.Dirty)
	WriteJSON(w, http.StatusOK, newStateResponse(coord.State()))
}

// DeleteForm forgets a saved or closed form.
// DELETE /api/session/forms/{id}.
func (h *SessionHandlers) DeleteForm(w http.ResponseWriter, r *http.Request) {
	if coord, ok := h.existing(r); ok {
		coord.Forms().Remove(r.PathValue("id"))
	}
	w.WriteHeader(http.StatusNoContent)
}

// State returns the countdown state plus any queued notices. After a forced
// logout the session no longer authenticates, so the parked redirect is looked up
// by cookie before requiring a live session.
// GET /api/session/state.
func (h *SessionHandlers) State(w http.ResponseWriter, r *http.Request) {
	if id := sessionIDFromRequest(r); id != "" {
		if target, ok := h.Registry.TakeRedirect(id); ok {
			notices := h.Registry.Inbox().Drain(id)
			clearCookie(w, r, h.CookieDomain, sessionCookieName)
			h.logger().InfoContext(r.Context(), "delivering forced logout redirect", "session_id", id)
			WriteJSON(w, http.StatusOK, stateResponse{
				Notices:    newNoticeResponses(notices),
				Expired:    true,
				RedirectTo: target,
			})
			return
		}
	}

	sess, ok := GetUserSessionFromContext(r.Context())
	if !ok {
		writeNoSession(w)
		return
	}
	resp := stateResponse{}
	if coord, found := h.Registry.Get(sess.ID); found {
		resp = newStateResponse(coord.State())
	}
	resp.Notices = newNoticeResponses(h.Registry.Inbox().Drain(sess.ID))
	WriteJSON(w, http.StatusOK, resp)
}

// Recovery returns, once, the work saved by the last forced logout.
// GET /api/session/recovery.
func (h *SessionHandlers) Recovery(w http.ResponseWriter, r *http.Request) {
	sess, ok := GetUserSessionFromContext(r.Context())
	if !ok {
		writeNoSession(w)
		return
	}
	if h.Recovery == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	snap, found, err := h.Recovery.Take(r.Context(), sess.UserID)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "take recovery snapshot failed", "user_id", sess.UserID, "error", err)
		WriteServiceError(w, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}
