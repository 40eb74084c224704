package httpx

import (
	"context"
	"log/slog"
	"net/http"

	domainauth "github.com/target/sessionguard/internal/domain/auth"
)

// TenantSwitcher changes the tenant issued with a session.
type TenantSwitcher interface {
	SwitchTenant(ctx context.Context, sessionID, tenantID string) (*domainauth.Session, error)
}

// TenantHandlers expose the resolved tenant and tenant switching.
type TenantHandlers struct {
	Switcher TenantSwitcher
	Resolver TenantResolver
	Registry CoordinatorRegistry
	Logger   *slog.Logger
}

func (h *TenantHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Current returns the tenant RequireTenant resolved for this request.
// GET /api/tenant.
func (h *TenantHandlers) Current(w http.ResponseWriter, r *http.Request) {
	id, ok := GetTenantFromContext(r.Context())
	if !ok {
		writeNoSession(w)
		return
	}
	WriteJSON(w, http.StatusOK, id)
}

type switchTenantRequest struct {
	TenantID string `json:"tenant_id"`
}

// Switch moves the session to another tenant and drops the cached resolution so
// the next request resolves afresh.
// POST /api/tenant/switch.
func (h *TenantHandlers) Switch(w http.ResponseWriter, r *http.Request) {
	var req switchTenantRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	sess, ok := GetUserSessionFromContext(r.Context())
	if !ok {
		writeNoSession(w)
		return
	}

	updated, err := h.Switcher.SwitchTenant(r.Context(), sess.ID, req.TenantID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if err := h.Resolver.Invalidate(r.Context(), sess.ID); err != nil {
		h.logger().WarnContext(r.Context(), "invalidate tenant cache after switch failed",
			"session_id", sess.ID, "error", err)
	}
	if h.Registry != nil {
		if coord, found := h.Registry.Get(sess.ID); found {
			coord.SetTenant(updated.TenantID)
		}
	}

	h.logger().InfoContext(r.Context(), "tenant switched", "session_id", sess.ID, "tenant_id", updated.TenantID)
	WriteJSON(w, http.StatusOK, map[string]string{"tenant_id": updated.TenantID})
}
