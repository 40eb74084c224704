package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/target/sessionguard/internal/domain/auth"
	domainsession "github.com/target/sessionguard/internal/domain/session"
	apperrors "github.com/target/sessionguard/internal/errors"
	"github.com/target/sessionguard/internal/service"
)

const (
	cookieOAuthState   = "oauth_state"
	cookieOAuthNonce   = "oauth_nonce"
	cookiePostLogin    = "post_login_redirect"
	oauthCookieMaxAge  = 600 // 10 minutes
	defaultTokenWindow = 10 * time.Second
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	SessionGetter
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	Logout(ctx context.Context, sessionID string) error
}

// SessionTracker forgets per-session timeout state.
type SessionTracker interface {
	Remove(ctx context.Context, sessionID string)
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc     AuthServiceInterface
	Tracker SessionTracker
	Tenants TenantResolver

	CookieDomain  string
	SignedOutPath string
	// TokenTimeout bounds the code exchange; exceeding it signs out with token_timeout.
	TokenTimeout time.Duration
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) signedOutPath() string {
	if h.SignedOutPath != "" {
		return h.SignedOutPath
	}
	return "/auth/signed-out"
}

// Login handles the login initiation endpoint.
// GET /auth/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	result, err := h.Svc.BeginLogin(r.Context(), redirectURI)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		h.signOutRedirect(w, r, loginFailureReason(err), redirectURI)
		return
	}

	h.setOAuthCookies(w, r, oauthCookieParams{State: result.State, Nonce: result.Nonce, RedirectURI: redirectURI})
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback handles the OAuth callback endpoint. Every failure lands on the
// signed-out page with a reason code.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := h.getPostLoginRedirect(w, r)

	if idpErr := q.Get("error"); idpErr != "" {
		h.logger().WarnContext(r.Context(), "identity provider returned an error",
			"error", idpErr, "description", q.Get("error_description"))
		h.signOutRedirect(w, r, domainsession.ReasonOAuth, redirectURI)
		return
	}
	code := q.Get("code")
	if code == "" {
		h.signOutRedirect(w, r, domainsession.ReasonNoCode, redirectURI)
		return
	}

	state := q.Get("state")
	stateCookie, err := r.Cookie(cookieOAuthState)
	if state == "" || err != nil || stateCookie.Value != state {
		h.logger().WarnContext(r.Context(), "oauth state mismatch")
		h.signOutRedirect(w, r, domainsession.ReasonOAuth, redirectURI)
		return
	}
	nonceCookie, err := r.Cookie(cookieOAuthNonce)
	if err != nil || nonceCookie.Value == "" {
		h.signOutRedirect(w, r, domainsession.ReasonOAuth, redirectURI)
		return
	}

	window := h.TokenTimeout
	if window <= 0 {
		window = defaultTokenWindow
	}
	ctx, cancel := context.WithTimeout(r.Context(), window)
	defer cancel()

	result, err := h.Svc.CompleteLogin(ctx, service.CompleteLoginInput{
		Code:  code,
		State: state,
		Nonce: nonceCookie.Value,
	})
	h.clearCookie(w, r, cookieOAuthState)
	h.clearCookie(w, r, cookieOAuthNonce)
	if err != nil {
		reason := loginFailureReason(err)
		h.logger().ErrorContext(r.Context(), "complete login failed", "reason", string(reason), "error", err)
		h.signOutRedirect(w, r, reason, redirectURI)
		return
	}

	h.setSessionCookie(w, r, result.Session)
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

func loginFailureReason(err error) domainsession.ReasonCode {
	switch {
	case apperrors.IsConfigurationLost(err):
		return domainsession.ReasonConfigurationLost
	case errors.Is(err, context.DeadlineExceeded), apperrors.IsTimeout(err):
		return domainsession.ReasonTokenTimeout
	default:
		return domainsession.ReasonOAuth
	}
}

// Logout handles the logout endpoint.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if id := sessionIDFromRequest(r); id != "" {
		if h.Tracker != nil {
			h.Tracker.Remove(r.Context(), id)
		}
		if h.Tenants != nil {
			if err := h.Tenants.Invalidate(r.Context(), id); err != nil {
				h.logger().WarnContext(r.Context(), "invalidate tenant on logout failed", "error", err)
			}
		}
		if logoutErr := h.Svc.Logout(r.Context(), id); logoutErr != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", logoutErr)
		}
	}

	h.clearCookie(w, r, sessionCookieName)

	redirectURI := r.FormValue("redirect_uri")
	if redirectURI == "" {
		redirectURI = r.URL.Query().Get("redirect_uri")
	}
	redirectURI = safeRedirectPath(redirectURI)
	signedOutURL := domainsession.SignInURL(h.signedOutPath(), domainsession.ReasonLogout, redirectURI)

	isAJAX := strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
	if isAJAX {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": signedOutURL,
		})
		return
	}

	http.Redirect(w, r, signedOutURL, http.StatusFound)
}

// Status returns the current authentication status.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	id := sessionIDFromRequest(r)
	if id == "" {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	session, err := h.Svc.GetSession(r.Context(), id)
	if err != nil {
		// Session is invalid or expired, clear the cookie
		h.clearCookie(w, r, sessionCookieName)
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user": map[string]any{
			"id":         session.UserID,
			"first_name": session.FirstName,
			"last_name":  session.LastName,
			"email":      session.Email,
		},
		"tenant_id":  session.TenantID,
		"expires_at": session.ExpiresAt,
	})
}

// SignedOut describes why the user is looking at the sign-in page.
// GET /auth/signed-out?reason=<code>&redirect_uri=<path>.
func (h *AuthHandlers) SignedOut(w http.ResponseWriter, r *http.Request) {
	reason := domainsession.ReasonCode(r.URL.Query().Get("reason"))
	if !reason.Known() {
		reason = ""
	}
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))
	loginURL := "/auth/login?redirect_uri=" + url.QueryEscape(redirectURI)
	WriteJSON(w, http.StatusOK, map[string]string{
		"reason":       string(reason),
		"message":      reason.Message(),
		"redirect_uri": redirectURI,
		"login_url":    loginURL,
	})
}

func (h *AuthHandlers) signOutRedirect(w http.ResponseWriter, r *http.Request, reason domainsession.ReasonCode, redirectURI string) {
	http.Redirect(w, r, domainsession.SignInURL(h.signedOutPath(), reason, redirectURI), http.StatusFound)
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// clearCookie clears a cookie by setting it to expire immediately.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	clearCookie(w, r, h.CookieDomain, name)
}

// clearCookie mirrors key attributes (Secure, Path, Domain, SameSite) used when setting
// cookies to maximize compatibility across browsers during deletion.
func clearCookie(w http.ResponseWriter, r *http.Request, domain, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

type oauthCookieParams struct {
	State       string
	Nonce       string
	RedirectURI string
}

// setOAuthCookies stores OAuth state, nonce, and the post-login redirect in secure cookies.
func (h *AuthHandlers) setOAuthCookies(w http.ResponseWriter, r *http.Request, p oauthCookieParams) {
	for _, c := range [...]struct{ name, value string }{
		{cookieOAuthState, p.State},
		{cookieOAuthNonce, p.Nonce},
		{cookiePostLogin, p.RedirectURI},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    c.value,
			Path:     "/",
			Domain:   h.CookieDomain,
			HttpOnly: true,
			Secure:   isSecureRequest(r),
			SameSite: http.SameSiteLaxMode,
			MaxAge:   oauthCookieMaxAge,
		})
	}
}

// setSessionCookie writes the session cookie based on the session's expiry.
func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, r *http.Request, s domainauth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    s.ID,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(s.ExpiresAt).Seconds()),
	})
}

// getPostLoginRedirect returns the post-login redirect URL and clears the cookie.
func (h *AuthHandlers) getPostLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	redirectCookie, err := r.Cookie(cookiePostLogin)
	if err != nil {
		return "/"
	}
	h.clearCookie(w, r, cookiePostLogin)
	return safeRedirectPath(redirectCookie.Value)
}
