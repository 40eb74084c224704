package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/target/sessionguard/internal/domain/auth"
	domainsession "github.com/target/sessionguard/internal/domain/session"
	domaintenant "github.com/target/sessionguard/internal/domain/tenant"
	apperrors "github.com/target/sessionguard/internal/errors"
	"github.com/target/sessionguard/internal/ports"
	"github.com/target/sessionguard/internal/service/tenant"
)

const sessionCookieName = "session_id"

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SessionGetter is the slice of the auth service the middleware needs.
type SessionGetter interface {
	GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error)
}

// RequireAuth returns a middleware that requires authentication.
// API requests get a 401 JSON response; browser requests are sent to sign in.
func RequireAuth(authSvc SessionGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := getSessionFromRequest(r, authSvc)
			if session == nil {
				if IsBrowserRequest(r) {
					redirectToLogin(w, r)
					return
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
				return
			}

			ctx := SetSessionInContext(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth returns a middleware that optionally adds authentication information.
// If the user is authenticated, the session is added to the request context.
// If not authenticated, the request continues without session information.
func OptionalAuth(authSvc SessionGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if session := getSessionFromRequest(r, authSvc); session != nil {
				r = r.WithContext(SetSessionInContext(r.Context(), session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getSessionFromRequest retrieves and validates a session from the request.
func getSessionFromRequest(r *http.Request, authSvc SessionGetter) *domainauth.Session {
	id := sessionIDFromRequest(r)
	if id == "" {
		return nil
	}
	session, err := authSvc.GetSession(r.Context(), id)
	if err != nil {
		return nil
	}
	return session
}

func sessionIDFromRequest(r *http.Request) string {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// TenantResolver resolves and forgets per-session tenant identities.
type TenantResolver interface {
	Resolve(ctx context.Context, in tenant.Input) (domaintenant.Identity, error)
	Invalidate(ctx context.Context, sessionID string) error
}

// TenantMiddlewareOptions configures RequireTenant.
type TenantMiddlewareOptions struct {
	Resolver TenantResolver
	// Legacy clears the deprecated tenant cookies once their value has been migrated.
	Legacy           ports.LegacyTenantReader
	AccountSetupPath string
	Logger           *slog.Logger
}

// RequireTenant resolves the tenant for the authenticated session and stores it in
// the request context. It must run after RequireAuth. Without a tenant identifier,
// browsers are sent to account setup and API callers get a 409 naming that path.
func RequireTenant(opts TenantMiddlewareOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	setup := opts.AccountSetupPath
	if setup == "" {
		setup = "/account/setup"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := GetUserSessionFromContext(r.Context())
			if !ok {
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
				return
			}

			id, err := opts.Resolver.Resolve(r.Context(), tenant.Input{
				SessionID: sess.ID,
				UserID:    sess.UserID,
				Request:   r,
			})
			if err != nil {
				if !apperrors.IsNoTenantIdentifier(err) {
					logger.ErrorContext(r.Context(), "resolve tenant failed", "session_id", sess.ID, "error", err)
					WriteServiceError(w, err)
					return
				}
				target := domainsession.SignInURL(setup, domainsession.ReasonNoTenant, "")
				if IsBrowserRequest(r) {
					http.Redirect(w, r, target, http.StatusSeeOther)
					return
				}
				WriteJSON(w, http.StatusConflict, map[string]string{
					"error":       string(apperrors.ErrCodeNoTenantIdentifier),
					"message":     domainsession.ReasonNoTenant.Message(),
					"redirect_to": target,
				})
				return
			}

			// A migrated or superseded legacy value is never needed again.
			legacyDone := id.Source == domaintenant.SourceLegacyFallback || id.ConflictFrom(domaintenant.SourceLegacyFallback)
			if legacyDone && opts.Legacy != nil {
				opts.Legacy.Clear(w, r)
			}
			next.ServeHTTP(w, r.WithContext(SetTenantInContext(r.Context(), id)))
		})
	}
}

// browserRequestKey is an unexported context key type for browser request detection.
type browserRequestKey struct{}

// BrowserDetection returns a middleware that detects browser requests vs API requests.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), browserRequestKey{}, isBrowserRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest returns true if the current request is from a browser.
func IsBrowserRequest(r *http.Request) bool {
	if isBrowser, ok := r.Context().Value(browserRequestKey{}).(bool); ok {
		return isBrowser
	}
	// Fallback to direct detection if middleware wasn't used
	return isBrowserRequest(r)
}

// isBrowserRequest treats /api/ routes and XHR calls as API traffic and anything
// that accepts HTML as a page navigation.
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return false
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	return strings.Contains(accept, "text/html")
}

// redirectToLogin redirects browser requests to the login page with the current URL as redirect_uri.
func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	q := url.Values{}
	q.Set("redirect_uri", safeRedirectPath(r.URL.RequestURI()))
	http.Redirect(w, r, "/auth/login?"+q.Encode(), http.StatusSeeOther)
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if !domainsession.SafeRedirectPath(candidate) {
		return "/"
	}
	return candidate
}
