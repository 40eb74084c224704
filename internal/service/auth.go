package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/target/sessionguard/internal/clock"
	"github.com/target/sessionguard/internal/domain/audit"
	domainauth "github.com/target/sessionguard/internal/domain/auth"
	domaintenant "github.com/target/sessionguard/internal/domain/tenant"
	apperrors "github.com/target/sessionguard/internal/errors"
	"github.com/target/sessionguard/internal/ports"
)

const defaultIdleExtension = 30 * time.Minute

// ErrSessionExpired is returned for a stored session past its expiry.
var ErrSessionExpired = apperrors.Unauthenticated("session expired")

// TenantExtractor pulls a tenant hint out of identity provider attributes.
type TenantExtractor interface {
	Extract(attrs map[string]string) (string, error)
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider   ports.AuthProvider
	Sessions   ports.SessionStore
	Attributes ports.AttributeStore
	Tenants    TenantExtractor
	Audit      ports.AuditSink
	Clock      clock.Clock
	Logger     *slog.Logger

	// IdleExtension is how far ExtendSession pushes the stored session expiry.
	IdleExtension time.Duration

	// AllowedTenantsAttribute names a user attribute listing further tenants the
	// user may switch to, separated by commas or whitespace.
	AllowedTenantsAttribute string
}

// AuthService orchestrates authentication flows by coordinating the provider, the
// attribute overlay and session persistence. It is the AuthGateway used by the
// timeout coordinator and the tenant resolver.
type AuthService struct {
	provider      ports.AuthProvider
	sessions      ports.SessionStore
	attributes    ports.AttributeStore
	tenants       TenantExtractor
	audit         ports.AuditSink
	clock         clock.Clock
	logger        *slog.Logger
	idleExtension time.Duration
	allowedAttr   string
}

var _ ports.AuthGateway = (*AuthService)(nil)

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ext := opts.IdleExtension
	if ext <= 0 {
		ext = defaultIdleExtension
	}
	return &AuthService{
		provider:      opts.Provider,
		sessions:      opts.Sessions,
		attributes:    opts.Attributes,
		tenants:       opts.Tenants,
		audit:         opts.Audit,
		clock:         clk,
		logger:        logger.With("component", "auth_service"),
		idleExtension: ext,
		allowedAttr:   strings.TrimSpace(opts.AllowedTenantsAttribute),
	}
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates an authentication flow and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}

	return &BeginLoginResult{
		AuthURL: authURL,
		State:   state,
		Nonce:   nonce,
	}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteLoginResult contains the result of completing a login flow.
type CompleteLoginResult struct {
	Session domainauth.Session
}

// CompleteLogin exchanges the code for an identity, captures the tenant hint carried
// by its attributes and persists a session.
func (s *AuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (*CompleteLoginResult, error) {
	if input.Code == "" {
		return nil, apperrors.ValidationField("code", "authorization code is required")
	}
	if input.State == "" {
		return nil, apperrors.ValidationField("state", "state parameter is required")
	}
	if input.Nonce == "" {
		return nil, apperrors.ValidationField("nonce", "nonce parameter is required")
	}

	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput{
		Code:  input.Code,
		State: input.State,
		Nonce: input.Nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	session := domainauth.Session{
		ID:          generateSessionID(),
		UserID:      identity.UserID,
		FirstName:   identity.FirstName,
		LastName:    identity.LastName,
		Email:       identity.Email,
		TenantID:    s.tenantHint(ctx, identity.Attributes),
		AccessToken: identity.AccessToken,
		ExpiresAt:   identity.ExpiresAt,
	}

	if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
		return nil, fmt.Errorf("save session: %w", saveErr)
	}

	s.record(ctx, session, audit.AuthLogin, map[string]any{"tenant_hint": session.TenantID != ""})
	return &CompleteLoginResult{Session: session}, nil
}

func (s *AuthService) tenantHint(ctx context.Context, attrs map[string]string) string {
	if s.tenants == nil {
		return ""
	}
	hint, err := s.tenants.Extract(attrs)
	if err != nil {
		s.logger.WarnContext(ctx, "extract tenant hint failed", "error", err)
		return ""
	}
	return hint
}

// GetSession retrieves a session by ID. Expired sessions are removed.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, apperrors.ValidationField("session_id", "session ID is required")
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.Expired(s.clock.Now()) {
		if deleteErr := s.sessions.Delete(ctx, sessionID); deleteErr != nil {
			return nil, errors.Join(ErrSessionExpired, fmt.Errorf("delete session: %w", deleteErr))
		}
		return nil, ErrSessionExpired
	}

	return &session, nil
}

// Logout removes a session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	sess, _ := s.sessions.Get(ctx, sessionID)
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if sess.ID != "" {
		s.record(ctx, sess, audit.AuthLogout, nil)
	}
	return nil
}

// FetchCurrentSession reports whether sessionID is signed in and which tenant was
// issued with it. Unknown and expired sessions are unauthenticated, not errors.
func (s *AuthService) FetchCurrentSession(ctx context.Context, sessionID string) (ports.CurrentSession, error) {
	if sessionID == "" {
		return ports.CurrentSession{}, nil
	}
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		if apperrors.IsNotFound(err) || apperrors.IsUnauthenticated(err) {
			return ports.CurrentSession{}, nil
		}
		return ports.CurrentSession{}, err
	}
	return ports.CurrentSession{
		Authenticated: true,
		User:          *sess,
		TenantHint:    sess.TenantID,
	}, nil
}

// FetchUserAttributes returns the provider's current attributes for the session's
// user. Overlay values only fill attributes the provider does not report.
func (s *AuthService) FetchUserAttributes(ctx context.Context, sessionID string) (map[string]string, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	attrs := map[string]string{}
	if sess.AccessToken != "" {
		fetched, fetchErr := s.provider.UserAttributes(ctx, sess.AccessToken)
		if fetchErr != nil {
			return nil, fmt.Errorf("fetch provider attributes: %w", fetchErr)
		}
		maps.Copy(attrs, fetched)
	}

	if s.attributes != nil {
		overlay, overlayErr := s.attributes.GetUserAttributes(ctx, sess.UserID)
		if overlayErr != nil {
			s.logger.WarnContext(ctx, "read attribute overlay failed", "user_id", sess.UserID, "error", overlayErr)
		}
		for k, v := range overlay {
			if _, ok := attrs[k]; !ok {
				attrs[k] = v
			}
		}
	}
	return attrs, nil
}

// ExtendSession records a "stay signed in" and moves the stored expiry forward.
func (s *AuthService) ExtendSession(ctx context.Context, sessionID string) error {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}
	until := s.clock.Now().Add(s.idleExtension)
	if err := s.sessions.Touch(ctx, sessionID, until); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	s.logger.DebugContext(ctx, "session extended", "session_id", sessionID, "until", until)
	return nil
}

// SwitchTenant replaces the tenant issued with the session. The target must be the
// user's own tenant or listed in the allowed-tenants attribute; any other value is
// rejected and recorded as a tenant conflict. Callers must also invalidate any
// cached resolution for the session.
func (s *AuthService) SwitchTenant(ctx context.Context, sessionID, tenantID string) (*domainauth.Session, error) {
	tenantID = domaintenant.Normalize(tenantID)
	if err := domaintenant.ValidateID(tenantID); err != nil {
		return nil, apperrors.ValidationField("tenant_id", "tenant identifier has an unexpected format")
	}
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	attrs, err := s.FetchUserAttributes(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("authorize tenant switch: %w", err)
	}
	if !s.tenantPermitted(ctx, attrs, tenantID) {
		s.logger.ErrorContext(ctx, "tenant switch rejected",
			"session_id", sess.ID, "user_id", sess.UserID, "tenant_id", sess.TenantID, "requested", tenantID)
		s.record(ctx, *sess, audit.TenantConflict, map[string]any{
			"requested": tenantID,
			"reason":    "switch_not_permitted",
		})
		return nil, domaintenant.ErrTenantNotPermitted
	}

	from := sess.TenantID
	sess.TenantID = tenantID
	if saveErr := s.sessions.Save(ctx, *sess); saveErr != nil {
		return nil, fmt.Errorf("save session: %w", saveErr)
	}
	s.record(ctx, *sess, audit.TenantSwitched, map[string]any{"from": from})
	return sess, nil
}

func (s *AuthService) tenantPermitted(ctx context.Context, attrs map[string]string, tenantID string) bool {
	if own := s.tenantHint(ctx, attrs); own != "" && own == tenantID {
		return true
	}
	if s.allowedAttr == "" {
		return false
	}
	allowed := strings.FieldsFunc(attrs[s.allowedAttr], func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	for _, id := range allowed {
		if domaintenant.Normalize(id) == tenantID {
			return true
		}
	}
	return false
}

func (s *AuthService) record(ctx context.Context, sess domainauth.Session, name audit.Name, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Event{
		Timestamp: s.clock.Now(),
		Event:     name,
		SessionID: sess.ID,
		UserID:    sess.UserID,
		TenantID:  sess.TenantID,
		Details:   details,
	})
}

// generateSessionID creates a random, URL-safe session ID.
func generateSessionID() string {
	return uuid.New().String()
}
