package ports

// Package ports defines interfaces (hexagonal ports) for auth, session and tenant behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"time"

	domainauth "github.com/target/sessionguard/internal/domain/auth"
	apperrors "github.com/target/sessionguard/internal/errors"
)

// ErrSessionNotFound is returned by session stores for unknown or expired ids.
var ErrSessionNotFound = apperrors.NotFound("session not found")

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes an authentication flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)

	// UserAttributes fetches the current attribute set for the holder of accessToken.
	UserAttributes(ctx context.Context, accessToken string) (map[string]string, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// SessionStore persists and retrieves user sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
	// Touch moves the session expiry forward to until. Earlier values are ignored.
	Touch(ctx context.Context, id string, until time.Time) error
}

// CurrentSession is the auth collaborator's view of a browser session.
type CurrentSession struct {
	Authenticated bool
	User          domainauth.Session
	// TenantHint is the tenant id issued with the session, if any.
	TenantHint string
}

// AuthGateway is the authentication collaborator consumed by the timeout coordinator
// and the tenant resolver.
type AuthGateway interface {
	FetchCurrentSession(ctx context.Context, sessionID string) (CurrentSession, error)
	FetchUserAttributes(ctx context.Context, sessionID string) (map[string]string, error)
	Logout(ctx context.Context, sessionID string) error
	ExtendSession(ctx context.Context, sessionID string) error
}

// AttributeStore is the writable user attribute overlay kept alongside the IdP.
type AttributeStore interface {
	GetUserAttributes(ctx context.Context, userID string) (map[string]string, error)
	PutUserAttribute(ctx context.Context, userID, name, value string) error
}
