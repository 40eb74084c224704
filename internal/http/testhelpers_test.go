package httpx

import (
	"context"
	"net/http"
	"sync"
	"time"

	domainauth "github.com/target/sessionguard/internal/domain/auth"
	domaintenant "github.com/target/sessionguard/internal/domain/tenant"
	"github.com/target/sessionguard/internal/service"
	"github.com/target/sessionguard/internal/service/tenant"
)

// fakeAuthService is a test double for service.AuthService.
type fakeAuthService struct {
	beginLoginFunc    func(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	completeLoginFunc func(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	getSessionFunc    func(ctx context.Context, sessionID string) (*domainauth.Session, error)
	logoutFunc        func(ctx context.Context, sessionID string) error
	switchTenantFunc  func(ctx context.Context, sessionID, tenantID string) (*domainauth.Session, error)

	mu          sync.Mutex
	beginInputs []string
	logouts     []string
}

func (m *fakeAuthService) BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error) {
	m.mu.Lock()
	m.beginInputs = append(m.beginInputs, redirectURL)
	m.mu.Unlock()
	if m.beginLoginFunc != nil {
		return m.beginLoginFunc(ctx, redirectURL)
	}
	return &service.BeginLoginResult{
		AuthURL: "https://idp.example.com/auth?state=test-state&nonce=test-nonce",
		State:   "test-state",
		Nonce:   "test-nonce",
	}, nil
}

func (m *fakeAuthService) CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
	if m.completeLoginFunc != nil {
		return m.completeLoginFunc(ctx, input)
	}
	return &service.CompleteLoginResult{
		Session: domainauth.Session{
			ID:        "test-session-id",
			UserID:    "test-user",
			Email:     "test@example.com",
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}, nil
}

func (m *fakeAuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if m.getSessionFunc != nil {
		return m.getSessionFunc(ctx, sessionID)
	}
	return &domainauth.Session{
		ID:        sessionID,
		UserID:    "u-" + sessionID,
		Email:     "test@example.com",
		TenantID:  "a1b2c3d4",
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (m *fakeAuthService) Logout(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	m.logouts = append(m.logouts, sessionID)
	m.mu.Unlock()
	if m.logoutFunc != nil {
		return m.logoutFunc(ctx, sessionID)
	}
	return nil
}

func (m *fakeAuthService) SwitchTenant(ctx context.Context, sessionID, tenantID string) (*domainauth.Session, error) {
	if m.switchTenantFunc != nil {
		return m.switchTenantFunc(ctx, sessionID, tenantID)
	}
	return &domainauth.Session{ID: sessionID, TenantID: tenantID}, nil
}

type fakeResolver struct {
	resolveFunc func(ctx context.Context, in tenant.Input) (domaintenant.Identity, error)

	mu          sync.Mutex
	invalidated []string
}

func (f *fakeResolver) Resolve(ctx context.Context, in tenant.Input) (domaintenant.Identity, error) {
	if f.resolveFunc != nil {
		return f.resolveFunc(ctx, in)
	}
	return domaintenant.Identity{
		TenantID:    "a1b2c3d4",
		Source:      domaintenant.SourceSession,
		FormatValid: true,
	}, nil
}

func (f *fakeResolver) Invalidate(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, sessionID)
	return nil
}

func (f *fakeResolver) invalidations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.invalidated...)
}

type fakeTracker struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeTracker) Remove(_ context.Context, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, sessionID)
}

type fakeLegacyReader struct {
	cleared int
}

func (f *fakeLegacyReader) Read(*http.Request) (string, bool) { return "", false }

func (f *fakeLegacyReader) Clear(http.ResponseWriter, *http.Request) { f.cleared++ }

func withSessionCookie(r *http.Request, id string) *http.Request {
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: id})
	return r
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
