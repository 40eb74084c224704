package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/sessionguard/internal/clock"
	"github.com/target/sessionguard/internal/domain/audit"
	domainauth "github.com/target/sessionguard/internal/domain/auth"
	domaintenant "github.com/target/sessionguard/internal/domain/tenant"
	apperrors "github.com/target/sessionguard/internal/errors"
	mocks "github.com/target/sessionguard/internal/mocks/auth"
	"github.com/target/sessionguard/internal/ports"
	tenantsvc "github.com/target/sessionguard/internal/service/tenant"
)

// mockSessionStore is a test helper for testing session store errors.
type mockSessionStore struct {
	saveFunc   func(context.Context, domainauth.Session) error
	getFunc    func(context.Context, string) (domainauth.Session, error)
	deleteFunc func(context.Context, string) error
}

func (m *mockSessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, sess)
	}
	return nil
}

func (m *mockSessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return domainauth.Session{}, nil
}

func (m *mockSessionStore) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockSessionStore) Touch(context.Context, string, time.Time) error { return nil }

type auditLog struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *auditLog) Record(_ context.Context, ev audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *auditLog) last() audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.events) == 0 {
		return audit.Event{}
	}
	return a.events[len(a.events)-1]
}

func newTestAuthService(t *testing.T, mutate func(*AuthServiceOptions)) (*AuthService, *mocks.MemorySessionStore) {
	t.Helper()
	extractor, err := tenantsvc.NewAttributeExtractor(`"custom:tenant_id" || tenant_id`)
	require.NoError(t, err)

	sessions := mocks.NewMemorySessionStore()
	opts := AuthServiceOptions{
		Provider:   mocks.NewMockAuthProvider(),
		Sessions:   sessions,
		Attributes: mocks.NewMemoryAttributeStore(),
		Tenants:    extractor,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewAuthService(opts), sessions
}

func saveSession(t *testing.T, store ports.SessionStore, sess domainauth.Session) {
	t.Helper()
	require.NoError(t, store.Save(context.Background(), sess))
}

func TestAuthService_BeginLogin_Success(t *testing.T) {
	service, _ := newTestAuthService(t, nil)

	result, err := service.BeginLogin(context.Background(), "http://localhost:8080/auth/callback")

	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", result.AuthURL)
	assert.Equal(t, "state-1", result.State)
	assert.Equal(t, "nonce-1", result.Nonce)
}

func TestAuthService_BeginLogin_EmptyRedirectURL(t *testing.T) {
	service, _ := newTestAuthService(t, nil)

	result, err := service.BeginLogin(context.Background(), "")

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "redirect URL is required")
}

func TestAuthService_BeginLogin_ProviderError(t *testing.T) {
	service, _ := newTestAuthService(t, func(o *AuthServiceOptions) {
		o.Provider = &mocks.MockAuthProvider{
			BeginFunc: func(context.Context, ports.BeginInput) (string, string, string, error) {
				return "", "", "", errors.New("provider error")
			},
		}
	})

	result, err := service.BeginLogin(context.Background(), "http://localhost:8080/auth/callback")

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "begin auth flow")
	assert.Contains(t, err.Error(), "provider error")
}

func TestAuthService_CompleteLogin_CapturesTenantHintAndToken(t *testing.T) {
	sink := &auditLog{}
	service, sessions := newTestAuthService(t, func(o *AuthServiceOptions) { o.Audit = sink })
	ctx := context.Background()

	result, err := service.CompleteLogin(ctx, CompleteLoginInput{Code: "auth-code", State: "state-1", Nonce: "nonce-1"})

	require.NoError(t, err)
	assert.NotEmpty(t, result.Session.ID)
	assert.Equal(t, "mock-user-1", result.Session.UserID)
	assert.Equal(t, "Mock", result.Session.FirstName)
	assert.Equal(t, "3f1c2a9e-6b4d-4e8f-9a71-0c5d2e8b7f10", result.Session.TenantID)
	assert.Equal(t, "mock-access-token", result.Session.AccessToken)
	assert.True(t, result.Session.ExpiresAt.After(time.Now()))

	stored, err := sessions.Get(ctx, result.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Session, stored)
	assert.Equal(t, audit.AuthLogin, sink.last().Event)
}

func TestAuthService_CompleteLogin_WithoutTenantAttribute(t *testing.T) {
	provider := mocks.NewMockAuthProvider()
	provider.DefaultUser.Attributes = map[string]string{"email_verified": "true"}
	service, _ := newTestAuthService(t, func(o *AuthServiceOptions) { o.Provider = provider })

	result, err := service.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})

	require.NoError(t, err)
	assert.Empty(t, result.Session.TenantID)
}

func TestAuthService_CompleteLogin_MissingInputs(t *testing.T) {
	tests := []struct {
		name  string
		input CompleteLoginInput
		field string
	}{
		{name: "code", input: CompleteLoginInput{State: "s", Nonce: "n"}, field: "code"},
		{name: "state", input: CompleteLoginInput{Code: "c", Nonce: "n"}, field: "state"},
		{name: "nonce", input: CompleteLoginInput{Code: "c", State: "s"}, field: "nonce"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _ := newTestAuthService(t, nil)

			result, err := service.CompleteLogin(context.Background(), tt.input)

			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.field, apperrors.GetField(err))
		})
	}
}

func TestAuthService_CompleteLogin_ExchangeError(t *testing.T) {
	service, _ := newTestAuthService(t, func(o *AuthServiceOptions) {
		o.Provider = &mocks.MockAuthProvider{
			ExchangeFunc: func(context.Context, ports.ExchangeInput) (domainauth.Identity, error) {
				return domainauth.Identity{}, errors.New("exchange error")
			},
		}
	})

	result, err := service.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "exchange authorization code")
	assert.Contains(t, err.Error(), "exchange error")
}

func TestAuthService_CompleteLogin_SessionSaveError(t *testing.T) {
	service, _ := newTestAuthService(t, func(o *AuthServiceOptions) {
		o.Sessions = &mockSessionStore{
			saveFunc: func(context.Context, domainauth.Session) error { return errors.New("save error") },
		}
	})

	result, err := service.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "save session")
	assert.Contains(t, err.Error(), "save error")
}

func TestAuthService_GetSession_ExpiredIsRemoved(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	service, sessions := newTestAuthService(t, func(o *AuthServiceOptions) { o.Clock = clock.Fake(now) })
	ctx := context.Background()
	saveSession(t, sessions, domainauth.Session{ID: "old", UserID: "u", ExpiresAt: now.Add(-time.Minute)})

	result, err := service.GetSession(ctx, "old")

	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = sessions.Get(ctx, "old")
	assert.ErrorIs(t, err, mocks.ErrNotFound)
}

func TestAuthService_GetSession_ExpiredDeleteFailure(t *testing.T) {
	service, _ := newTestAuthService(t, func(o *AuthServiceOptions) {
		o.Sessions = &mockSessionStore{
			getFunc: func(_ context.Context, id string) (domainauth.Session, error) {
				return domainauth.Session{ID: id, ExpiresAt: time.Now().Add(-time.Minute)}, nil
			},
			deleteFunc: func(context.Context, string) error { return errors.New("redis down") },
		}
	})

	_, err := service.GetSession(context.Background(), "old")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Contains(t, err.Error(), "redis down")
}

func TestAuthService_FetchCurrentSession(t *testing.T) {
	service, sessions := newTestAuthService(t, nil)
	ctx := context.Background()
	saveSession(t, sessions, domainauth.Session{
		ID:        "s1",
		UserID:    "u1",
		TenantID:  "a1b2c3d4",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	cur, err := service.FetchCurrentSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, cur.Authenticated)
	assert.Equal(t, "a1b2c3d4", cur.TenantHint)
	assert.Equal(t, "u1", cur.User.UserID)

	cur, err = service.FetchCurrentSession(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, cur.Authenticated)
}

func TestAuthService_FetchCurrentSession_StoreFailure(t *testing.T) {
	service, _ := newTestAuthService(t, func(o *AuthServiceOptions) {
		o.Sessions = &mockSessionStore{
			getFunc: func(context.Context, string) (domainauth.Session, error) {
				return domainauth.Session{}, errors.New("connection refused")
			},
		}
	})

	_, err := service.FetchCurrentSession(context.Background(), "s1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAuthService_FetchUserAttributes_OverlayFillsGaps(t *testing.T) {
	attrs := mocks.NewMemoryAttributeStore()
	ctx := context.Background()
	require.NoError(t, attrs.PutUserAttribute(ctx, "u1", "custom:tenant_id", "0a1b2c3d"))
	require.NoError(t, attrs.PutUserAttribute(ctx, "u1", "department", "finance"))

	provider := mocks.NewMockAuthProvider()
	var gotToken string
	provider.UserAttributesFunc = func(_ context.Context, token string) (map[string]string, error) {
		gotToken = token
		return map[string]string{"custom:tenant_id": "3f1c2a9e-6b4d-4e8f-9a71-0c5d2e8b7f10"}, nil
	}
	service, sessions := newTestAuthService(t, func(o *AuthServiceOptions) {
		o.Provider = provider
		o.Attributes = attrs
	})
	saveSession(t, sessions, domainauth.Session{
		ID:          "s1",
		UserID:      "u1",
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
	})

	got, err := service.FetchUserAttributes(ctx, "s1")

	require.NoError(t, err)
	assert.Equal(t, "tok", gotToken)
	assert.Equal(t, map[string]string{
		"custom:tenant_id": "3f1c2a9e-6b4d-4e8f-9a71-0c5d2e8b7f10",
		"department":       "finance",
	}, got)
}

func TestAuthService_FetchUserAttributes_ProviderError(t *testing.T) {
	provider := mocks.NewMockAuthProvider()
	provider.UserAttributesFunc = func(context.Context, string) (map[string]string, error) {
		return nil, context.DeadlineExceeded
	}
	service, sessions := newTestAuthService(t, func(o *AuthServiceOptions) { o.Provider = provider })
	saveSession(t, sessions, domainauth.Session{ID: "s1", UserID: "u1", AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)})

	_, err := service.FetchUserAttributes(context.Background(), "s1")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAuthService_ExtendSession_MovesExpiryForward(t *testing.T) {
	now := time.Now()
	service, sessions := newTestAuthService(t, func(o *AuthServiceOptions) { o.IdleExtension = 2 * time.Hour })
	ctx := context.Background()
	saveSession(t, sessions, domainauth.Session{ID: "s1", UserID: "u1", ExpiresAt: now.Add(10 * time.Minute)})

	require.NoError(t, service.ExtendSession(ctx, "s1"))

	got, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.After(now.Add(time.Hour)))

	assert.Error(t, service.ExtendSession(ctx, "missing"))
}

func tenantProvider(attrs map[string]string) *mocks.MockAuthProvider {
	provider := mocks.NewMockAuthProvider()
	provider.UserAttributesFunc = func(context.Context, string) (map[string]string, error) {
		return attrs, nil
	}
	return provider
}

func TestAuthService_SwitchTenant(t *testing.T) {
	sink := &auditLog{}
	service, sessions := newTestAuthService(t, func(o *AuthServiceOptions) {
		o.Audit = sink
		o.Provider = tenantProvider(map[string]string{
			"custom:tenant_id":       "a1b2c3d4",
			"custom:allowed_tenants": "b2c3d4e5, c3d4e5f6",
		})
		o.AllowedTenantsAttribute = "custom:allowed_tenants"
	})
	ctx := context.Background()
	saveSession(t, sessions, domainauth.Session{ID: "s1", UserID: "u1", TenantID: "a1b2c3d4", AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)})

	sess, err := service.SwitchTenant(ctx, "s1", " b2c3d4e5 ")
	require.NoError(t, err)
	assert.Equal(t, "b2c3d4e5", sess.TenantID)

	stored, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "b2c3d4e5", stored.TenantID)
	assert.Equal(t, audit.TenantSwitched, sink.last().Event)
	assert.Equal(t, "a1b2c3d4", sink.last().Details["from"])

	// The user's own tenant is always reachable.
	sess, err = service.SwitchTenant(ctx, "s1", "a1b2c3d4")
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4", sess.TenantID)

	_, err = service.SwitchTenant(ctx, "s1", "not a tenant")
	assert.True(t, apperrors.IsValidation(err))
}

func TestAuthService_SwitchTenant_RejectsForeignTenant(t *testing.T) {
	tests := []struct {
		name        string
		attrs       map[string]string
		allowedAttr string
	}{
		{
			name:        "not listed",
			attrs:       map[string]string{"custom:tenant_id": "a1b2c3d4", "custom:allowed_tenants": "c3d4e5f6"},
			allowedAttr: "custom:allowed_tenants",
		},
		{
			name:  "allowed list not configured",
			attrs: map[string]string{"custom:tenant_id": "a1b2c3d4", "custom:allowed_tenants": "bbbbbbbb-2222-4222-8222-222222222222"},
		},
		{
			name:        "no attributes",
			attrs:       map[string]string{},
			allowedAttr: "custom:allowed_tenants",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &auditLog{}
			service, sessions := newTestAuthService(t, func(o *AuthServiceOptions) {
				o.Audit = sink
				o.Provider = tenantProvider(tt.attrs)
				o.AllowedTenantsAttribute = tt.allowedAttr
			})
			ctx := context.Background()
			saveSession(t, sessions, domainauth.Session{ID: "s1", UserID: "u1", TenantID: "a1b2c3d4", AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)})

			_, err := service.SwitchTenant(ctx, "s1", "bbbbbbbb-2222-4222-8222-222222222222")

			require.ErrorIs(t, err, domaintenant.ErrTenantNotPermitted)
			assert.True(t, apperrors.IsConflict(err))

			stored, getErr := sessions.Get(ctx, "s1")
			require.NoError(t, getErr)
			assert.Equal(t, "a1b2c3d4", stored.TenantID, "session tenant must be unchanged")

			ev := sink.last()
			assert.Equal(t, audit.TenantConflict, ev.Event)
			assert.True(t, ev.IsSecurity())
			assert.Equal(t, "bbbbbbbb-2222-4222-8222-222222222222", ev.Details["requested"])
			assert.Equal(t, "a1b2c3d4", ev.TenantID)
		})
	}
}

func TestAuthService_SwitchTenant_AttributeFetchError(t *testing.T) {
	provider := mocks.NewMockAuthProvider()
	provider.UserAttributesFunc = func(context.Context, string) (map[string]string, error) {
		return nil, context.DeadlineExceeded
	}
	service, sessions := newTestAuthService(t, func(o *AuthServiceOptions) { o.Provider = provider })
	saveSession(t, sessions, domainauth.Session{ID: "s1", UserID: "u1", TenantID: "a1b2c3d4", AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)})

	_, err := service.SwitchTenant(context.Background(), "s1", "b2c3d4e5")

	require.ErrorIs(t, err, context.DeadlineExceeded)
	stored, getErr := sessions.Get(context.Background(), "s1")
	require.NoError(t, getErr)
	assert.Equal(t, "a1b2c3d4", stored.TenantID)
}

func TestAuthService_Logout(t *testing.T) {
	sink := &auditLog{}
	service, sessions := newTestAuthService(t, func(o *AuthServiceOptions) { o.Audit = sink })
	ctx := context.Background()
	saveSession(t, sessions, domainauth.Session{ID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)})

	require.NoError(t, service.Logout(ctx, "s1"))
	_, err := sessions.Get(ctx, "s1")
	assert.ErrorIs(t, err, mocks.ErrNotFound)
	assert.Equal(t, audit.AuthLogout, sink.last().Event)

	require.NoError(t, service.Logout(ctx, ""))
}

func TestAuthService_Logout_DeleteError(t *testing.T) {
	service, _ := newTestAuthService(t, func(o *AuthServiceOptions) {
		o.Sessions = &mockSessionStore{
			deleteFunc: func(context.Context, string) error { return errors.New("delete error") },
		}
	})

	err := service.Logout(context.Background(), "s1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete session")
}
