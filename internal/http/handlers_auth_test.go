package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/sessionguard/internal/domain/auth"
	apperrors "github.com/target/sessionguard/internal/errors"
	"github.com/target/sessionguard/internal/service"
)

func signedOutQuery(t *testing.T, rec *httptest.ResponseRecorder) url.Values {
	t.Helper()
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/auth/signed-out", loc.Path)
	return loc.Query()
}

func callbackRequest(query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?"+query, nil)
	req.AddCookie(&http.Cookie{Name: cookieOAuthState, Value: "test-state"})
	req.AddCookie(&http.Cookie{Name: cookieOAuthNonce, Value: "test-nonce"})
	req.AddCookie(&http.Cookie{Name: cookiePostLogin, Value: "/payments/new"})
	return req
}

func TestAuthHandlers_Login_Success(t *testing.T) {
	svc := &fakeAuthService{}
	h := &AuthHandlers{Svc: svc}

	req := httptest.NewRequest(http.MethodGet, "/auth/login?redirect_uri=/reports", nil)
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://idp.example.com/auth?state=test-state&nonce=test-nonce", rec.Header().Get("Location"))
	assert.Equal(t, []string{"/reports"}, svc.beginInputs)

	cookies := rec.Result().Cookies()
	require.NotNil(t, findCookie(cookies, cookieOAuthState))
	assert.Equal(t, "test-state", findCookie(cookies, cookieOAuthState).Value)
	assert.Equal(t, "test-nonce", findCookie(cookies, cookieOAuthNonce).Value)
	assert.Equal(t, "/reports", findCookie(cookies, cookiePostLogin).Value)
	assert.True(t, findCookie(cookies, cookieOAuthState).HttpOnly)
}

func TestAuthHandlers_Login_RejectsOffsiteRedirect(t *testing.T) {
	for _, target := range []string{"https://evil.example.com", "//evil.example.com/x", "relative"} {
		svc := &fakeAuthService{}
		h := &AuthHandlers{Svc: svc}

		req := httptest.NewRequest(http.MethodGet, "/auth/login?redirect_uri="+url.QueryEscape(target), nil)
		h.Login(httptest.NewRecorder(), req)

		assert.Equal(t, []string{"/"}, svc.beginInputs, "redirect %q", target)
	}
}

func TestAuthHandlers_Login_ConfigurationLost(t *testing.T) {
	svc := &fakeAuthService{
		beginLoginFunc: func(context.Context, string) (*service.BeginLoginResult, error) {
			return nil, apperrors.New(apperrors.ErrCodeConfigurationLost, "identity provider not configured")
		},
	}
	h := &AuthHandlers{Svc: svc}

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login?redirect_uri=/home", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	q := signedOutQuery(t, rec)
	assert.Equal(t, "configuration_lost", q.Get("reason"))
	assert.Equal(t, "/home", q.Get("redirect_uri"))
}

func TestAuthHandlers_Callback_Success(t *testing.T) {
	var got service.CompleteLoginInput
	svc := &fakeAuthService{
		completeLoginFunc: func(_ context.Context, in service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
			got = in
			return &service.CompleteLoginResult{Session: domainauth.Session{ID: "new-session"}}, nil
		},
	}
	h := &AuthHandlers{Svc: svc}

	rec := httptest.NewRecorder()
	h.Callback(rec, callbackRequest("code=abc&state=test-state"))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/payments/new", rec.Header().Get("Location"))
	assert.Equal(t, service.CompleteLoginInput{Code: "abc", State: "test-state", Nonce: "test-nonce"}, got)

	cookies := rec.Result().Cookies()
	sess := findCookie(cookies, sessionCookieName)
	require.NotNil(t, sess)
	assert.Equal(t, "new-session", sess.Value)
	assert.Equal(t, -1, findCookie(cookies, cookieOAuthState).MaxAge)
}

func TestAuthHandlers_Callback_FailureReasons(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		completeFn func(context.Context, service.CompleteLoginInput) (*service.CompleteLoginResult, error)
		want       string
	}{
		{name: "missing code", query: "state=test-state", want: "no_code"},
		{name: "provider error", query: "error=access_denied", want: "oauth"},
		{name: "state mismatch", query: "code=abc&state=other", want: "oauth"},
		{
			name:  "exchange timeout",
			query: "code=abc&state=test-state",
			completeFn: func(context.Context, service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
				return nil, fmt.Errorf("exchange authorization code: %w", context.DeadlineExceeded)
			},
			want: "token_timeout",
		},
		{
			name:  "configuration lost",
			query: "code=abc&state=test-state",
			completeFn: func(context.Context, service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
				return nil, apperrors.Wrap(errors.New("discovery failed"), apperrors.ErrCodeConfigurationLost, "identity provider not configured")
			},
			want: "configuration_lost",
		},
		{
			name:  "exchange rejected",
			query: "code=abc&state=test-state",
			completeFn: func(context.Context, service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
				return nil, errors.New("invalid_grant")
			},
			want: "oauth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &AuthHandlers{Svc: &fakeAuthService{completeLoginFunc: tt.completeFn}}
			rec := httptest.NewRecorder()
			h.Callback(rec, callbackRequest(tt.query))

			assert.Equal(t, http.StatusFound, rec.Code)
			q := signedOutQuery(t, rec)
			assert.Equal(t, tt.want, q.Get("reason"))
			assert.Equal(t, "/payments/new", q.Get("redirect_uri"))
			assert.Nil(t, findCookie(rec.Result().Cookies(), sessionCookieName))
		})
	}
}

func TestAuthHandlers_Logout_ClearsEverything(t *testing.T) {
	svc := &fakeAuthService{}
	tracker := &fakeTracker{}
	resolver := &fakeResolver{}
	h := &AuthHandlers{Svc: svc, Tracker: tracker, Tenants: resolver}

	req := withSessionCookie(httptest.NewRequest(http.MethodPost, "/auth/logout?redirect_uri=/billing", nil), "s1")
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	q := signedOutQuery(t, rec)
	assert.Equal(t, "logout", q.Get("reason"))
	assert.Equal(t, "/billing", q.Get("redirect_uri"))

	assert.Equal(t, []string{"s1"}, svc.logouts)
	assert.Equal(t, []string{"s1"}, tracker.removed)
	assert.Equal(t, []string{"s1"}, resolver.invalidations())
	assert.Equal(t, -1, findCookie(rec.Result().Cookies(), sessionCookieName).MaxAge)
}

func TestAuthHandlers_Logout_AJAX(t *testing.T) {
	h := &AuthHandlers{Svc: &fakeAuthService{}, SignedOutPath: "/signin"}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "/signin?reason=logout&redirect_uri=%2F", body["redirect_to"])
}

func TestAuthHandlers_Status(t *testing.T) {
	h := &AuthHandlers{Svc: &fakeAuthService{}}

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/auth/status", nil))
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Status(rec, withSessionCookie(httptest.NewRequest(http.MethodGet, "/auth/status", nil), "s1"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "a1b2c3d4", body["tenant_id"])

	expired := &AuthHandlers{Svc: &fakeAuthService{
		getSessionFunc: func(context.Context, string) (*domainauth.Session, error) {
			return nil, service.ErrSessionExpired
		},
	}}
	rec = httptest.NewRecorder()
	expired.Status(rec, withSessionCookie(httptest.NewRequest(http.MethodGet, "/auth/status", nil), "s1"))
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())
	assert.Equal(t, -1, findCookie(rec.Result().Cookies(), sessionCookieName).MaxAge)
}

func TestAuthHandlers_SignedOut(t *testing.T) {
	h := &AuthHandlers{}

	rec := httptest.NewRecorder()
	h.SignedOut(rec, httptest.NewRequest(http.MethodGet, "/auth/signed-out?reason=timeout&redirect_uri=/payments", nil))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "timeout", body["reason"])
	assert.Equal(t, "You were signed out after a period of inactivity.", body["message"])
	assert.Equal(t, "/payments", body["redirect_uri"])
	assert.Equal(t, "/auth/login?redirect_uri=%2Fpayments", body["login_url"])

	rec = httptest.NewRecorder()
	h.SignedOut(rec, httptest.NewRequest(http.MethodGet, "/auth/signed-out?reason=bogus&redirect_uri=https://evil.example.com", nil))
	body = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body["reason"])
	assert.Equal(t, "Please sign in again.", body["message"])
	assert.Equal(t, "/", body["redirect_uri"])
}
