package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	apperrors "github.com/target/sessionguard/internal/errors"
	"github.com/target/sessionguard/internal/ports"
)

// idpServer serves discovery and userinfo. Discovery fails while failDiscovery > 0,
// decrementing on every request.
type idpServer struct {
	*httptest.Server
	failDiscovery atomic.Int32
	discoveryHits atomic.Int32
	userInfo      map[string]any
}

func newIDPServer(t *testing.T) *idpServer {
	t.Helper()
	s := &idpServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/.well-known/openid-configuration"):
			s.discoveryHits.Add(1)
			if s.failDiscovery.Load() > 0 {
				s.failDiscovery.Add(-1)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(DiscoveryDocument{
				Issuer:                s.URL,
				AuthorizationEndpoint: "https://example.com/auth",
				TokenEndpoint:         s.URL + "/token",
				UserinfoEndpoint:      s.URL + "/userinfo",
				JwksURI:               s.URL + "/jwks",
			})
		case r.URL.Path == "/userinfo":
			if r.Header.Get("Authorization") != "Bearer good-token" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(s.userInfo)
		case r.URL.Path == "/token":
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *idpServer) config() ProviderConfig {
	return ProviderConfig{
		ClientID:          "test-client",
		ClientSecret:      "test-secret",
		RedirectURL:       "http://localhost:8080/callback",
		Scope:             "openid profile email",
		DiscoveryURL:      s.URL + "/.well-known/openid-configuration",
		LogoutURL:         "https://example.com/logout",
		ConfigureAttempts: 2,
		ConfigureBackoff:  time.Millisecond,
	}
}

func TestNewProvider_Success(t *testing.T) {
	srv := newIDPServer(t)

	provider, err := NewProvider(srv.config())
	require.NoError(t, err)

	c, ok := provider.current()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/auth", c.config.Endpoint.AuthURL)
	assert.Equal(t, srv.URL+"/token", c.config.Endpoint.TokenURL)
	assert.Equal(t, []string{"openid", "profile", "email"}, c.config.Scopes)
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ProviderConfig
		errMsg string
	}{
		{
			name: "missing client ID",
			config: ProviderConfig{
				ClientSecret: "secret",
				RedirectURL:  "http://localhost/callback",
				DiscoveryURL: "http://example.com",
			},
			errMsg: "client ID is required",
		},
		{
			name: "missing client secret",
			config: ProviderConfig{
				ClientID:     "client",
				RedirectURL:  "http://localhost/callback",
				DiscoveryURL: "http://example.com",
			},
			errMsg: "client secret is required",
		},
		{
			name:   "missing redirect URL",
			config: ProviderConfig{ClientID: "client", ClientSecret: "secret", DiscoveryURL: "http://example.com"},
			errMsg: "redirect URL is required",
		},
		{
			name: "missing discovery URL",
			config: ProviderConfig{
				ClientID:     "client",
				ClientSecret: "secret",
				RedirectURL:  "http://localhost/callback",
			},
			errMsg: "discovery URL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewProvider_DiscoveryFailureRecoversOnUse(t *testing.T) {
	srv := newIDPServer(t)
	// startup attempt plus the first lazy attempt fail, the retry succeeds
	srv.failDiscovery.Store(2)

	provider, err := NewProvider(srv.config())
	require.NoError(t, err)
	_, ok := provider.current()
	require.False(t, ok)

	authURL, _, _, err := provider.Begin(context.Background(), ports.BeginInput{RedirectURL: "http://localhost:8080/callback"})
	require.NoError(t, err)
	assert.Contains(t, authURL, "https://example.com/auth")
	assert.Equal(t, int32(3), srv.discoveryHits.Load())
}

func TestProvider_ConfigurationLost(t *testing.T) {
	srv := newIDPServer(t)
	srv.failDiscovery.Store(100)

	provider, err := NewProvider(srv.config())
	require.NoError(t, err)

	_, _, _, err = provider.Begin(context.Background(), ports.BeginInput{RedirectURL: "http://localhost:8080/callback"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConfigurationLost(err))
	// one startup attempt plus the bounded retries
	assert.Equal(t, int32(3), srv.discoveryHits.Load())

	_, err = provider.UserAttributes(context.Background(), "good-token")
	assert.True(t, apperrors.IsConfigurationLost(err))
}

func TestProvider_ReadyHonorsContext(t *testing.T) {
	srv := newIDPServer(t)
	srv.failDiscovery.Store(100)
	cfg := srv.config()
	cfg.ConfigureAttempts = 5
	cfg.ConfigureBackoff = time.Hour

	provider, err := NewProvider(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = provider.ready(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsConfigurationLost(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProvider_Begin(t *testing.T) {
	provider := createTestProvider(t)

	authURL, state, nonce, err := provider.Begin(context.Background(), ports.BeginInput{RedirectURL: "http://localhost:8080/callback"})

	require.NoError(t, err)
	assert.Len(t, state, 32)
	assert.Len(t, nonce, 32)
	assert.Contains(t, authURL, "https://example.com/auth")
	assert.Contains(t, authURL, "client_id=test-client")
	assert.Contains(t, authURL, "state="+state)
	assert.Contains(t, authURL, "nonce="+nonce)
}

func TestProvider_Begin_EmptyRedirectURL(t *testing.T) {
	provider := createTestProvider(t)

	_, _, _, err := provider.Begin(context.Background(), ports.BeginInput{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect URL is required")
}

func TestProvider_Exchange_ValidationErrors(t *testing.T) {
	provider := createTestProvider(t)

	tests := []struct {
		name   string
		input  ports.ExchangeInput
		errMsg string
	}{
		{name: "missing code", input: ports.ExchangeInput{State: "state", Nonce: "nonce"}, errMsg: "authorization code is required"},
		{name: "missing state", input: ports.ExchangeInput{Code: "code", Nonce: "nonce"}, errMsg: "state is required"},
		{name: "missing nonce", input: ports.ExchangeInput{Code: "code", State: "state"}, errMsg: "nonce is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := provider.Exchange(context.Background(), tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_Exchange_TokenEndpointRejects(t *testing.T) {
	provider := createTestProvider(t)

	_, err := provider.Exchange(context.Background(), ports.ExchangeInput{Code: "c", State: "s", Nonce: "n"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange code for token")
}

func TestProvider_UserAttributes(t *testing.T) {
	srv := newIDPServer(t)
	srv.userInfo = map[string]any{
		"sub":              "sub-1",
		"email":            "ada@example.com",
		"custom:tenant_id": "a1b2c3d4",
		"roles":            []any{"admin", "viewer"},
		"org":              map[string]any{"id": "org-9"},
		"email_verified":   true,
	}
	provider, err := NewProvider(srv.config())
	require.NoError(t, err)

	attrs, err := provider.UserAttributes(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4", attrs["custom:tenant_id"])
	assert.Equal(t, "admin,viewer", attrs["roles"])
	assert.Equal(t, "org-9", attrs["org.id"])
	assert.Equal(t, "true", attrs["email_verified"])

	_, err = provider.UserAttributes(context.Background(), "bad-token")
	require.Error(t, err)

	_, err = provider.UserAttributes(context.Background(), "")
	assert.True(t, apperrors.IsUnauthenticated(err))
}

func TestGenerateRandomString(t *testing.T) {
	str1, err := generateRandomString(16)
	require.NoError(t, err)
	assert.Len(t, str1, 16)

	str2, err := generateRandomString(32)
	require.NoError(t, err)
	assert.Len(t, str2, 32)
	assert.NotEqual(t, str1, str2)

	empty, err := generateRandomString(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func createTestProvider(t *testing.T) *Provider {
	t.Helper()
	provider, err := NewProvider(newIDPServer(t).config())
	require.NoError(t, err)
	return provider
}

func TestProvider_ImplementsInterface(t *testing.T) {
	var _ ports.AuthProvider = createTestProvider(t)
}

func TestGetIDTokenFromToken(t *testing.T) {
	tok := (&oauth2.Token{}).WithExtra(map[string]any{"id_token": "abc.def.ghi"})
	idTok, err := getIDTokenFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", idTok)

	_, err = getIDTokenFromToken((&oauth2.Token{}).WithExtra(map[string]any{"not_id": "x"}))
	require.ErrorContains(t, err, "missing id_token")

	_, err = getIDTokenFromToken(nil)
	require.ErrorContains(t, err, "nil token")
}

func Test_mapIDTokenClaims_ADShape(t *testing.T) {
	f := mapIDTokenClaims(idTokenClaims{
		Sub:            "sub-123",
		SamAccountName: "sammy",
		FirstName:      "First",
		GivenName:      "Ignored",
		LastName:       "Last",
		Mail:           "mail@example.com",
		Email:          "other@example.com",
	})
	assert.Equal(t, "sammy", f.userID)
	assert.Equal(t, "mail@example.com", f.email)
	assert.Equal(t, "First", f.givenName)
	assert.Equal(t, "Last", f.familyName)
}

func Test_fillFromUserInfoClaims(t *testing.T) {
	ui := UserInfo{Subject: "sub-abc", GivenName: "First", FamilyName: "Last", Email: "mail@example.com"}

	var f idFields
	fillFromUserInfoClaims(&f, ui, map[string]string{"custom:tenant_id": "a1b2c3d4"})
	assert.Equal(t, "sub-abc", f.userID)
	assert.Equal(t, "mail@example.com", f.email)
	assert.Equal(t, "First", f.givenName)
	assert.Equal(t, "Last", f.familyName)
	assert.Equal(t, "a1b2c3d4", f.attributes["custom:tenant_id"])

	kept := idFields{
		userID:     "keep",
		email:      "keep@example.com",
		givenName:  "Keep",
		familyName: "Keep",
		attributes: map[string]string{"custom:tenant_id": "11111111"},
	}
	fillFromUserInfoClaims(&kept, ui, map[string]string{"custom:tenant_id": "a1b2c3d4", "dept": "ops"})
	assert.Equal(t, "keep", kept.userID)
	assert.Equal(t, "keep@example.com", kept.email)
	assert.Equal(t, "11111111", kept.attributes["custom:tenant_id"])
	assert.Equal(t, "ops", kept.attributes["dept"])
}

func Test_flattenClaims_DropsTokenBookkeeping(t *testing.T) {
	out := flattenClaims(map[string]any{
		"sub":   "u",
		"nonce": "n",
		"aud":   []any{"client"},
		"exp":   float64(1700000000),
		"skip":  nil,
		"ids":   []any{float64(1), float64(2)},
	})
	assert.Equal(t, map[string]string{"sub": "u", "ids": "1,2"}, out)
}
