package oidc

// Package oidc provides the OIDC/OAuth2 identity provider adapter.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/target/sessionguard/internal/domain/auth"
	apperrors "github.com/target/sessionguard/internal/errors"
	"github.com/target/sessionguard/internal/ports"
)

const (
	defaultConfigureAttempts = 3
	defaultConfigureBackoff  = 250 * time.Millisecond
)

// Provider implements ports.AuthProvider using OIDC/OAuth2. Discovery is retried
// lazily: if the provider document could not be loaded at startup, the next call
// tries again with bounded attempts before reporting configuration_lost.
type Provider struct {
	cfg        ProviderConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.Mutex
	config       *oauth2.Config
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	LogoutURL    string
	HTTPClient   *http.Client // Optional, defaults to a 30s client

	// ConfigureAttempts bounds discovery retries; attempt n waits n*ConfigureBackoff first.
	ConfigureAttempts int
	ConfigureBackoff  time.Duration
	Logger            *slog.Logger
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider validates config and attempts discovery once. A discovery failure is
// logged and left for the first call to recover from.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}
	if config.ConfigureAttempts <= 0 {
		config.ConfigureAttempts = defaultConfigureAttempts
	}
	if config.ConfigureBackoff <= 0 {
		config.ConfigureBackoff = defaultConfigureBackoff
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		cfg:        config,
		httpClient: httpClient,
		logger:     logger.With("component", "oidc_provider"),
	}
	if err := p.configure(context.Background()); err != nil {
		p.logger.Warn("oidc discovery failed; will retry on first use", "error", err)
	}
	return p, nil
}

func (p *Provider) issuer() string {
	issuer := strings.TrimSuffix(p.cfg.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	return strings.TrimSuffix(issuer, ".well-known/openid-configuration")
}

// configure loads the discovery document and builds the oauth2 client.
func (p *Provider) configure(ctx context.Context) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	op, err := gooidc.NewProvider(ctx, p.issuer())
	if err != nil {
		return fmt.Errorf("oidc new provider: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: p.cfg.ClientID})
	p.config = &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Scopes:       strings.Fields(p.cfg.Scope),
		Endpoint:     op.Endpoint(),
	}
	return nil
}

type configured struct {
	config   *oauth2.Config
	provider *gooidc.Provider
	verifier *gooidc.IDTokenVerifier
}

func (p *Provider) current() (configured, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.config == nil {
		return configured{}, false
	}
	return configured{config: p.config, provider: p.oidcProvider, verifier: p.verifier}, true
}

// ready returns the configured client, re-running discovery with linear backoff
// when needed.
func (p *Provider) ready(ctx context.Context) (configured, error) {
	if c, ok := p.current(); ok {
		return c, nil
	}

	var lastErr error
	for attempt := range p.cfg.ConfigureAttempts {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * p.cfg.ConfigureBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return configured{}, apperrors.Wrap(ctx.Err(), apperrors.ErrCodeConfigurationLost, "identity provider not configured")
			case <-timer.C:
			}
		}
		if lastErr = p.configure(ctx); lastErr == nil {
			p.logger.InfoContext(ctx, "oidc provider reconfigured", "attempt", attempt+1)
			c, _ := p.current()
			return c, nil
		}
		p.logger.WarnContext(ctx, "oidc reconfigure attempt failed", "attempt", attempt+1, "error", lastErr)
	}
	return configured{}, apperrors.Wrap(lastErr, apperrors.ErrCodeConfigurationLost, "identity provider not configured")
}

func (p *Provider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}
	c, err := p.ready(ctx)
	if err != nil {
		return "", "", "", err
	}

	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	// redirect_uri must match the configured RedirectURL exactly, so it is not overridden here.
	authURL := c.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("response_type", "code"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)

	return authURL, state, nonce, nil
}

func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return domainauth.Identity{}, errors.New("state is required")
	}
	if in.Nonce == "" {
		return domainauth.Identity{}, errors.New("nonce is required")
	}
	c, err := p.ready(ctx)
	if err != nil {
		return domainauth.Identity{}, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := c.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	fields, err := extractFromIDToken(ctx, c, token, in.Nonce)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("extract id_token: %w", err)
	}

	if fields.email == "" || fields.userID == "" || len(fields.attributes) == 0 {
		if fillErr := p.fillFromUserInfo(ctx, c, token.AccessToken, &fields); fillErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", fillErr)
		}
	}

	expiresAt := time.Now().Add(time.Hour)
	if !token.Expiry.IsZero() {
		expiresAt = token.Expiry
	}

	return domainauth.Identity{
		UserID:      fields.userID,
		FirstName:   fields.givenName,
		LastName:    fields.familyName,
		Email:       fields.email,
		ExpiresAt:   expiresAt,
		AccessToken: token.AccessToken,
		Attributes:  fields.attributes,
	}, nil
}

// UserAttributes fetches the UserInfo claims for accessToken as a flat string map.
func (p *Provider) UserAttributes(ctx context.Context, accessToken string) (map[string]string, error) {
	if accessToken == "" {
		return nil, apperrors.Unauthenticated("access token is required")
	}
	c, err := p.ready(ctx)
	if err != nil {
		return nil, err
	}
	_, attrs, err := p.userInfo(ctx, c, accessToken)
	if err != nil {
		return nil, err
	}
	return attrs, nil
}

// UserInfo represents the user information from the OIDC userinfo endpoint.
type UserInfo struct {
	Subject        string `json:"sub"`
	SamAccountName string `json:"samaccountname"`
	FirstName      string `json:"firstname"`
	LastName       string `json:"lastname"`
	GivenName      string `json:"given_name"`
	FamilyName     string `json:"family_name"`
	Mail           string `json:"mail"`
	Email          string `json:"email"`
}

func (p *Provider) userInfo(ctx context.Context, c configured, accessToken string) (*UserInfo, map[string]string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	ui, err := c.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return nil, nil, fmt.Errorf("fetch user info: %w", err)
	}
	var userInfo UserInfo
	if claimsErr := ui.Claims(&userInfo); claimsErr != nil {
		return nil, nil, fmt.Errorf("decode user info: %w", claimsErr)
	}
	var raw map[string]any
	if claimsErr := ui.Claims(&raw); claimsErr != nil {
		return nil, nil, fmt.Errorf("decode user info claims: %w", claimsErr)
	}
	return &userInfo, flattenClaims(raw), nil
}

type idFields struct {
	userID     string
	email      string
	givenName  string
	familyName string
	attributes map[string]string
}

func extractFromIDToken(ctx context.Context, c configured, tok *oauth2.Token, expectedNonce string) (idFields, error) {
	var f idFields
	if !slices.Contains(c.config.Scopes, "openid") {
		return f, nil
	}
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return f, err
	}
	idTok, err := c.verifier.Verify(ctx, rawID)
	if err != nil {
		return f, fmt.Errorf("verify id_token: %w", err)
	}
	var claims idTokenClaims
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return f, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	if expectedNonce != "" && claims.Nonce != expectedNonce {
		return f, errors.New("invalid nonce")
	}
	var raw map[string]any
	if claimsErr := idTok.Claims(&raw); claimsErr != nil {
		return f, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	f = mapIDTokenClaims(claims)
	f.attributes = flattenClaims(raw)
	return f, nil
}

func (p *Provider) fillFromUserInfo(ctx context.Context, c configured, accessToken string, f *idFields) error {
	ui, attrs, err := p.userInfo(ctx, c, accessToken)
	if err != nil {
		return err
	}
	fillFromUserInfoClaims(f, *ui, attrs)
	return nil
}

// idTokenClaims covers both standard OIDC and AD/ADFS claim shapes.
type idTokenClaims struct {
	Sub            string `json:"sub"`
	SamAccountName string `json:"samaccountname"`
	FirstName      string `json:"firstname"`
	LastName       string `json:"lastname"`
	GivenName      string `json:"given_name"`
	FamilyName     string `json:"family_name"`
	Mail           string `json:"mail"`
	Email          string `json:"email"`
	Nonce          string `json:"nonce"`
}

// mapIDTokenClaims maps raw id token claims into idFields. AD claim names take
// precedence over their OIDC equivalents.
func mapIDTokenClaims(c idTokenClaims) idFields {
	return idFields{
		userID:     firstNonEmpty(c.SamAccountName, c.Sub),
		email:      firstNonEmpty(c.Mail, c.Email),
		givenName:  firstNonEmpty(c.FirstName, c.GivenName),
		familyName: firstNonEmpty(c.LastName, c.FamilyName),
	}
}

// fillFromUserInfoClaims fills missing fields from a UserInfo payload. Attributes
// from the id token win over UserInfo values of the same name.
func fillFromUserInfoClaims(f *idFields, ui UserInfo, attrs map[string]string) {
	if f.userID == "" {
		f.userID = firstNonEmpty(ui.SamAccountName, ui.Subject)
	}
	if f.email == "" {
		f.email = firstNonEmpty(ui.Mail, ui.Email)
	}
	if f.givenName == "" {
		f.givenName = firstNonEmpty(ui.FirstName, ui.GivenName)
	}
	if f.familyName == "" {
		f.familyName = firstNonEmpty(ui.LastName, ui.FamilyName)
	}
	if f.attributes == nil {
		f.attributes = make(map[string]string, len(attrs))
	}
	for k, v := range attrs {
		if _, ok := f.attributes[k]; !ok {
			f.attributes[k] = v
		}
	}
}

// flattenClaims turns a claim set into string attributes. Nested objects use
// dotted keys and lists are comma-joined. Token bookkeeping claims are dropped.
func flattenClaims(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	flattenInto(out, "", raw)
	for _, k := range []string{"nonce", "at_hash", "c_hash", "aud", "iss", "iat", "exp", "nbf", "auth_time"} {
		delete(out, k)
	}
	return out
}

func flattenInto(out map[string]string, prefix string, raw map[string]any) {
	for k, v := range raw {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case nil:
		case string:
			out[key] = val
		case map[string]any:
			flattenInto(out, key, val)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < length {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:length], nil
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
