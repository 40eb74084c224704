package devauth

// Package devauth provides a simple, config-driven AuthProvider for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	domainauth "github.com/target/sessionguard/internal/domain/auth"
	apperrors "github.com/target/sessionguard/internal/errors"
	"github.com/target/sessionguard/internal/ports"
)

const devAccessToken = "dev-access-token"

// Config controls the dev auth provider behavior.
// UserID and Email are required. TenantID, when set, is published under TenantAttribute.
type Config struct {
	UserID          string
	Email           string
	TenantID        string
	TenantAttribute string        // default "custom:tenant_id"
	SessionDuration time.Duration // default 8h when zero
}

// Provider implements ports.AuthProvider for local development.
// It short-circuits the OAuth flow by redirecting back to our own callback
// with locally generated state and nonce.
// Exchange ignores the code and returns the configured identity.
type Provider struct {
	mu              sync.Mutex
	identity        domainauth.Identity
	sessionDuration time.Duration
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	attr := cfg.TenantAttribute
	if attr == "" {
		attr = "custom:tenant_id"
	}
	attrs := map[string]string{"sub": cfg.UserID, "email": cfg.Email}
	if cfg.TenantID != "" {
		attrs[attr] = cfg.TenantID
	}
	return &Provider{
		identity: domainauth.Identity{
			UserID:      cfg.UserID,
			Email:       cfg.Email,
			ExpiresAt:   time.Now().Add(dur),
			AccessToken: devAccessToken,
			Attributes:  attrs,
		},
		sessionDuration: dur,
	}, nil
}

// Begin returns a local callback URL and cryptographically secure state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	// Our standard handler expects GET /auth/callback?code=...&state=...
	authURL := "/auth/callback?code=dev&state=" + state
	return authURL, state, nonce, nil
}

// Exchange ignores the provided code/state/nonce (validation handled by handler) and returns the dev identity.
func (p *Provider) Exchange(_ context.Context, _ ports.ExchangeInput) (domainauth.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Until(p.identity.ExpiresAt) < 5*time.Minute {
		p.identity.ExpiresAt = time.Now().Add(p.sessionDuration)
	}
	id := p.identity
	id.Attributes = maps.Clone(p.identity.Attributes)
	return id, nil
}

// UserAttributes returns the configured attributes for the dev access token.
func (p *Provider) UserAttributes(_ context.Context, accessToken string) (map[string]string, error) {
	if accessToken != devAccessToken {
		return nil, apperrors.Unauthenticated("unknown access token")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.identity.Attributes), nil
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < n {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:n], nil
}
