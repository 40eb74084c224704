package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	domainauth "github.com/target/sessionguard/internal/domain/auth"
	domainsession "github.com/target/sessionguard/internal/domain/session"
	"github.com/target/sessionguard/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider   = (*MockAuthProvider)(nil)
	_ ports.SessionStore   = (*MemorySessionStore)(nil)
	_ ports.AttributeStore = (*MemoryAttributeStore)(nil)
	_ ports.RecoveryStore  = (*MemoryRecoveryStore)(nil)
	_ ports.AuthGateway    = (*StubAuthGateway)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc          func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc       func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)
	UserAttributesFunc func(ctx context.Context, accessToken string) (map[string]string, error)

	// Deterministic values for predictable testing
	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		DefaultUser: defaultIdentity(),
	}
}

func defaultIdentity() domainauth.Identity {
	return domainauth.Identity{
		UserID:      "mock-user-1",
		FirstName:   "Mock",
		LastName:    "User",
		Email:       "mock.user@example.com",
		AccessToken: "mock-access-token",
		Attributes:  map[string]string{"custom:tenant_id": "3f1c2a9e-6b4d-4e8f-9a71-0c5d2e8b7f10"},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}

	return authURL, fmt.Sprintf("%s-%d", statePrefix, n), fmt.Sprintf("%s-%d", noncePrefix, n), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}

	// Return a copy of the default user with a fresh expiration time
	user := m.DefaultUser
	if user.UserID == "" {
		user = defaultIdentity()
	}
	user.Attributes = maps.Clone(user.Attributes)
	user.ExpiresAt = time.Now().Add(time.Hour)
	return user, nil
}

func (m *MockAuthProvider) UserAttributes(ctx context.Context, accessToken string) (map[string]string, error) {
	if m.UserAttributesFunc != nil {
		return m.UserAttributesFunc(ctx, accessToken)
	}
	attrs := m.DefaultUser.Attributes
	if attrs == nil {
		attrs = defaultIdentity().Attributes
	}
	return maps.Clone(attrs), nil
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if id == "" || !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) Touch(_ context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if until.After(sess.ExpiresAt) {
		sess.ExpiresAt = until
		m.sessions[id] = sess
	}
	return nil
}

// ErrNotFound is returned by the memory session store for unknown ids.
var ErrNotFound = ports.ErrSessionNotFound

// MemoryAttributeStore is an in-memory attribute overlay.
type MemoryAttributeStore struct {
	mu    sync.Mutex
	attrs map[string]map[string]string

	// PutErr, when set, is returned from PutUserAttribute.
	PutErr error
}

// NewMemoryAttributeStore creates an empty overlay.
func NewMemoryAttributeStore() *MemoryAttributeStore {
	return &MemoryAttributeStore{attrs: make(map[string]map[string]string)}
}

func (m *MemoryAttributeStore) GetUserAttributes(_ context.Context, userID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.attrs[userID]), nil
}

func (m *MemoryAttributeStore) PutUserAttribute(_ context.Context, userID, name, value string) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attrs[userID] == nil {
		m.attrs[userID] = make(map[string]string)
	}
	m.attrs[userID][name] = value
	return nil
}

// MemoryRecoveryStore keeps snapshots in memory and records save order.
type MemoryRecoveryStore struct {
	mu    sync.Mutex
	snaps map[string]domainsession.RecoverySnapshot
	Saves int

	// OnSave runs after each successful save; tests use it to assert ordering.
	OnSave func(userID string, snap domainsession.RecoverySnapshot)
}

// NewMemoryRecoveryStore creates an empty recovery store.
func NewMemoryRecoveryStore() *MemoryRecoveryStore {
	return &MemoryRecoveryStore{snaps: make(map[string]domainsession.RecoverySnapshot)}
}

func (m *MemoryRecoveryStore) Save(
	_ context.Context,
	userID string,
	snap domainsession.RecoverySnapshot,
	_ time.Duration,
) error {
	m.mu.Lock()
	m.snaps[userID] = snap
	m.Saves++
	hook := m.OnSave
	m.mu.Unlock()
	if hook != nil {
		hook(userID, snap)
	}
	return nil
}

func (m *MemoryRecoveryStore) Take(_ context.Context, userID string) (domainsession.RecoverySnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[userID]
	delete(m.snaps, userID)
	return snap, ok, nil
}

// StubAuthGateway is a configurable AuthGateway that counts calls.
type StubAuthGateway struct {
	FetchCurrentSessionFunc func(ctx context.Context, sessionID string) (ports.CurrentSession, error)
	FetchUserAttributesFunc func(ctx context.Context, sessionID string) (map[string]string, error)
	LogoutFunc              func(ctx context.Context, sessionID string) error
	ExtendSessionFunc       func(ctx context.Context, sessionID string) error

	mu    sync.Mutex
	calls map[string]int
}

func (s *StubAuthGateway) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[name]++
}

// Calls returns how many times the named method ran.
func (s *StubAuthGateway) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *StubAuthGateway) FetchCurrentSession(ctx context.Context, sessionID string) (ports.CurrentSession, error) {
	s.record("FetchCurrentSession")
	if s.FetchCurrentSessionFunc != nil {
		return s.FetchCurrentSessionFunc(ctx, sessionID)
	}
	return ports.CurrentSession{}, nil
}

func (s *StubAuthGateway) FetchUserAttributes(ctx context.Context, sessionID string) (map[string]string, error) {
	s.record("FetchUserAttributes")
	if s.FetchUserAttributesFunc != nil {
		return s.FetchUserAttributesFunc(ctx, sessionID)
	}
	return map[string]string{}, nil
}

func (s *StubAuthGateway) Logout(ctx context.Context, sessionID string) error {
	s.record("Logout")
	if s.LogoutFunc != nil {
		return s.LogoutFunc(ctx, sessionID)
	}
	return nil
}

func (s *StubAuthGateway) ExtendSession(ctx context.Context, sessionID string) error {
	s.record("ExtendSession")
	if s.ExtendSessionFunc != nil {
		return s.ExtendSessionFunc(ctx, sessionID)
	}
	return nil
}
