package ports_test

import (
	"testing"

	mocks "github.com/target/sessionguard/internal/mocks/auth"
	"github.com/target/sessionguard/internal/ports"
)

// This test only verifies that our mocks conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.AuthProvider = (*mocks.MockAuthProvider)(nil)
	var _ ports.SessionStore = (*mocks.MemorySessionStore)(nil)
	var _ ports.AttributeStore = (*mocks.MemoryAttributeStore)(nil)
	var _ ports.RecoveryStore = (*mocks.MemoryRecoveryStore)(nil)
	var _ ports.AuthGateway = (*mocks.StubAuthGateway)(nil)
}
