package ports

import (
	"context"
	"time"

	domainsession "github.com/target/sessionguard/internal/domain/session"
)

// Navigator performs the hard navigation that ends a forced logout.
type Navigator interface {
	Redirect(ctx context.Context, sessionID, url string)
}

// Notifier receives user-facing notices. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, sessionID string, n domainsession.Notice)
}

// RecoveryStore keeps recovery snapshots across a forced sign-out.
type RecoveryStore interface {
	Save(ctx context.Context, userID string, snap domainsession.RecoverySnapshot, ttl time.Duration) error
	// Take returns and removes the snapshot. ok is false when none exists.
	Take(ctx context.Context, userID string) (snap domainsession.RecoverySnapshot, ok bool, err error)
}

// SessionCleaner drops per-session sensitive state when a session ends.
type SessionCleaner interface {
	ClearSession(ctx context.Context, sessionID string) error
}
