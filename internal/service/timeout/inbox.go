package timeout

import (
	"context"
	"sync"

	"github.com/target/sessionguard/internal/domain/session"
	"github.com/target/sessionguard/internal/ports"
)

const defaultInboxCapacity = 32

var _ ports.Notifier = (*Inbox)(nil)

// Inbox buffers notices per session until the tab polls for them. When a queue is
// full the oldest notice is dropped.
type Inbox struct {
	capacity int

	mu     sync.Mutex
	queues map[string][]session.Notice
}

// NewInbox creates an inbox holding up to capacity notices per session.
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = defaultInboxCapacity
	}
	return &Inbox{capacity: capacity, queues: make(map[string][]session.Notice)}
}

// Notify implements ports.Notifier.
func (i *Inbox) Notify(_ context.Context, sessionID string, n session.Notice) {
	i.mu.Lock()
	defer i.mu.Unlock()
	q := append(i.queues[sessionID], n)
	if len(q) > i.capacity {
		q = q[len(q)-i.capacity:]
	}
	i.queues[sessionID] = q
}

// Drain returns and removes every queued notice for sessionID.
func (i *Inbox) Drain(sessionID string) []session.Notice {
	i.mu.Lock()
	defer i.mu.Unlock()
	q := i.queues[sessionID]
	delete(i.queues, sessionID)
	return q
}

// ClearSession implements ports.SessionCleaner.
func (i *Inbox) ClearSession(_ context.Context, sessionID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.queues, sessionID)
	return nil
}
