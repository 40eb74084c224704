package clock

import (
	"sort"
	"sync"
	"time"
)

// Scheduler owns a set of named one-shot timers on top of a Clock.
//
// Scheduling a name that is already pending replaces the earlier timer.
// A callback only runs if its entry is still the current one for that
// name when it fires, so a timer that was replaced or cancelled after
// the underlying clock already started firing it is discarded.
type Scheduler struct {
	clock Clock

	mu     sync.Mutex
	seq    uint64
	timers map[string]*scheduled
}

type scheduled struct {
	id    uint64
	timer *Timer
}

// NewScheduler creates a Scheduler on the given clock (Real when nil).
func NewScheduler(c Clock) *Scheduler {
	if c == nil {
		c = Real()
	}
	return &Scheduler{clock: c, timers: make(map[string]*scheduled)}
}

// Clock returns the scheduler's time source.
func (s *Scheduler) Clock() Clock { return s.clock }

// Schedule arms fn to run after d under name, replacing any pending
// timer with the same name.
func (s *Scheduler) Schedule(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[name]; ok {
		prev.timer.Stop()
	}
	s.seq++
	id := s.seq
	entry := &scheduled{id: id}
	s.timers[name] = entry
	entry.timer = s.clock.AfterFunc(d, func() {
		if !s.claim(name, id) {
			return
		}
		fn()
	})
}

// claim removes the entry for name if it is still entry id.
func (s *Scheduler) claim(name string, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.timers[name]
	if !ok || cur.id != id {
		return false
	}
	delete(s.timers, name)
	return true
}

// Cancel stops the named timer. It reports whether one was pending.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.timers[name]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.timers, name)
	return true
}

// CancelAll stops every pending timer and returns how many were pending.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.timers)
	for name, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, name)
	}
	return n
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Names returns the names of armed timers in sorted order.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.timers))
	for name := range s.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
