package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_ReplaceSameName(t *testing.T) {
	t.Parallel()
	c := Fake(epoch)
	s := NewScheduler(c)
	var got []string

	s.Schedule("tick", time.Second, func() { got = append(got, "first") })
	s.Schedule("tick", 2*time.Second, func() { got = append(got, "second") })

	assert.Equal(t, 1, s.Pending())
	c.Advance(time.Minute)

	assert.Equal(t, []string{"second"}, got)
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_CancelAllLeavesNothingArmed(t *testing.T) {
	t.Parallel()
	c := Fake(epoch)
	s := NewScheduler(c)
	fired := 0

	s.Schedule("tick", time.Second, func() { fired++ })
	s.Schedule("grace", 30*time.Second, func() { fired++ })
	assert.Equal(t, []string{"grace", "tick"}, s.Names())

	assert.Equal(t, 2, s.CancelAll())
	c.Advance(time.Hour)

	assert.Zero(t, fired)
	assert.Zero(t, s.Pending())
	assert.Zero(t, c.PendingCount())
}

func TestScheduler_CancelOne(t *testing.T) {
	t.Parallel()
	c := Fake(epoch)
	s := NewScheduler(c)
	var got []string

	s.Schedule("tick", time.Second, func() { got = append(got, "tick") })
	s.Schedule("grace", time.Second, func() { got = append(got, "grace") })

	assert.True(t, s.Cancel("tick"))
	assert.False(t, s.Cancel("tick"))
	c.Advance(time.Second)

	assert.Equal(t, []string{"grace"}, got)
}

func TestScheduler_CallbackCanReschedule(t *testing.T) {
	t.Parallel()
	c := Fake(epoch)
	s := NewScheduler(c)
	count := 0

	var tick func()
	tick = func() {
		count++
		if count < 3 {
			s.Schedule("tick", time.Second, tick)
		}
	}
	s.Schedule("tick", time.Second, tick)

	c.Advance(10 * time.Second)

	assert.Equal(t, 3, count)
	assert.Zero(t, s.Pending())
}

func TestScheduler_StaleCallbackDiscarded(t *testing.T) {
	t.Parallel()
	c := Fake(epoch)
	s := NewScheduler(c)
	fired := 0

	s.Schedule("tick", time.Second, func() { fired++ })
	// Simulate a timer that already left the clock but lost the race to
	// a replacement: claim with a stale id must fail.
	s.mu.Lock()
	staleID := s.timers["tick"].id
	s.mu.Unlock()
	s.Schedule("tick", time.Minute, func() { fired += 10 })

	assert.False(t, s.claim("tick", staleID))
	c.Advance(time.Second)
	assert.Zero(t, fired)
}
