// Package clock provides the time source and the two periodic timers
// spec.md §4.4 names (sampler expiry, elider GC — the flush cadence reuses
// the same mechanism). It is a thin wrapper over
// github.com/benbjohnson/clock so tests can fast-forward a fake clock
// instead of sleeping, the same pattern the teacher repo's tests use for
// anything time-driven.
package clock

import (
	"sync"
	"time"

	bclock "github.com/benbjohnson/clock"
)

// Clock is the time source used throughout the relay.
type Clock = bclock.Clock

// New returns the real wall-clock implementation. Seconds precision is all
// that ever matters to callers (spec.md §4.4).
func New() Clock { return bclock.New() }

// NewMock returns a fake clock for deterministic tests. Advance it with
// Add or Set.
func NewMock() *bclock.Mock { return bclock.NewMock() }

// Seconds truncates t to whole seconds since the Unix epoch; last_modified_at
// and last_seen are compared only by whole seconds (spec.md §4.4).
func Seconds(t time.Time) int64 { return t.Unix() }

// PeriodicTimer fires into ticks on a fixed interval, forever, until
// stopped. An interval <= 0 disables the timer entirely (spec.md §4.4:
// "Timer intervals of -1 disable the timer entirely"); Start becomes a
// no-op and ticks never fires. Timers never overlap with themselves: a
// slow consumer of ticks simply delays the next send, it never causes two
// fires to be in flight at once.
type PeriodicTimer struct {
	clock    Clock
	interval time.Duration
	ticks    chan<- struct{}

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewPeriodicTimer constructs a timer that has not yet been started.
func NewPeriodicTimer(c Clock, interval time.Duration, ticks chan<- struct{}) *PeriodicTimer {
	return &PeriodicTimer{
		clock:    c,
		interval: interval,
		ticks:    ticks,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start arms the timer on its own goroutine. Calling Start on a disabled
// timer (interval <= 0) is safe and simply never fires.
func (t *PeriodicTimer) Start() {
	if t.interval <= 0 {
		close(t.done)
		return
	}
	go t.run()
}

func (t *PeriodicTimer) run() {
	defer close(t.done)
	ticker := t.clock.Ticker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			select {
			case t.ticks <- struct{}{}:
			case <-t.stop:
				return
			}
		}
	}
}

// Stop halts the timer and waits for its goroutine to exit. Safe to call
// more than once and safe to call on a disabled timer.
func (t *PeriodicTimer) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}
