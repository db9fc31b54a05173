// File: timer/manager.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ordered timer set with "time until next expiry" and "drain expired"
// queries for a reactor loop.

package timer

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/momentics/hioload-fiber/internal/logging"
)

// Infinite is returned by NextTimer when no timer is pending.
const Infinite = time.Duration(math.MaxInt64)

// rolloverThreshold is how far the clock must jump back before every timer
// is treated as expired.
const rolloverThreshold = time.Hour

const btreeDegree = 32

var timerID atomic.Uint64

// Manager owns a set of timers ordered by (next, id).
type Manager struct {
	mu       sync.RWMutex
	set      *btree.BTreeG[*Timer]
	clock    clock.Clock
	previous time.Time
	tickled  atomic.Bool
	onFront  func()
	log      *zap.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithFrontNotifier installs the hook run when a timer becomes the earliest
// one. It runs without the manager lock held.
func WithFrontNotifier(fn func()) Option {
	return func(m *Manager) {
		m.onFront = fn
	}
}

// NewManager creates an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		set:   btree.NewG(btreeDegree, lessTimer),
		clock: clock.New(),
		log:   logging.Named("timer"),
	}
	for _, o := range opts {
		o(m)
	}
	m.previous = m.now()
	return m
}

func lessTimer(a, b *Timer) bool {
	if !a.next.Equal(b.next) {
		return a.next.Before(b.next)
	}
	return a.id < b.id
}

// now strips the monotonic reading so backward wall-clock jumps are visible.
func (m *Manager) now() time.Time {
	return m.clock.Now().Round(0)
}

// AddTimer schedules cb to run after period, and every period after that
// when recurring.
func (m *Manager) AddTimer(period time.Duration, cb func(), recurring bool) *Timer {
	logging.Assert(cb != nil, "timer without callback")
	t := &Timer{
		id:        timerID.Add(1),
		recurring: recurring,
		period:    period,
		next:      m.now().Add(period),
		cb:        cb,
		m:         m,
	}
	m.mu.Lock()
	m.insertLocked(t)
	return t
}

// AddConditionTimer is AddTimer whose callback only runs while cond holds at
// fire time.
func (m *Manager) AddConditionTimer(period time.Duration, cb func(), cond func() bool, recurring bool) *Timer {
	return m.AddTimer(period, func() {
		if cond() {
			cb()
		}
	}, recurring)
}

// insertLocked adds t, releases the write lock and runs the front hook when t
// became the earliest timer and no notification is outstanding.
func (m *Manager) insertLocked(t *Timer) {
	m.set.ReplaceOrInsert(t)
	first, _ := m.set.Min()
	atFront := first == t && m.tickled.CompareAndSwap(false, true)
	m.mu.Unlock()
	if atFront && m.onFront != nil {
		m.onFront()
	}
}

// NextTimer returns the time until the earliest timer fires: zero when one is
// overdue, Infinite when none is pending. It re-arms the front notification.
func (m *Manager) NextTimer() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.tickled.Store(false)
	first, ok := m.set.Min()
	if !ok {
		return Infinite
	}
	now := m.now()
	if !first.next.After(now) {
		return 0
	}
	return first.next.Sub(now)
}

// HasTimer reports whether any timer is pending.
func (m *Manager) HasTimer() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.Len() > 0
}

// Count returns the number of pending timers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.Len()
}

// ListExpired appends the callbacks of every due timer to cbs, reschedules
// recurring ones and drops the rest. After a backward clock jump of more than
// an hour every timer counts as due.
func (m *Manager) ListExpired(cbs []func()) []func() {
	now := m.now()
	m.mu.RLock()
	empty := m.set.Len() == 0
	m.mu.RUnlock()
	if empty {
		return cbs
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rollover := m.detectRollover(now)
	var expired []*Timer
	for {
		first, ok := m.set.Min()
		if !ok || (!rollover && first.next.After(now)) {
			break
		}
		m.set.DeleteMin()
		expired = append(expired, first)
	}

	for _, t := range expired {
		cbs = append(cbs, t.cb)
		if !t.recurring {
			t.cb = nil
			continue
		}
		t.next = t.next.Add(t.period)
		if rollover || !t.next.After(now) {
			t.next = now.Add(t.period)
		}
		m.set.ReplaceOrInsert(t)
	}
	return cbs
}

// detectRollover must run under the write lock.
func (m *Manager) detectRollover(now time.Time) bool {
	rollover := now.Before(m.previous.Add(-rolloverThreshold))
	if rollover {
		m.log.Warn("clock moved backwards, expiring all timers",
			zap.Time("previous", m.previous), zap.Time("now", now), zap.Int("timers", m.set.Len()))
	}
	m.previous = now
	return rollover
}
