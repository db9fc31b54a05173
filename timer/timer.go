// File: timer/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package timer

import (
	"time"
	"weak"
)

// Timer is a handle to a scheduled callback. Its fields are guarded by the
// owning manager's lock.
type Timer struct {
	id        uint64
	recurring bool
	period    time.Duration
	next      time.Time
	cb        func()
	m         *Manager
}

// Period returns the current period.
func (t *Timer) Period() time.Duration {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	return t.period
}

// Next returns the absolute time of the next expiry.
func (t *Timer) Next() time.Time {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	return t.next
}

// Recurring reports whether the timer re-arms after firing.
func (t *Timer) Recurring() bool { return t.recurring }

// Cancel removes the timer without running it. It returns false when the
// timer already fired (one-shot) or was cancelled.
func (t *Timer) Cancel() bool {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.cb == nil {
		return false
	}
	t.cb = nil
	m.set.Delete(t)
	return true
}

// Refresh pushes the next expiry to now+period.
func (t *Timer) Refresh() bool {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.cb == nil {
		return false
	}
	if _, ok := m.set.Delete(t); !ok {
		return false
	}
	t.next = m.now().Add(t.period)
	m.set.ReplaceOrInsert(t)
	return true
}

// Reset changes the period. With fromNow the new period counts from now,
// otherwise from the moment the timer was last armed.
func (t *Timer) Reset(period time.Duration, fromNow bool) bool {
	m := t.m
	m.mu.Lock()
	if period == t.period && !fromNow {
		m.mu.Unlock()
		return true
	}
	if t.cb == nil {
		m.mu.Unlock()
		return false
	}
	if _, ok := m.set.Delete(t); !ok {
		m.mu.Unlock()
		return false
	}
	start := t.next.Add(-t.period)
	if fromNow {
		start = m.now()
	}
	t.period = period
	t.next = start.Add(period)
	m.insertLocked(t)
	return true
}

// WeakCondition returns a condition that holds while p has not been
// collected. The returned func does not keep p alive.
func WeakCondition[T any](p *T) func() bool {
	w := weak.Make(p)
	return func() bool {
		return w.Value() != nil
	}
}
