//go:build linux
// +build linux

// File: reactor/wait_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Blocking helpers for code running inside a fiber.

package reactor

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/fiber"
	"github.com/momentics/hioload-fiber/internal/logging"
	"github.com/momentics/hioload-fiber/scheduler"
)

const (
	waitPending int32 = iota
	waitReady
	waitTimedOut
)

// WaitEvent parks the calling fiber until ev fires on fd or is cancelled.
func (m *IOManager) WaitEvent(fd int, ev api.Event) error {
	if err := m.AddEvent(fd, ev, nil); err != nil {
		return err
	}
	fiber.YieldToHold()
	return nil
}

// WaitEventTimeout is WaitEvent bounded by d. When d passes first the
// registration is cancelled and ErrTimeout returned.
func (m *IOManager) WaitEventTimeout(fd int, ev api.Event, d time.Duration) error {
	var state atomic.Int32
	if err := m.AddEvent(fd, ev, nil); err != nil {
		return err
	}
	t := m.AddTimer(d, func() {
		if state.CompareAndSwap(waitPending, waitTimedOut) {
			m.CancelEvent(fd, ev)
		}
	}, false)
	fiber.YieldToHold()
	t.Cancel()
	if !state.CompareAndSwap(waitPending, waitReady) {
		return ErrTimeout
	}
	return nil
}

// Sleep parks the calling fiber for d without holding its worker.
func (m *IOManager) Sleep(d time.Duration) {
	f := fiber.Current()
	logging.Assert(!f.IsMain(), "sleep outside a fiber", zap.Stringer("fiber", f))
	sched := scheduler.Current()
	if sched == nil {
		sched = m.Scheduler
	}
	m.AddTimer(d, func() {
		sched.ScheduleFiber(f, scheduler.AnyThread)
	}, false)
	fiber.YieldToHold()
}
