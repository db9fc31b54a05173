// File: reactor/fdcontext.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"sync"

	"go.uber.org/zap"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/fiber"
	"github.com/momentics/hioload-fiber/internal/logging"
	"github.com/momentics/hioload-fiber/scheduler"
)

// eventContext is what runs when one event of a descriptor fires.
type eventContext struct {
	sched *scheduler.Scheduler
	fiber *fiber.Fiber
	fn    func()
}

func (ec *eventContext) empty() bool {
	return ec.sched == nil && ec.fiber == nil && ec.fn == nil
}

// fdContext is the per-descriptor registration record.
type fdContext struct {
	mu     sync.Mutex
	fd     int
	events api.Event
	read   eventContext
	write  eventContext
}

func (c *fdContext) context(ev api.Event) *eventContext {
	switch ev {
	case Read:
		return &c.read
	case Write:
		return &c.write
	}
	logging.Fail("unknown event kind", zap.Int("fd", c.fd), zap.Stringer("event", ev))
	return nil
}

// trigger clears ev and schedules its fiber or callback. Caller holds c.mu.
func (c *fdContext) trigger(ev api.Event) {
	logging.Assert(c.events&ev != 0, "trigger of an unregistered event",
		zap.Int("fd", c.fd), zap.Stringer("event", ev), zap.Stringer("events", c.events))
	c.events &^= ev
	ec := c.context(ev)
	if ec.fn != nil {
		ec.sched.Schedule(ec.fn)
	} else {
		ec.sched.ScheduleFiber(ec.fiber, scheduler.AnyThread)
	}
	*ec = eventContext{}
}

// drop clears ev without running anything. Caller holds c.mu.
func (c *fdContext) drop(ev api.Event) {
	c.events &^= ev
	*c.context(ev) = eventContext{}
}
