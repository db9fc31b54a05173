//go:build linux
// +build linux

// File: reactor/iomanager_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7)-based IOManager: edge-triggered registrations, self-pipe
// wakeups and timer deadlines merged into the idle loop.

package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/control"
	"github.com/momentics/hioload-fiber/fiber"
	"github.com/momentics/hioload-fiber/internal/logging"
	"github.com/momentics/hioload-fiber/scheduler"
	"github.com/momentics/hioload-fiber/timer"
)

const (
	maxEvents      = 256
	initialFDTable = 32

	edgeTriggered = uint32(unix.EPOLLET & 0xffffffff)
)

var maxWait = control.MustLookup(control.Default(), "reactor.max_wait_ms", uint32(3000),
	"upper bound of one epoll_wait in milliseconds")

// IOManager is a Scheduler whose idle workers wait in epoll, with a timer
// manager whose deadlines bound that wait.
type IOManager struct {
	*scheduler.Scheduler
	*timer.Manager

	epfd      int
	tickleFds [2]int
	pending   atomic.Int64
	closed    atomic.Bool

	mu  sync.RWMutex
	fds []*fdContext

	log       *zap.Logger
	triggered prometheus.Counter
}

// NewIOManager creates the epoll instance and the wake pipe, then starts
// threads workers. With useCaller the calling thread is one of them and the
// manager must be stopped from it.
func NewIOManager(threads int, useCaller bool, name string, opts ...Option) (*IOManager, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.NewError(api.ErrCodeSyscall, "reactor: epoll_create1").Wrap(err)
	}
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, multierr.Append(api.NewError(api.ErrCodeSyscall, "reactor: pipe2").Wrap(err), unix.Close(epfd))
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN | edgeTriggered, Fd: int32(p[0])}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, p[0], &ev); err != nil {
		return nil, multierr.Combine(
			api.NewError(api.ErrCodeSyscall, "reactor: epoll_ctl wake pipe").Wrap(err),
			unix.Close(p[0]), unix.Close(p[1]), unix.Close(epfd))
	}

	m := &IOManager{
		epfd:      epfd,
		tickleFds: p,
		log:       logging.Named("reactor").With(zap.String("scheduler", name)),
	}
	m.resize(initialFDTable)
	m.Manager = timer.NewManager(append(cfg.timer, timer.WithFrontNotifier(m.onTimerInsertedAtFront))...)

	schedOpts := append(cfg.sched, scheduler.WithHooks(m))
	if cfg.metrics != nil {
		schedOpts = append(schedOpts, scheduler.WithMetrics(cfg.metrics))
	}
	m.Scheduler = scheduler.New(threads, useCaller, name, schedOpts...)
	m.triggered = cfg.metrics.Counter("events_triggered_total", "Descriptor events delivered or cancelled.", name)
	cfg.metrics.GaugeFunc("pending_events", "Registered descriptor events not yet fired.", name,
		func() float64 { return float64(m.pending.Load()) })
	cfg.metrics.GaugeFunc("pending_timers", "Armed timers.", name,
		func() float64 { return float64(m.Count()) })

	m.Start()
	return m, nil
}

// resize grows the fd table to n entries. Caller holds m.mu for writing,
// or owns m exclusively.
func (m *IOManager) resize(n int) {
	for fd := len(m.fds); fd < n; fd++ {
		m.fds = append(m.fds, &fdContext{fd: fd})
	}
}

// lookup returns the context of fd. With grow the table is extended to hold
// fd; without it an unknown fd yields nil.
func (m *IOManager) lookup(fd int, grow bool) *fdContext {
	m.mu.RLock()
	if fd < len(m.fds) {
		c := m.fds[fd]
		m.mu.RUnlock()
		return c
	}
	m.mu.RUnlock()
	if !grow {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if fd >= len(m.fds) {
		m.resize(max(fd*3/2, len(m.fds)+1, fd+1))
	}
	return m.fds[fd]
}

// ctl points the epoll registration of fd at mask, removing it when the mask
// is empty.
func (m *IOManager) ctl(fd int, op int, mask api.Event) error {
	ev := unix.EpollEvent{Events: edgeTriggered | uint32(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(m.epfd, op, fd, &ev); err != nil {
		m.log.Error("epoll_ctl failed", zap.Int("fd", fd), zap.Int("op", op),
			zap.Stringer("events", mask), zap.Error(err))
		return api.NewError(api.ErrCodeSyscall, "reactor: epoll_ctl").
			WithContext("fd", fd).WithContext("op", op).Wrap(err)
	}
	return nil
}

func remainingOp(left api.Event) int {
	if left == None {
		return unix.EPOLL_CTL_DEL
	}
	return unix.EPOLL_CTL_MOD
}

// AddEvent registers ev on fd. With a nil fn the calling fiber is queued again
// once ev fires; it normally parks itself with fiber.YieldToHold right after.
func (m *IOManager) AddEvent(fd int, ev api.Event, fn func()) error {
	if fd < 0 || !validEvent(ev) {
		return fmt.Errorf("reactor: add %s on fd %d: %w", ev, fd, api.ErrInvalidArgument)
	}
	if m.closed.Load() {
		return ErrClosed
	}
	c := m.lookup(fd, true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events&ev != 0 {
		m.log.Error("event already registered", zap.Int("fd", fd),
			zap.Stringer("event", ev), zap.Stringer("events", c.events))
		return fmt.Errorf("fd %d %s: %w", fd, ev, ErrEventExists)
	}

	op := unix.EPOLL_CTL_MOD
	if c.events == None {
		op = unix.EPOLL_CTL_ADD
	}
	if err := m.ctl(fd, op, c.events|ev); err != nil {
		return err
	}

	m.pending.Add(1)
	c.events |= ev
	ec := c.context(ev)
	logging.Assert(ec.empty(), "stale event context", zap.Int("fd", fd), zap.Stringer("event", ev))
	ec.sched = scheduler.Current()
	if ec.sched == nil {
		ec.sched = m.Scheduler
	}
	if fn != nil {
		ec.fn = fn
	} else {
		f := fiber.Current()
		logging.Assert(!f.IsMain() && f.State() == fiber.StateExec,
			"event without callback must be added from a running fiber",
			zap.Int("fd", fd), zap.Stringer("fiber", f))
		ec.fiber = f
	}
	return nil
}

// DelEvent drops the registration of ev on fd without running it.
func (m *IOManager) DelEvent(fd int, ev api.Event) bool {
	c := m.lookup(fd, false)
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events&ev == 0 || !validEvent(ev) {
		return false
	}
	left := c.events &^ ev
	if err := m.ctl(fd, remainingOp(left), left); err != nil {
		return false
	}
	m.pending.Add(-1)
	c.drop(ev)
	return true
}

// CancelEvent drops the registration of ev on fd and schedules its fiber or
// callback once, as if ev had fired.
func (m *IOManager) CancelEvent(fd int, ev api.Event) bool {
	c := m.lookup(fd, false)
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events&ev == 0 || !validEvent(ev) {
		return false
	}
	left := c.events &^ ev
	if err := m.ctl(fd, remainingOp(left), left); err != nil {
		return false
	}
	c.trigger(ev)
	m.pending.Add(-1)
	m.triggered.Inc()
	return true
}

// CancelAll cancels every event registered on fd and removes it from epoll.
func (m *IOManager) CancelAll(fd int) bool {
	c := m.lookup(fd, false)
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == None {
		return false
	}
	if err := m.ctl(fd, unix.EPOLL_CTL_DEL, None); err != nil {
		return false
	}
	for _, ev := range []api.Event{Read, Write} {
		if c.events&ev != 0 {
			c.trigger(ev)
			m.pending.Add(-1)
			m.triggered.Inc()
		}
	}
	logging.Assert(c.events == None, "events left after cancel all", zap.Int("fd", fd))
	return true
}

// PendingEvents returns the number of registered events not yet fired.
func (m *IOManager) PendingEvents() int64 {
	return m.pending.Load()
}

// Stopping holds once nothing can wake a worker any more: no timers, no
// registered events, and the scheduler itself is stopping.
func (m *IOManager) Stopping() bool {
	return !m.HasTimer() && m.pending.Load() == 0 && m.Scheduler.Stopping()
}

// Tickle wakes one worker blocked in epoll_wait. Without idle workers there
// is nobody to wake.
func (m *IOManager) Tickle() {
	if !m.HasIdleThreads() {
		return
	}
	if _, err := unix.Write(m.tickleFds[1], []byte{'T'}); err != nil && err != unix.EAGAIN {
		m.log.Error("tickle write failed", zap.Error(err))
	}
}

func (m *IOManager) onTimerInsertedAtFront() {
	m.Tickle()
}

// waitTimeout converts the next timer deadline into an epoll timeout.
func waitTimeout(next time.Duration) int {
	limit := time.Duration(maxWait.Value()) * time.Millisecond
	if next > limit {
		next = limit
	}
	return int((next + time.Millisecond - 1) / time.Millisecond)
}

// Idle is the reactor loop run by every idle worker.
func (m *IOManager) Idle() {
	events := make([]unix.EpollEvent, maxEvents)
	var cbs []func()
	for {
		next := m.NextTimer()
		if next == timer.Infinite && m.pending.Load() == 0 && m.Scheduler.Stopping() {
			m.log.Debug("idle loop exits")
			// stop tickles collapse into one edge on the wake pipe; pass it on
			m.Tickle()
			return
		}

		n := m.wait(events, waitTimeout(next))

		cbs = m.ListExpired(cbs[:0])
		if len(cbs) > 0 {
			m.ScheduleFuncs(cbs...)
			clear(cbs)
		}

		for i := 0; i < n; i++ {
			ev := &events[i]
			if int(ev.Fd) == m.tickleFds[0] {
				m.drainTickle()
				continue
			}
			m.dispatch(int(ev.Fd), ev.Events)
		}

		fiber.YieldToHold()
	}
}

func (m *IOManager) wait(events []unix.EpollEvent, timeoutMs int) int {
	for {
		n, err := unix.EpollWait(m.epfd, events, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			m.log.Error("epoll_wait failed", zap.Error(err))
			return 0
		}
		return n
	}
}

func (m *IOManager) drainTickle() {
	var buf [256]byte
	for {
		if _, err := unix.Read(m.tickleFds[0], buf[:]); err != nil {
			return
		}
	}
}

// dispatch triggers the events of fd that epoll reported ready.
func (m *IOManager) dispatch(fd int, raw uint32) {
	c := m.lookup(fd, false)
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if raw&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		raw |= (unix.EPOLLIN | unix.EPOLLOUT) & uint32(c.events)
	}
	var ready api.Event
	if raw&unix.EPOLLIN != 0 {
		ready |= Read
	}
	if raw&unix.EPOLLOUT != 0 {
		ready |= Write
	}
	ready &= c.events
	if ready == None {
		return
	}

	left := c.events &^ ready
	if err := m.ctl(fd, remainingOp(left), left); err != nil {
		return
	}
	for _, ev := range []api.Event{Read, Write} {
		if ready&ev != 0 {
			c.trigger(ev)
			m.pending.Add(-1)
			m.triggered.Inc()
		}
	}
}

// RegisterProbes adds reactor counters next to the scheduler's.
func (m *IOManager) RegisterProbes(d api.Debug) {
	m.Scheduler.RegisterProbes(d)
	prefix := "reactor." + m.Name() + "."
	d.RegisterProbe(prefix+"pending_events", func() any { return m.PendingEvents() })
	d.RegisterProbe(prefix+"timers", func() any { return m.Count() })
}

// Close stops the manager and releases the epoll instance and the wake pipe.
// It must be called from where Stop may be called.
func (m *IOManager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.Stop()
	return multierr.Combine(
		unix.Close(m.epfd),
		unix.Close(m.tickleFds[0]),
		unix.Close(m.tickleFds[1]),
	)
}
