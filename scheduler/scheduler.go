// File: scheduler/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// N:M scheduler: a pool of locked OS threads, each running a scheduling loop
// that resumes queued fibers and runs queued callbacks on a reusable fiber.

package scheduler

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-fiber/affinity"
	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/control"
	"github.com/momentics/hioload-fiber/fiber"
	"github.com/momentics/hioload-fiber/internal/logging"
)

var _ api.Executor = (*Scheduler)(nil)

// Scheduler multiplexes fibers and callbacks over a fixed set of workers.
type Scheduler struct {
	name  string
	log   *zap.Logger
	hooks Hooks

	mu        sync.Mutex
	tasks     *queue.Queue // of Task
	threadIDs []int
	group     *errgroup.Group

	workerCount int
	cpus        []int

	active   atomic.Int32
	idle     atomic.Int32
	stopping atomic.Bool
	autoStop atomic.Bool

	rootFiber  *fiber.Fiber
	rootThread *fiber.Thread

	metrics   *control.MetricsRegistry
	scheduled prometheus.Counter
	executed  prometheus.Counter
	panics    prometheus.Counter
}

// New creates a scheduler with threads workers. With useCaller the calling
// thread counts as one of them: it runs its share of the loop inside Stop.
func New(threads int, useCaller bool, name string, opts ...Option) *Scheduler {
	logging.Assert(threads > 0, "scheduler needs at least one thread",
		zap.String("scheduler", name), zap.Int("threads", threads))

	s := &Scheduler{
		name:        name,
		tasks:       queue.New(),
		workerCount: threads,
	}
	s.hooks = s
	s.stopping.Store(true)
	for _, o := range opts {
		o(s)
	}
	s.log = logging.Named("scheduler").With(zap.String("scheduler", name))

	if useCaller {
		t := fiber.CurrentThread()
		logging.Assert(Current() == nil, "thread already runs a scheduler",
			zap.String("scheduler", name), zap.String("thread", t.Name()))
		s.workerCount--
		t.SetOwner(s)
		s.rootFiber = fiber.New(s.run, fiber.AsCaller())
		s.rootThread = t
		s.threadIDs = append(s.threadIDs, t.ID())
	}

	s.scheduled = s.metrics.Counter("tasks_scheduled_total", "Tasks queued on the scheduler.", name)
	s.executed = s.metrics.Counter("tasks_executed_total", "Tasks resumed by a worker.", name)
	s.panics = s.metrics.Counter("fiber_panics_total", "Scheduled fibers that ended in EXCEPT.", name)
	s.metrics.GaugeFunc("active_threads", "Workers running a task.", name,
		func() float64 { return float64(s.active.Load()) })
	s.metrics.GaugeFunc("idle_threads", "Workers inside the idle fiber.", name,
		func() float64 { return float64(s.idle.Load()) })
	s.metrics.GaugeFunc("queued_tasks", "Tasks waiting in the queue.", name,
		func() float64 { return float64(s.QueueLen()) })
	return s
}

// Current returns the scheduler driving the calling thread, or nil.
func Current() *Scheduler {
	t, ok := fiber.LookupThread()
	if !ok {
		return nil
	}
	s, _ := t.Owner().(*Scheduler)
	return s
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string { return s.name }

// Hooks returns the installed hooks, the scheduler itself unless overridden.
func (s *Scheduler) Hooks() Hooks { return s.hooks }

// HasIdleThreads reports whether some worker sits in its idle fiber.
func (s *Scheduler) HasIdleThreads() bool { return s.idle.Load() > 0 }

// ThreadIDs lists the thread ids tasks may be pinned to.
func (s *Scheduler) ThreadIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.threadIDs...)
}

// QueueLen returns the number of queued tasks.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Length()
}

// Schedule queues fn on any worker.
func (s *Scheduler) Schedule(fn func()) {
	s.ScheduleTasks(FuncTask(fn, AnyThread))
}

// ScheduleOn queues fn on the worker with the given thread id.
func (s *Scheduler) ScheduleOn(fn func(), thread int) {
	s.ScheduleTasks(FuncTask(fn, thread))
}

// ScheduleFiber queues f to be resumed on thread (AnyThread for no affinity).
func (s *Scheduler) ScheduleFiber(f *fiber.Fiber, thread int) {
	s.ScheduleTasks(FiberTask(f, thread))
}

// ScheduleFuncs queues every fn as one batch with a single wake-up.
func (s *Scheduler) ScheduleFuncs(fns ...func()) {
	tasks := make([]Task, len(fns))
	for i, fn := range fns {
		tasks[i] = FuncTask(fn, AnyThread)
	}
	s.ScheduleTasks(tasks...)
}

// ScheduleTasks appends tasks in order under one lock acquisition and tickles
// once if the queue was empty beforehand.
func (s *Scheduler) ScheduleTasks(tasks ...Task) {
	if len(tasks) == 0 {
		return
	}
	s.mu.Lock()
	needTickle := s.tasks.Length() == 0
	for _, t := range tasks {
		if !t.valid() {
			s.mu.Unlock()
			logging.Fail("task needs exactly one of fiber or callback", zap.String("scheduler", s.name))
		}
		s.tasks.Add(t)
	}
	s.mu.Unlock()
	s.scheduled.Add(float64(len(tasks)))
	if needTickle {
		s.hooks.Tickle()
	}
}

// Start spawns the worker threads. It is a no-op on a running scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if !s.stopping.Load() {
		s.mu.Unlock()
		return
	}
	s.stopping.Store(false)
	s.autoStop.Store(false)
	g := new(errgroup.Group)
	s.group = g
	s.threadIDs = s.threadIDs[:0]
	if s.rootThread != nil {
		s.threadIDs = append(s.threadIDs, s.rootThread.ID())
	}
	threads := make([]*fiber.Thread, s.workerCount)
	for i := range threads {
		threads[i] = fiber.NewThread(fmt.Sprintf("%s_%d", s.name, i))
		s.threadIDs = append(s.threadIDs, threads[i].ID())
	}
	s.mu.Unlock()

	for i, t := range threads {
		g.Go(func() error {
			s.worker(i, t)
			return nil
		})
	}
	s.log.Debug("scheduler started", zap.Int("workers", len(threads)))
}

func (s *Scheduler) worker(i int, t *fiber.Thread) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if len(s.cpus) > 0 {
		cpu := s.cpus[i%len(s.cpus)]
		if err := affinity.SetAffinity(cpu); err != nil {
			s.log.Warn("worker not pinned", zap.String("thread", t.Name()), zap.Int("cpu", cpu), zap.Error(err))
		}
	}
	unbind := t.Bind()
	defer unbind()
	t.SetOwner(s)
	defer t.SetOwner(nil)
	s.run()
}

// Stop lets the queue drain and joins every worker. A scheduler built with
// useCaller must be stopped from its creating thread, any other from outside
// its workers.
func (s *Scheduler) Stop() {
	s.autoStop.Store(true)
	if s.rootFiber != nil && s.workerCount == 0 {
		if st := s.rootFiber.State(); st == fiber.StateTerm || st == fiber.StateInit {
			s.stopping.Store(true)
			if s.hooks.Stopping() {
				s.releaseCaller()
				return
			}
		}
	}

	if s.rootThread != nil {
		logging.Assert(Current() == s, "scheduler with a caller thread stopped from another thread",
			zap.String("scheduler", s.name))
	} else {
		logging.Assert(Current() != s, "scheduler stopped from its own worker",
			zap.String("scheduler", s.name))
	}

	s.stopping.Store(true)
	for i := 0; i < s.workerCount; i++ {
		s.hooks.Tickle()
	}
	if s.rootFiber != nil {
		s.hooks.Tickle()
		if !s.hooks.Stopping() {
			s.rootFiber.Resume()
		}
	}

	s.mu.Lock()
	g := s.group
	s.group = nil
	s.mu.Unlock()
	if g != nil {
		if err := g.Wait(); err != nil {
			s.log.Error("worker exited with error", zap.Error(err))
		}
	}
	s.releaseCaller()
	s.log.Debug("scheduler stopped")
}

func (s *Scheduler) releaseCaller() {
	if s.rootThread != nil && s.rootThread.Owner() == s {
		s.rootThread.SetOwner(nil)
	}
}

// Stopping is the base predicate: stop requested, nothing queued and no
// worker inside a task.
func (s *Scheduler) Stopping() bool {
	if !s.autoStop.Load() || !s.stopping.Load() || s.active.Load() != 0 {
		return false
	}
	return s.QueueLen() == 0
}

// Tickle is a no-op for the base scheduler: idle workers spin.
func (s *Scheduler) Tickle() {
	s.log.Debug("tickle")
}

// Idle yields until the scheduler is stopping.
func (s *Scheduler) Idle() {
	for !s.hooks.Stopping() {
		fiber.YieldToHold()
		runtime.Gosched()
	}
}

// next removes the first task runnable on thread. A full pass rotates the
// queue so skipped entries keep their relative order.
func (s *Scheduler) next(thread int) (task Task, ok, tickleMe bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.tasks.Length()
	for i := 0; i < n; i++ {
		t := s.tasks.Remove().(Task)
		switch {
		case ok:
			s.tasks.Add(t)
		case !t.runnableOn(thread):
			tickleMe = true
			s.tasks.Add(t)
		case t.Fiber != nil && t.Fiber.State() == fiber.StateExec:
			// still running elsewhere; revisit once it has suspended
			s.tasks.Add(t)
		default:
			task, ok = t, true
		}
	}
	if ok {
		s.active.Add(1)
		tickleMe = tickleMe || s.tasks.Length() > 0
	}
	return task, ok, tickleMe
}

// run is the per-thread scheduling loop.
func (s *Scheduler) run() {
	t := fiber.CurrentThread()
	s.log.Debug("scheduling loop started", zap.String("thread", t.Name()))

	idle := fiber.New(s.hooks.Idle)
	var cbFiber *fiber.Fiber
	for {
		task, ok, tickleMe := s.next(t.ID())
		if tickleMe {
			s.hooks.Tickle()
		}

		switch {
		case ok && task.Fiber != nil:
			f := task.Fiber
			if !f.State().Terminal() {
				st := f.Resume()
				s.executed.Inc()
				s.afterResume(f, st)
			}
			s.active.Add(-1)

		case ok:
			if cbFiber != nil {
				cbFiber.Reset(task.Fn)
			} else {
				cbFiber = fiber.New(task.Fn)
			}
			st := cbFiber.Resume()
			s.executed.Inc()
			s.active.Add(-1)
			if !s.afterResume(cbFiber, st) {
				// the fiber now belongs to whoever scheduled or holds it
				cbFiber = nil
			}

		default:
			if idle.State().Terminal() {
				s.log.Debug("idle fiber terminated", zap.String("thread", t.Name()))
				return
			}
			s.idle.Add(1)
			idle.Resume()
			s.idle.Add(-1)
		}
	}
}

// afterResume acts on the state f recorded when it gave control back, not on
// its live state: a HOLD fiber may already run on another worker. It reports
// whether f finished and may be reused.
func (s *Scheduler) afterResume(f *fiber.Fiber, st fiber.State) bool {
	switch st {
	case fiber.StateReady:
		s.ScheduleFiber(f, AnyThread)
		return false
	case fiber.StateExcept:
		s.panics.Inc()
		return true
	case fiber.StateTerm:
		return true
	default:
		return false
	}
}
