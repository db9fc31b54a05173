// File: fiber/fiber.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stackful coroutine with explicit resume/suspend transfer of control.

package fiber

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/petermattis/goid"
	"go.uber.org/zap"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/control"
	"github.com/momentics/hioload-fiber/internal/logging"
)

var (
	fiberID    atomic.Uint64
	fiberCount atomic.Int64

	stackSize = control.MustLookup(control.Default(), "fiber.stack_size", uint32(128*1024), "fiber stack size")
)

// errGoexit marks a fiber body that called runtime.Goexit.
var errGoexit = errors.New("fiber: body called runtime.Goexit")

// DefaultStackSize returns the configured "fiber.stack_size".
func DefaultStackSize() uint32 {
	return stackSize.Value()
}

// PanicError is the recorded failure of a fiber that ended in EXCEPT.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fiber panic: %v", e.Value)
}

// Fiber is a stackful coroutine.
type Fiber struct {
	id        uint64
	state     atomic.Int32
	stackSize uint32
	main      bool
	caller    bool
	fn        func()
	err       error
	thread    *Thread
	resumeCh  chan struct{}
	yieldCh   chan State
}

// Option customizes a fiber at construction.
type Option func(*Fiber)

// WithStackSize overrides the configured stack size. Zero keeps the default.
func WithStackSize(n uint32) Option {
	return func(f *Fiber) {
		f.stackSize = n
	}
}

// AsCaller marks the fiber as bound into its host thread: it runs a scheduling
// loop on the thread that created the scheduler and is never queued itself.
// Caller fibers own no stack, so their size is zero.
func AsCaller() Option {
	return func(f *Fiber) {
		f.caller = true
	}
}

// New creates a fiber in INIT that will run fn on its first Resume.
func New(fn func(), opts ...Option) *Fiber {
	f := &Fiber{
		id:       fiberID.Add(1),
		fn:       fn,
		resumeCh: make(chan struct{}),
		yieldCh:  make(chan State),
	}
	for _, o := range opts {
		o(f)
	}
	switch {
	case f.caller:
		f.stackSize = 0
	case f.stackSize == 0:
		f.stackSize = DefaultStackSize()
	}
	f.state.Store(int32(StateInit))
	fiberCount.Add(1)
	return f
}

func newMain(t *Thread) *Fiber {
	f := &Fiber{
		id:     fiberID.Add(1),
		main:   true,
		thread: t,
	}
	f.state.Store(int32(StateExec))
	return f
}

// ID returns the fiber identity.
func (f *Fiber) ID() uint64 { return f.id }

// State returns the current lifecycle state.
func (f *Fiber) State() State { return State(f.state.Load()) }

// StackSize returns the stack size recorded at construction; zero for main
// and caller fibers.
func (f *Fiber) StackSize() uint32 { return f.stackSize }

// IsMain reports whether f is the implicit main fiber of a thread.
func (f *Fiber) IsMain() bool { return f.main }

// Err returns the recovered panic of a fiber in EXCEPT.
func (f *Fiber) Err() error { return f.err }

// Thread returns the thread that last resumed f.
func (f *Fiber) Thread() *Thread { return f.thread }

func (f *Fiber) String() string {
	return fmt.Sprintf("fiber#%d(%s)", f.id, f.State())
}

func (f *Fiber) setState(s State) { f.state.Store(int32(s)) }

// Resume transfers control from the calling fiber to f and returns once f
// suspends or terminates. The result is the state f recorded when it gave
// control back; f may already have been resumed elsewhere since.
func (f *Fiber) Resume() State {
	logging.Assert(!f.main, "resume of a thread main fiber", zap.Uint64("fiber_id", f.id))
	st := f.State()
	if !st.Resumable() || !f.state.CompareAndSwap(int32(st), int32(StateExec)) {
		logging.Fail("resume of a fiber that is not suspended",
			zap.Uint64("fiber_id", f.id), zap.Stringer("state", f.State()))
	}

	t := CurrentThread()
	prev := t.current
	f.thread = t
	t.current = f
	// The thread's own fiber steps aside so one fiber per thread is EXEC.
	hosted := prev != nil && (prev.main || prev.caller)
	if hosted {
		prev.setState(StateHold)
	}

	if st == StateInit {
		go f.run()
	} else {
		f.resumeCh <- struct{}{}
	}
	recorded := <-f.yieldCh

	t.current = prev
	if hosted {
		prev.setState(StateExec)
	}
	return recorded
}

// yield records next and hands control back to the resumer.
func (f *Fiber) yield(next State) {
	logging.Assert(!f.main, "yield from a thread main fiber", zap.Uint64("fiber_id", f.id))
	logging.Assert(f.State() == StateExec, "yield from a fiber that is not running",
		zap.Uint64("fiber_id", f.id), zap.Stringer("state", f.State()))
	f.setState(next)
	f.yieldCh <- next
	<-f.resumeCh
}

// Reset rebinds a finished or unstarted fiber to fn, reusing the fiber.
func (f *Fiber) Reset(fn func()) {
	logging.Assert(!f.main, "reset of a thread main fiber", zap.Uint64("fiber_id", f.id))
	st := f.State()
	logging.Assert(st == StateInit || st.Terminal(), "reset of a live fiber",
		zap.Uint64("fiber_id", f.id), zap.Stringer("state", st))
	f.fn = fn
	f.err = nil
	f.setState(StateInit)
}

func (f *Fiber) run() {
	gid := goid.Get()
	fibers.Store(gid, f)
	defer func() {
		fibers.Delete(gid)
		f.yieldCh <- f.State()
	}()
	f.trampoline()
}

// trampoline runs the body and converts any panic into EXCEPT. Invariant
// violations are re-raised and abort the process.
func (f *Fiber) trampoline() {
	completed := false
	defer func() {
		if completed {
			return
		}
		r := recover()
		if inv, ok := r.(*api.InvariantError); ok {
			panic(inv)
		}
		stack := debug.Stack()
		if r == nil {
			f.err = errGoexit
		} else {
			f.err = &PanicError{Value: r, Stack: stack}
		}
		f.fn = nil
		f.setState(StateExcept)
		logging.Named("fiber").Error("fiber except",
			zap.Uint64("fiber_id", f.id),
			zap.Any("panic", r),
			zap.ByteString("backtrace", stack))
	}()

	if fn := f.fn; fn != nil {
		fn()
	}
	completed = true
	f.fn = nil
	f.setState(StateTerm)
}

// Current returns the calling fiber, materializing the thread main fiber when
// the caller is not a fiber.
func Current() *Fiber {
	gid := goid.Get()
	if f, ok := fibers.Load(gid); ok {
		return f.(*Fiber)
	}
	return threadFor(gid).main
}

// CurrentID returns the id of the calling fiber, or 0 when the calling
// goroutine has no fiber or thread yet.
func CurrentID() uint64 {
	gid := goid.Get()
	if f, ok := fibers.Load(gid); ok {
		return f.(*Fiber).id
	}
	if t, ok := threads.Load(gid); ok {
		return t.(*Thread).main.id
	}
	return 0
}

// YieldToReady suspends the calling fiber as READY: still runnable, the
// scheduler re-queues it.
func YieldToReady() {
	Current().yield(StateReady)
}

// YieldToHold suspends the calling fiber as HOLD: someone else must schedule
// it again, usually an IO event or a timer.
func YieldToHold() {
	Current().yield(StateHold)
}

// Total returns the number of fibers created by New.
func Total() int64 {
	return fiberCount.Load()
}
