// File: fiber/thread.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Explicit per-thread runtime handle and the goroutine registry that maps a
// calling goroutine to its fiber or thread.

package fiber

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

var (
	threadID atomic.Int64

	// goroutine id -> *Fiber for running fiber bodies.
	fibers sync.Map
	// goroutine id -> *Thread for host goroutines (workers, callers).
	threads sync.Map
)

type ownerBox struct{ v any }

// Thread is the runtime handle of one worker: its id, its implicit main fiber
// and the fiber currently running on it.
type Thread struct {
	id      int
	name    string
	main    *Fiber
	current *Fiber
	owner   atomic.Value // ownerBox
}

// NewThread allocates a handle. It is not bound to any goroutine until Bind.
func NewThread(name string) *Thread {
	t := &Thread{id: int(threadID.Add(1))}
	if name == "" {
		name = fmt.Sprintf("thread_%d", t.id)
	}
	t.name = name
	t.main = newMain(t)
	t.current = t.main
	return t
}

// Bind makes t the thread of the calling goroutine. The returned func undoes it.
func (t *Thread) Bind() (unbind func()) {
	gid := goid.Get()
	threads.Store(gid, t)
	return func() {
		threads.CompareAndDelete(gid, t)
	}
}

// ID returns the thread id used for task affinity.
func (t *Thread) ID() int { return t.id }

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// Main returns the implicit main fiber.
func (t *Thread) Main() *Fiber { return t.main }

// Owner returns the value set by SetOwner, usually the scheduler running on t.
func (t *Thread) Owner() any {
	if b, ok := t.owner.Load().(ownerBox); ok {
		return b.v
	}
	return nil
}

// SetOwner records the component that drives t. nil clears it.
func (t *Thread) SetOwner(v any) {
	t.owner.Store(ownerBox{v: v})
}

// CurrentThread returns the thread of the calling goroutine. Inside a fiber it
// is the thread that resumed the fiber; on a plain goroutine a thread is
// created lazily, together with its main fiber.
func CurrentThread() *Thread {
	gid := goid.Get()
	if f, ok := fibers.Load(gid); ok {
		return f.(*Fiber).thread
	}
	return threadFor(gid)
}

func threadFor(gid int64) *Thread {
	if t, ok := threads.Load(gid); ok {
		return t.(*Thread)
	}
	t := NewThread("")
	threads.Store(gid, t)
	return t
}

// LookupThread returns the thread of the calling goroutine without creating one.
func LookupThread() (*Thread, bool) {
	gid := goid.Get()
	if f, ok := fibers.Load(gid); ok {
		return f.(*Fiber).thread, true
	}
	if t, ok := threads.Load(gid); ok {
		return t.(*Thread), true
	}
	return nil, false
}

// ReleaseThread forgets the lazily created thread of the calling goroutine.
func ReleaseThread() {
	threads.Delete(goid.Get())
}
