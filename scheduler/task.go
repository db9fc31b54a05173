// File: scheduler/task.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package scheduler

import (
	"github.com/momentics/hioload-fiber/fiber"
)

// AnyThread lets any worker pick the task up.
const AnyThread = -1

// Task is one queue entry: a fiber to resume or a callback to run, optionally
// pinned to a worker thread id.
type Task struct {
	Fiber  *fiber.Fiber
	Fn     func()
	Thread int
}

// FiberTask wraps f for scheduling on thread (AnyThread for no affinity).
func FiberTask(f *fiber.Fiber, thread int) Task {
	return Task{Fiber: f, Thread: thread}
}

// FuncTask wraps fn for scheduling on thread (AnyThread for no affinity).
func FuncTask(fn func(), thread int) Task {
	return Task{Fn: fn, Thread: thread}
}

func (t Task) valid() bool {
	return (t.Fiber != nil) != (t.Fn != nil)
}

func (t Task) runnableOn(thread int) bool {
	return t.Thread == AnyThread || t.Thread == thread
}
