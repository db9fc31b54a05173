// Package api
// Author: momentics
//
// Executor contract for cooperative task dispatch across worker threads.

package api

// Executor abstracts a scheduler that runs callbacks on its worker threads.
type Executor interface {
	// Schedule queues fn for execution on any worker.
	Schedule(fn func())

	// ScheduleOn queues fn for execution on the worker with the given thread id.
	ScheduleOn(fn func(), thread int)

	// Start spawns the workers. Calling it on a running executor is a no-op.
	Start()

	// Stop drains the queue and joins every worker.
	Stop()

	// Name returns the executor name used for thread naming and diagnostics.
	Name() string
}
