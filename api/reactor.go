// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface for readiness reactors that resume
// suspended work when a descriptor becomes readable or writable.

package api

// Reactor couples an Executor with descriptor readiness notification.
type Reactor interface {
	Executor

	// AddEvent registers interest in ev on fd. When fn is nil the calling fiber
	// is resumed on readiness instead.
	AddEvent(fd int, ev Event, fn func()) error

	// DelEvent drops the registration without running it.
	DelEvent(fd int, ev Event) bool

	// CancelEvent drops the registration and runs its fiber or callback once.
	CancelEvent(fd int, ev Event) bool

	// CancelAll cancels every registration on fd.
	CancelAll(fd int) bool
}
