// File: reactor/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package reactor provides IOManager, a scheduler whose idle workers block in
// epoll(7) instead of spinning. A fiber parks itself on descriptor readiness
// (AddEvent with a nil callback, or WaitEvent) and is queued again when epoll
// reports the event, when the registration is cancelled, or when a timer
// fires. Timer deadlines bound every wait, and a self-pipe wakes a blocked
// worker when new work is queued.
//
// Linux only; elsewhere NewIOManager returns api.ErrNotSupported.
package reactor
