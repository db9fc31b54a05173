// File: api/events.go
// Package api defines the readiness events understood by reactors.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Event is a bitset of readiness kinds. The values match EPOLLIN and EPOLLOUT
// so a mask can be handed to epoll unchanged.
type Event uint32

const (
	EventNone  Event = 0x0
	EventRead  Event = 0x1
	EventWrite Event = 0x4
)

// String renders the mask for diagnostics.
func (e Event) String() string {
	switch e {
	case EventNone:
		return "NONE"
	case EventRead:
		return "READ"
	case EventWrite:
		return "WRITE"
	case EventRead | EventWrite:
		return "READ|WRITE"
	default:
		return "UNKNOWN"
	}
}
