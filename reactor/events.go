// File: reactor/events.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/scheduler"
)

// Readiness kinds accepted by AddEvent and friends.
const (
	None  = api.EventNone
	Read  = api.EventRead
	Write = api.EventWrite
)

var (
	// ErrEventExists is returned when an event is registered twice on one fd.
	ErrEventExists = fmt.Errorf("reactor: event already registered: %w", api.ErrAlreadyExists)
	// ErrTimeout is returned by WaitEventTimeout when the deadline passed first.
	ErrTimeout = fmt.Errorf("reactor: wait timed out: %w", api.ErrOperationTimeout)
	// ErrClosed is returned by operations on a closed IOManager.
	ErrClosed = errors.New("reactor: closed")
)

var _ api.Reactor = (*IOManager)(nil)

// Current returns the IOManager driving the calling thread, or nil.
func Current() *IOManager {
	s := scheduler.Current()
	if s == nil {
		return nil
	}
	m, _ := s.Hooks().(*IOManager)
	return m
}

func validEvent(ev api.Event) bool {
	return ev == Read || ev == Write
}
