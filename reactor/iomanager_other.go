//go:build !linux
// +build !linux

// File: reactor/iomanager_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub for platforms without epoll.

package reactor

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/scheduler"
	"github.com/momentics/hioload-fiber/timer"
)

var errUnsupported = fmt.Errorf("reactor: epoll: %w", api.ErrNotSupported)

// IOManager is unavailable on this platform.
type IOManager struct {
	*scheduler.Scheduler
	*timer.Manager
}

// NewIOManager always fails with api.ErrNotSupported.
func NewIOManager(threads int, useCaller bool, name string, opts ...Option) (*IOManager, error) {
	return nil, errUnsupported
}

func (m *IOManager) AddEvent(fd int, ev api.Event, fn func()) error { return errUnsupported }
func (m *IOManager) DelEvent(fd int, ev api.Event) bool             { return false }
func (m *IOManager) CancelEvent(fd int, ev api.Event) bool          { return false }
func (m *IOManager) CancelAll(fd int) bool                          { return false }
func (m *IOManager) PendingEvents() int64                           { return 0 }

func (m *IOManager) WaitEvent(fd int, ev api.Event) error { return errUnsupported }

func (m *IOManager) WaitEventTimeout(fd int, ev api.Event, d time.Duration) error {
	return errUnsupported
}

func (m *IOManager) Sleep(d time.Duration) {}

func (m *IOManager) Close() error { return nil }
