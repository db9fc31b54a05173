// File: scheduler/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package scheduler

import (
	"github.com/momentics/hioload-fiber/control"
)

// Hooks are the three points a scheduler variant may override. The base
// Scheduler implements them itself; a reactor supplies its own through
// WithHooks and delegates back to the Scheduler where it needs the base
// behavior.
type Hooks interface {
	// Tickle wakes an idle worker.
	Tickle()
	// Idle runs inside each worker's idle fiber when the queue has nothing
	// for that worker. It returns once the scheduler is stopping.
	Idle()
	// Stopping reports whether the workers may exit.
	Stopping() bool
}

// Option customizes a Scheduler at construction.
type Option func(*Scheduler)

// WithHooks installs scheduler hook overrides.
func WithHooks(h Hooks) Option {
	return func(s *Scheduler) {
		if h != nil {
			s.hooks = h
		}
	}
}

// WithCPUAffinity pins worker i to cpus[i%len(cpus)].
func WithCPUAffinity(cpus ...int) Option {
	return func(s *Scheduler) {
		s.cpus = append([]int(nil), cpus...)
	}
}

// WithMetrics publishes scheduler counters and gauges into reg.
func WithMetrics(reg *control.MetricsRegistry) Option {
	return func(s *Scheduler) {
		s.metrics = reg
	}
}
