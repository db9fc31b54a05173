// File: reactor/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"github.com/momentics/hioload-fiber/control"
	"github.com/momentics/hioload-fiber/scheduler"
	"github.com/momentics/hioload-fiber/timer"
)

// Option customizes an IOManager.
type Option func(*config)

type config struct {
	sched   []scheduler.Option
	timer   []timer.Option
	metrics *control.MetricsRegistry
}

// WithSchedulerOptions forwards options to the embedded scheduler. Hooks set
// here are replaced by the IOManager's own.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(c *config) {
		c.sched = append(c.sched, opts...)
	}
}

// WithTimerOptions forwards options to the embedded timer manager.
func WithTimerOptions(opts ...timer.Option) Option {
	return func(c *config) {
		c.timer = append(c.timer, opts...)
	}
}

// WithMetrics publishes scheduler and reactor metrics into reg.
func WithMetrics(reg *control.MetricsRegistry) Option {
	return func(c *config) {
		c.metrics = reg
	}
}
