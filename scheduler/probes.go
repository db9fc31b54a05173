// File: scheduler/probes.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package scheduler

import (
	"github.com/momentics/hioload-fiber/api"
)

// RegisterProbes exposes the scheduler counters under "scheduler.<name>.*".
func (s *Scheduler) RegisterProbes(d api.Debug) {
	prefix := "scheduler." + s.name + "."
	d.RegisterProbe(prefix+"active", func() any { return int(s.active.Load()) })
	d.RegisterProbe(prefix+"idle", func() any { return int(s.idle.Load()) })
	d.RegisterProbe(prefix+"queued", func() any { return s.QueueLen() })
	d.RegisterProbe(prefix+"threads", func() any { return s.ThreadIDs() })
}
