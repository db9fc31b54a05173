// File: control/metrics_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistry_CountersAndGauges(t *testing.T) {
	mr := NewMetricsRegistry()
	assert.True(t, mr.Updated().IsZero())

	c := mr.Counter("tasks_total", "tasks", "alpha")
	c.Add(3)
	assert.Same(t, c, mr.Counter("tasks_total", "tasks", "alpha"))
	mr.Counter("tasks_total", "tasks", "beta").Inc()

	depth := 5.0
	mr.GaugeFunc("depth", "queue depth", "alpha", func() float64 { return depth })
	mr.GaugeFunc("depth", "queue depth", "alpha", func() float64 { return -1 })

	snap := mr.GetSnapshot()
	assert.EqualValues(t, 3, snap["hioload_fiber_tasks_total{alpha}"])
	assert.EqualValues(t, 1, snap["hioload_fiber_tasks_total{beta}"])
	assert.EqualValues(t, 5, snap["hioload_fiber_depth{alpha}"])
	assert.False(t, mr.Updated().IsZero())

	families, err := mr.Gatherer().Gather()
	require.NoError(t, err)
	assert.Len(t, families, 2)
}

func TestMetricsRegistry_NilIsUsable(t *testing.T) {
	var mr *MetricsRegistry
	mr.Counter("x_total", "", "a").Inc()
	mr.GaugeFunc("y", "", "a", func() float64 { return 1 })
	assert.Empty(t, mr.GetSnapshot())
	assert.True(t, mr.Updated().IsZero())
	families, err := mr.Gatherer().Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestDebugProbes_DumpState(t *testing.T) {
	dp := NewDebugProbes()
	dp.RegisterProbe("b", func() any { return 2 })
	dp.RegisterProbe("a", func() any { return "one" })
	RegisterPlatformProbes(dp)

	names := dp.Names()
	assert.Equal(t, "a", names[0])
	assert.Contains(t, names, "platform.cpus")

	state := dp.DumpState()
	assert.Equal(t, "one", state["a"])
	assert.Equal(t, 2, state["b"])
	assert.Positive(t, state["platform.cpus"])
}
