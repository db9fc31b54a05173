// File: fiber/fiber_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fiber

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/control"
	"github.com/momentics/hioload-fiber/internal/logging"
)

func quietLogs(t *testing.T) {
	t.Helper()
	logging.SetLogger(zaptest.NewLogger(t))
	t.Cleanup(func() { logging.SetLogger(nil) })
}

func TestFiber_RunsToTerm(t *testing.T) {
	ran := false
	f := New(func() { ran = true })
	require.Equal(t, StateInit, f.State())

	f.Resume()

	assert.True(t, ran)
	assert.Equal(t, StateTerm, f.State())
	assert.NoError(t, f.Err())
}

func TestFiber_YieldToHoldResumesWhereItLeftOff(t *testing.T) {
	var steps []int
	f := New(func() {
		steps = append(steps, 1)
		YieldToHold()
		steps = append(steps, 2)
		YieldToReady()
		steps = append(steps, 3)
	})

	f.Resume()
	assert.Equal(t, []int{1}, steps)
	assert.Equal(t, StateHold, f.State())

	f.Resume()
	assert.Equal(t, []int{1, 2}, steps)
	assert.Equal(t, StateReady, f.State())

	f.Resume()
	assert.Equal(t, []int{1, 2, 3}, steps)
	assert.Equal(t, StateTerm, f.State())
}

func TestFiber_ResumeReturnsRecordedState(t *testing.T) {
	f := New(func() {
		YieldToHold()
		YieldToReady()
	})

	first := f.Resume()
	require.Equal(t, StateHold, first)

	// another thread picks f up before the first resumer looks at it
	second := make(chan State)
	go func() { second <- f.Resume() }()
	assert.Equal(t, StateReady, <-second)
	assert.Equal(t, StateHold, first)
	assert.Equal(t, StateReady, f.State())

	assert.Equal(t, StateTerm, f.Resume())
}

func TestFiber_PanicBecomesExcept(t *testing.T) {
	quietLogs(t)
	f := New(func() { panic("boom") })

	f.Resume()

	require.Equal(t, StateExcept, f.State())
	var pe *PanicError
	require.True(t, errors.As(f.Err(), &pe))
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestFiber_GoexitBecomesExcept(t *testing.T) {
	quietLogs(t)
	f := New(func() { runtime.Goexit() })

	f.Resume()

	assert.Equal(t, StateExcept, f.State())
	assert.Error(t, f.Err())
}

func TestFiber_ExactlyOneTerminalState(t *testing.T) {
	quietLogs(t)
	for i := 0; i < 50; i++ {
		fail := i%3 == 0
		f := New(func() {
			YieldToReady()
			if fail {
				panic(i)
			}
		})
		for f.State().Resumable() {
			f.Resume()
		}
		if fail {
			assert.Equal(t, StateExcept, f.State(), "fiber %d", i)
		} else {
			assert.Equal(t, StateTerm, f.State(), "fiber %d", i)
		}
	}
}

func TestFiber_ResetReusesFiber(t *testing.T) {
	count := 0
	f := New(func() { count++ })
	id := f.ID()
	f.Resume()
	require.Equal(t, StateTerm, f.State())

	f.Reset(func() { count += 10 })
	require.Equal(t, StateInit, f.State())
	f.Resume()

	assert.Equal(t, 11, count)
	assert.Equal(t, id, f.ID())
	assert.Equal(t, StateTerm, f.State())
}

func TestFiber_ResetOfHeldFiberIsInvariantViolation(t *testing.T) {
	quietLogs(t)
	f := New(func() { YieldToHold() })
	f.Resume()
	require.Equal(t, StateHold, f.State())

	assert.PanicsWithValue(t, &api.InvariantError{Message: "reset of a live fiber"}, func() {
		f.Reset(nil)
	})

	f.Resume()
	assert.Equal(t, StateTerm, f.State())
}

func TestFiber_ResumeTerminatedIsInvariantViolation(t *testing.T) {
	quietLogs(t)
	f := New(func() {})
	f.Resume()

	assert.Panics(t, func() { f.Resume() })
}

func TestCurrent_LazilyCreatesMainFiber(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer ReleaseThread()
		assert.Zero(t, CurrentID())

		m := Current()
		assert.True(t, m.IsMain())
		assert.Equal(t, StateExec, m.State())
		assert.Same(t, m, Current())
		assert.Equal(t, m.ID(), CurrentID())
		assert.Zero(t, m.StackSize())
	}()
	<-done
}

func TestFiber_OneExecFiberPerThread(t *testing.T) {
	var inside *Fiber
	var mainState State
	f := New(func() {
		inside = Current()
		mainState = CurrentThread().Main().State()
	})
	main := Current()

	f.Resume()

	assert.Same(t, f, inside)
	assert.Equal(t, StateHold, mainState)
	assert.Equal(t, StateExec, main.State())
	assert.Same(t, CurrentThread(), f.Thread())
}

func TestFiber_NestedResumeReturnsToResumer(t *testing.T) {
	var order []string
	inner := New(func() {
		order = append(order, "inner")
		YieldToHold()
		order = append(order, "inner-2")
	})
	outer := New(func() {
		order = append(order, "outer")
		inner.Resume()
		order = append(order, "outer-2")
	})

	outer.Resume()
	inner.Resume()

	assert.Equal(t, []string{"outer", "inner", "outer-2", "inner-2"}, order)
	assert.Equal(t, StateTerm, outer.State())
	assert.Equal(t, StateTerm, inner.State())
}

func TestFiber_StackSizeFromConfig(t *testing.T) {
	require.NoError(t, control.Default().SetConfig(map[string]any{"fiber.stack_size": 65536}))
	t.Cleanup(func() {
		_ = control.Default().SetConfig(map[string]any{"fiber.stack_size": 128 * 1024})
	})

	assert.EqualValues(t, 65536, New(func() {}).StackSize())
	assert.EqualValues(t, 4096, New(func() {}, WithStackSize(4096)).StackSize())
	assert.Zero(t, New(func() {}, AsCaller()).StackSize())
	assert.Zero(t, New(func() {}, WithStackSize(4096), AsCaller()).StackSize())
}

func TestFiber_CreationAndResumeDoNotLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(nil) })

	for i := 0; i < 10; i++ {
		f := New(func() { YieldToReady() })
		f.Resume()
		f.Resume()
		f.Reset(func() {})
		f.Resume()
	}
	assert.Zero(t, logs.Len())
}
