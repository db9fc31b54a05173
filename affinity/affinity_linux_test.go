//go:build linux

// File: affinity/affinity_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package affinity

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-fiber/api"
)

func TestSetAffinity_PinsCallingThread(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	before, err := Allowed()
	require.NoError(t, err)
	require.NotEmpty(t, before)
	// runs before the unlock above, on the same thread
	defer func() { _ = restore(before) }()

	require.NoError(t, SetAffinity(before[0]))
	after, err := Allowed()
	require.NoError(t, err)
	assert.Equal(t, []int{before[0]}, after)
}

func TestSetAffinity_RejectsNegativeCPU(t *testing.T) {
	err := SetAffinity(-1)
	assert.True(t, errors.Is(err, api.ErrInvalidArgument))
}
