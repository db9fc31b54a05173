// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_stub.go) guarded by build tags.

package affinity

import (
	"fmt"

	"github.com/momentics/hioload-fiber/api"
)

// SetAffinity pins the calling OS thread to a given logical CPU. The caller
// must hold the thread with runtime.LockOSThread for the pin to stick.
// On unsupported platforms returns an error wrapping api.ErrNotSupported.
func SetAffinity(cpuID int) error {
	if cpuID < 0 {
		return fmt.Errorf("affinity: cpu %d: %w", cpuID, api.ErrInvalidArgument)
	}
	return setAffinityPlatform(cpuID)
}

// Allowed returns the CPUs the calling thread may run on.
func Allowed() ([]int, error) {
	return allowedPlatform()
}
