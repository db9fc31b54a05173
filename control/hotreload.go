// control/hotreload.go
// Manages process-wide hot-reload hooks for config changes.

package control

import (
	"fmt"
	"os"
)

// RegisterReloadHook adds a component reload listener to the default store.
func RegisterReloadHook(fn func()) {
	defaultStore.OnReload(fn)
}

// TriggerHotReloadSync re-runs every listener of the default store without
// changing any value.
func TriggerHotReloadSync() {
	defaultStore.mu.RLock()
	listeners := append([]func(){}, defaultStore.listeners...)
	defaultStore.mu.RUnlock()
	dispatchReload(listeners)
}

// LoadFile merges a YAML file into the default store and fires reload hooks.
func LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("control: read %s: %w", path, err)
	}
	return defaultStore.LoadYAML(data)
}
