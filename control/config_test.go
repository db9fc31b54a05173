// File: control/config_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-fiber/api"
)

func TestConfigStore_SetConfigNotifiesListeners(t *testing.T) {
	cs := NewConfigStore()
	calls := 0
	cs.OnReload(func() { calls++ })

	require.NoError(t, cs.SetConfig(map[string]any{"Fiber.Stack_Size": 1024}))

	assert.Equal(t, 1, calls)
	v, ok := cs.Get("fiber.stack_size")
	require.True(t, ok)
	assert.Equal(t, 1024, v)
	assert.Equal(t, map[string]any{"fiber.stack_size": 1024}, cs.GetSnapshot())
}

func TestConfigStore_RejectsInvalidKeys(t *testing.T) {
	cs := NewConfigStore()
	err := cs.SetConfig(map[string]any{"ok.key": 1, "bad key!": 2})
	assert.True(t, errors.Is(err, api.ErrInvalidArgument))
	assert.Empty(t, cs.GetSnapshot())
}

func TestConfigStore_LoadYAMLFlattensKeys(t *testing.T) {
	cs := NewConfigStore()
	require.NoError(t, cs.LoadYAML([]byte("fiber:\n  stack_size: 65536\nlog:\n  level: debug\n")))

	snap := cs.GetSnapshot()
	assert.Equal(t, 65536, snap["fiber.stack_size"])
	assert.Equal(t, "debug", snap["log.level"])

	assert.Error(t, cs.LoadYAML([]byte("fiber: [unclosed")))
}

func TestVar_FollowsReloadsAndConverts(t *testing.T) {
	cs := NewConfigStore()
	v, err := Lookup(cs, "fiber.stack_size", uint32(128*1024), "fiber stack size")
	require.NoError(t, err)
	assert.EqualValues(t, 128*1024, v.Value())
	assert.Equal(t, "fiber.stack_size", v.Name())
	assert.Equal(t, "fiber stack size", v.Description())

	require.NoError(t, cs.SetConfig(map[string]any{"fiber.stack_size": 65536}))
	assert.EqualValues(t, 65536, v.Value())

	require.NoError(t, cs.SetConfig(map[string]any{"fiber.stack_size": "4096"}))
	assert.EqualValues(t, 4096, v.Value())

	// unconvertible values fall back to the default
	require.NoError(t, cs.SetConfig(map[string]any{"fiber.stack_size": "lots"}))
	assert.EqualValues(t, 128*1024, v.Value())
}

func TestLookup_SameNameSameTypeSharesVar(t *testing.T) {
	cs := NewConfigStore()
	a, err := Lookup(cs, "log.level", "info", "")
	require.NoError(t, err)
	b, err := Lookup(cs, "LOG.level", "warn", "")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = Lookup(cs, "log.level", 3, "")
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	assert.True(t, errors.Is(err, api.ErrInvalidArgument))

	_, err = Lookup(cs, "no spaces", 1, "")
	assert.Error(t, err)
	assert.Panics(t, func() { MustLookup(cs, "log.level", 1.5, "") })
}

func TestLoadFile_UpdatesDefaultStore(t *testing.T) {
	v := MustLookup(Default(), "test.load_file", 1, "")
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("test:\n  load_file: 7\n"), 0o600))

	hooked := false
	RegisterReloadHook(func() { hooked = true })
	require.NoError(t, LoadFile(path))

	assert.Equal(t, 7, v.Value())
	assert.True(t, hooked)

	hooked = false
	TriggerHotReloadSync()
	assert.True(t, hooked)

	assert.Error(t, LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
}
