// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with dynamic update and hot-reload propagation.

package control

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-fiber/api"
)

// ErrTypeMismatch is returned when a key is looked up with two different types.
var ErrTypeMismatch = fmt.Errorf("%w: config type mismatch", api.ErrInvalidArgument)

var validKey = regexp.MustCompile(`^[a-z0-9._]+$`)

// ConfigStore is a dynamic key/value map with atomic snapshot and listener support.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
	vars      map[string]varBinding
}

type varBinding struct {
	typ  string
	desc string
	v    any
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config:    make(map[string]any),
		listeners: make([]func(), 0),
		vars:      make(map[string]varBinding),
	}
}

var defaultStore = NewConfigStore()

// Default returns the process-wide store.
func Default() *ConfigStore {
	return defaultStore
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	copy := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		copy[k] = v
	}
	return copy
}

// Get returns the raw value stored under key.
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[key]
	return v, ok
}

// SetConfig merges new values and dispatches reload if needed.
// Keys are lower-cased; a key outside [a-z0-9._] rejects the whole update.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) error {
	normalized := make(map[string]any, len(newCfg))
	for k, v := range newCfg {
		key := strings.ToLower(k)
		if !validKey.MatchString(key) {
			return fmt.Errorf("%w: config key %q", api.ErrInvalidArgument, k)
		}
		normalized[key] = v
	}
	cs.mu.Lock()
	for k, v := range normalized {
		cs.config[k] = v
	}
	listeners := append([]func(){}, cs.listeners...)
	cs.mu.Unlock()
	dispatchReload(listeners)
	return nil
}

// LoadYAML flattens a YAML document into dotted keys and merges it.
//
//	fiber:
//	  stack_size: 65536
//
// becomes fiber.stack_size = 65536.
func (cs *ConfigStore) LoadYAML(data []byte) error {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("control: parse yaml: %w", err)
	}
	flat := make(map[string]any)
	flatten("", root, flat)
	return cs.SetConfig(flat)
}

func flatten(prefix string, node map[string]any, out map[string]any) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(key, child, out)
			continue
		}
		out[key] = v
	}
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// dispatchReload invokes all listeners synchronously, outside the store lock,
// so a Var observes the new value before SetConfig returns.
func dispatchReload(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}

// Var is a typed view of a single key with a default value.
type Var[T any] struct {
	store *ConfigStore
	name  string
	desc  string
	def   T
	cur   atomic.Pointer[T]
}

// Lookup binds name to a typed variable. Looking the same name up again with
// the same type returns the existing variable.
func Lookup[T any](cs *ConfigStore, name string, def T, desc string) (*Var[T], error) {
	name = strings.ToLower(name)
	if !validKey.MatchString(name) {
		return nil, fmt.Errorf("%w: config key %q", api.ErrInvalidArgument, name)
	}
	typ := fmt.Sprintf("%T", def)

	cs.mu.Lock()
	if b, ok := cs.vars[name]; ok {
		cs.mu.Unlock()
		if b.typ != typ {
			return nil, fmt.Errorf("%w: %s is %s, requested %s", ErrTypeMismatch, name, b.typ, typ)
		}
		return b.v.(*Var[T]), nil
	}
	v := &Var[T]{store: cs, name: name, desc: desc, def: def}
	cs.vars[name] = varBinding{typ: typ, desc: desc, v: v}
	cs.listeners = append(cs.listeners, v.refresh)
	cs.mu.Unlock()

	v.refresh()
	return v, nil
}

// MustLookup is Lookup for package-level variables; it panics on error.
func MustLookup[T any](cs *ConfigStore, name string, def T, desc string) *Var[T] {
	v, err := Lookup(cs, name, def, desc)
	if err != nil {
		panic(err)
	}
	return v
}

// Name returns the key.
func (v *Var[T]) Name() string { return v.name }

// Description returns the help text supplied at lookup.
func (v *Var[T]) Description() string { return v.desc }

// Value returns the current value, or the default when unset or unconvertible.
func (v *Var[T]) Value() T {
	if p := v.cur.Load(); p != nil {
		return *p
	}
	return v.def
}

func (v *Var[T]) refresh() {
	raw, ok := v.store.Get(v.name)
	if !ok {
		v.cur.Store(nil)
		return
	}
	out, err := convert[T](raw)
	if err != nil {
		v.cur.Store(nil)
		return
	}
	v.cur.Store(&out)
}

// convert casts through a YAML round trip, so "65536" and 65536 both land in
// a uint32.
func convert[T any](raw any) (T, error) {
	var out T
	if t, ok := raw.(T); ok {
		return t, nil
	}
	var b []byte
	if s, ok := raw.(string); ok {
		b = []byte(s)
	} else {
		var err error
		if b, err = yaml.Marshal(raw); err != nil {
			return out, err
		}
	}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return out, err
	}
	return out, nil
}
