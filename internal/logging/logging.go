// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package-level structured logger shared by the runtime packages.
// The level follows the "log.level" config key of the default store.

package logging

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/control"
)

var (
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	global atomic.Pointer[zap.Logger]

	levelVar = control.MustLookup(control.Default(), "log.level", "info", "minimum log level")
)

func init() {
	global.Store(newDefault())
	control.Default().OnReload(applyLevel)
	applyLevel()
}

func newDefault() *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
	return zap.New(core, zap.AddCaller())
}

func applyLevel() {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(levelVar.Value())); err != nil {
		return
	}
	level.SetLevel(l)
}

// SetLogger replaces the process logger. A nil logger installs a no-op one.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	global.Store(l)
}

// L returns the process logger.
func L() *zap.Logger {
	return global.Load()
}

// Named returns a child logger for a runtime component.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Assert reports an invariant violation when cond is false.
func Assert(cond bool, msg string, fields ...zap.Field) {
	if !cond {
		Fail(msg, fields...)
	}
}

// Fail logs msg with a backtrace and panics with *api.InvariantError.
func Fail(msg string, fields ...zap.Field) {
	fields = append(fields, zap.Stack("backtrace"))
	L().Error("ASSERTION: "+msg, fields...)
	panic(&api.InvariantError{Message: msg})
}
