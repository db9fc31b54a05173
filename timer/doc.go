// File: timer/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package timer keeps one-shot and recurring timers in a B-tree ordered by
// next expiry. It never runs callbacks itself: a reactor asks NextTimer how
// long it may block and ListExpired which callbacks to schedule.
package timer
