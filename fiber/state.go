// File: fiber/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fiber

import "fmt"

// State is a fiber lifecycle state.
//
//	INIT -> EXEC
//	EXEC -> READY | HOLD | TERM | EXCEPT
//	READY | HOLD -> EXEC
//	TERM | EXCEPT -> INIT (Reset only)
type State int32

const (
	StateInit State = iota
	StateHold
	StateExec
	StateTerm
	StateReady
	StateExcept
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateHold:
		return "HOLD"
	case StateExec:
		return "EXEC"
	case StateTerm:
		return "TERM"
	case StateReady:
		return "READY"
	case StateExcept:
		return "EXCEPT"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether s is TERM or EXCEPT.
func (s State) Terminal() bool {
	return s == StateTerm || s == StateExcept
}

// Resumable reports whether a fiber in state s may be resumed.
func (s State) Resumable() bool {
	return s == StateInit || s == StateReady || s == StateHold
}
