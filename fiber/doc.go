// File: fiber/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package fiber implements stackful cooperative coroutines.
//
// Every fiber body runs on its own goroutine; control is handed between the
// resumer and the fiber over unbuffered channels, so exactly one side of the
// pair runs at any instant. A Thread is the explicit per-worker runtime handle:
// it owns the implicit main fiber and records which fiber is active.
//
//	f := fiber.New(func() {
//		step1()
//		fiber.YieldToHold()
//		step2()
//	})
//	f.Resume() // runs step1
//	f.Resume() // runs step2, f.State() == fiber.StateTerm
package fiber
