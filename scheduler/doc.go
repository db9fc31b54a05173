// File: scheduler/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package scheduler runs fibers and callbacks on a pool of worker threads.
//
// Each worker is a goroutine locked to its OS thread that loops over a shared
// FIFO of tasks. A task may be pinned to one worker by thread id; other workers
// skip it and leave it in place. When nothing is runnable the worker resumes
// its idle fiber, whose behavior (together with Tickle and Stopping) can be
// replaced through Hooks. The reactor package uses that seam to block in epoll
// instead of spinning.
package scheduler
