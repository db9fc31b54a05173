// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection layer for the
// fiber runtime.
//
// Provides concurrent-safe state handling primitives including:
//   - Snapshot config reads, YAML loading and typed variables with reload
//   - Prometheus-backed metrics for schedulers and reactors
//   - State export through named debug probes
package control
