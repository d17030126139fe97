// Package metrics counts tool invocations for side-channel diagnostics.
// Counters never touch the response stream; they surface through the
// logger on demand.
package metrics
