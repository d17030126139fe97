// Package calibration implements the coordinate-mapping procedure that
// aligns tap coordinates between this server and a device's screen.
//
// The Orchestrator owns a registry of sessions, one active session per
// device. Each session runs as a detached goroutine through a phase
// machine (initializing, validating, complete/failed) under a global
// deadline. The tap driver issues a fixed five-point sequence against the
// device agent, reads back the reference application's verification
// artifact through the state store, and refines an accumulated coordinate
// offset over bounded attempts. A watchdog recovers a wedged agent when no
// tap succeeds within its window.
//
// Successful results persist as per-device JSON files; a cron-driven
// monitor re-issues calibration for devices whose last successful run has
// gone stale.
package calibration
