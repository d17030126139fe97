// Package agent defines the device-automation interface the calibration
// orchestrator drives, together with the health model and the failure
// taxonomy used to pick a recovery path.
//
// The actual automation backend lives outside this process; this package
// only specifies the capability surface and classifies its failures:
// companion process absent, transport stuck (process up, port down),
// device missing from the companion's target list, or per-operation
// timeout.
package agent
