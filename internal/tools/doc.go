// Package tools contains the concrete tool implementations registered
// with the server: state query/mutation, snapshots, calibration
// management, and the smoke-test runner.
//
// Tools validate their own required arguments at execute time; the
// dispatcher does not descend into per-tool schemas. Failures are
// returned in-band via tool.ErrorResult so the dispatcher can map them
// onto the JSON-RPC error envelope.
package tools
