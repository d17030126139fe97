// Package tool defines the Tool capability and the name-keyed registry the
// dispatcher resolves tools/call requests against.
//
// A Tool exposes a JSON Schema describing its input and an Execute method
// taking decoded arguments. The Registry holds the fixed tool set populated
// at startup plus an allow-list gating which names are reachable from the
// wire regardless of registration.
package tool
