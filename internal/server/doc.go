// Package server contains the stdio dispatcher: the sequential decode
// loop that reads newline-delimited JSON-RPC requests, routes them, and
// serializes responses back onto the output stream.
//
// Tool calls run in their own goroutines under per-call timeouts, so
// responses may interleave across requests; the line writer guarantees
// each response is still emitted as one intact document. The output
// stream carries responses only. Logs go to the side channel.
package server
