// Package jsonrpc implements line-delimited JSON-RPC 2.0 framing and
// envelope validation for the stdio transport.
//
// The package provides:
//   - LineReader / LineWriter for one-JSON-document-per-line framing
//   - Request parsing with strict envelope validation
//   - The JSON-RPC error taxonomy (ParseError through InternalError)
//   - Response construction and outbound self-validation
//
// Malformed input lines whose id cannot be recovered produce no response
// at all; JSON-RPC 2.0 permits omitting the response in that case. All
// diagnostics go through the injected slog.Logger, never the output stream.
package jsonrpc
