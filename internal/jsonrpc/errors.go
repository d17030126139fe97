package jsonrpc

import "fmt"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Error is a JSON-RPC error object carried in the response envelope.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewParseError builds a -32700 error.
func NewParseError(detail string) *Error {
	return &Error{Code: CodeParseError, Message: "Parse error", Data: detail}
}

// NewInvalidRequest builds a -32600 error with a human-readable reason.
func NewInvalidRequest(reason string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: "Invalid Request", Data: reason}
}

// NewMethodNotFound builds a -32601 error naming the offending method.
func NewMethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found: " + method}
}

// NewInvalidParams builds a -32602 error with a human-readable reason.
func NewInvalidParams(reason string) *Error {
	return &Error{Code: CodeInvalidParams, Message: "Invalid params: " + reason}
}

// NewInternalError builds a -32603 error. The optional data payload carries
// the original failure detail for clients that want it.
func NewInternalError(message string, data any) *Error {
	return &Error{Code: CodeInternalError, Message: message, Data: data}
}
