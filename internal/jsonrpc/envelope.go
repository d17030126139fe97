package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoID indicates a request whose id could not be recovered. Responses
// for such requests are suppressed entirely.
var ErrNoID = errors.New("request id unrecoverable")

// ID is a JSON-RPC request id: an integer or a string, never null, never a
// float. The raw bytes are preserved so the response carries the id back
// byte-for-byte.
type ID struct {
	raw json.RawMessage
}

// UnmarshalJSON validates the id type and keeps the original bytes.
func (id *ID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errors.New("id must not be null")
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("invalid string id: %w", err)
		}

		id.raw = append(json.RawMessage(nil), trimmed...)

		return nil
	}

	// Anything else must be an integer. Decoding via json.Number keeps the
	// original digits so 2 and 2.0 are distinguishable.
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("id must be an integer or a string")
	}

	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("id must be an integer or a string")
	}

	if bytes.ContainsAny(trimmed, ".eE") {
		return fmt.Errorf("id must be an integer or a string")
	}

	id.raw = append(json.RawMessage(nil), trimmed...)

	return nil
}

// MarshalJSON emits the id exactly as it arrived.
func (id ID) MarshalJSON() ([]byte, error) {
	if len(id.raw) == 0 {
		return nil, ErrNoID
	}

	return id.raw, nil
}

// Valid reports whether the id was populated from a legal value.
func (id ID) Valid() bool {
	return len(id.raw) > 0
}

// String renders the id for log records.
func (id ID) String() string {
	return string(id.raw)
}

// Request is a validated JSON-RPC 2.0 request envelope. Params is kept raw;
// method handlers decode it against their own expectations.
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

// envelopeFields is the exhaustive set of legal top-level request fields.
var envelopeFields = map[string]struct{}{
	"jsonrpc": {},
	"id":      {},
	"method":  {},
	"params":  {},
}

// ParseRequest decodes and validates one request line.
//
// The returned *Error is nil on success. On failure the Request may still
// carry a salvaged id: callers emit an error response when the id is valid
// and suppress the response otherwise.
func ParseRequest(line []byte) (*Request, *Error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		// Undecodable or not an object: the id is unrecoverable.
		return &Request{}, NewParseError(err.Error())
	}

	req := &Request{}

	// Salvage the id first so later validation failures can carry it.
	if rawID, ok := fields["id"]; ok {
		_ = req.ID.UnmarshalJSON(rawID) // leaves the id invalid on bad type
	}

	for name := range fields {
		if _, ok := envelopeFields[name]; !ok {
			return req, NewInvalidRequest("unexpected field: " + name)
		}
	}

	rawVersion, ok := fields["jsonrpc"]
	if !ok {
		return req, NewInvalidRequest("missing jsonrpc field")
	}

	var version string
	if err := json.Unmarshal(rawVersion, &version); err != nil || version != "2.0" {
		return req, NewInvalidRequest("jsonrpc must be \"2.0\"")
	}

	rawID, ok := fields["id"]
	if !ok {
		return req, NewInvalidRequest("missing id field")
	}

	if err := req.ID.UnmarshalJSON(rawID); err != nil {
		return req, NewInvalidRequest(err.Error())
	}

	rawMethod, ok := fields["method"]
	if !ok {
		return req, NewInvalidRequest("missing method field")
	}

	if err := json.Unmarshal(rawMethod, &req.Method); err != nil || req.Method == "" {
		return req, NewInvalidRequest("method must be a non-empty string")
	}

	if rawParams, ok := fields["params"]; ok {
		req.Params = rawParams
	}

	return req, nil
}

// Response is a JSON-RPC 2.0 response envelope. Exactly one of Result and
// Error is set.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      ID     `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// NewResult builds a success response.
func NewResult(id ID, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id ID, rpcErr *Error) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: rpcErr}
}

// Validate re-checks an outbound response against the envelope contract.
// The dispatcher replaces responses failing this check with an internal
// error carrying the original id.
func (r *Response) Validate() error {
	if r.JSONRPC != "2.0" {
		return fmt.Errorf("jsonrpc must be \"2.0\", got %q", r.JSONRPC)
	}

	if !r.ID.Valid() {
		return ErrNoID
	}

	if r.Error == nil && r.Result == nil {
		return errors.New("response has neither result nor error")
	}

	if r.Error != nil && r.Result != nil {
		return errors.New("response has both result and error")
	}

	if r.Error != nil {
		if r.Error.Code == 0 {
			return errors.New("error response missing code")
		}

		if r.Error.Message == "" {
			return errors.New("error response missing message")
		}
	}

	if _, err := json.Marshal(r); err != nil {
		return fmt.Errorf("response not marshalable: %w", err)
	}

	return nil
}
