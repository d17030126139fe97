package tool

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tool is a named capability invocable through tools/call.
//
// Execute receives the decoded arguments object and returns a JSON-shaped
// result map. Tool-level failures are reported in-band: a result carrying a
// top-level "error" object is converted by the dispatcher into a JSON-RPC
// internal error. The error return is reserved for infrastructure failures
// (cancellation, panics recovered by wrappers).
type Tool interface {
	Name() string
	Description() string
	InputSchema() *jsonschema.Schema
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ErrorResult builds the in-band tool error shape the dispatcher recognizes.
func ErrorResult(code, format string, args ...any) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": fmt.Sprintf(format, args...),
		},
	}
}

// ErrorOf extracts the code and message from an in-band tool error result.
// The second return is false when the result is not a tool error.
func ErrorOf(result map[string]any) (code, message string, ok bool) {
	errObj, ok := result["error"].(map[string]any)
	if !ok {
		return "", "", false
	}

	code, _ = errObj["code"].(string)
	message, _ = errObj["message"].(string)

	return code, message, true
}
