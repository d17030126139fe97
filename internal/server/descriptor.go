package server

import "github.com/arkavo/arkavo-mcp/internal/tool"

// Protocol identity constants reported by initialize.
const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "arkavo"
)

// initializeResult builds the handshake descriptor. The tool list under
// capabilities.tools.available is the same content tools/list returns.
func initializeResult(registry *tool.Registry, version string) map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": version,
		},
		"capabilities": map[string]any{
			"tools": map[string]any{
				"available": registry.Schemas(),
			},
		},
	}
}

// toolsListResult builds the tools/list payload.
func toolsListResult(registry *tool.Registry) map[string]any {
	return map[string]any{
		"tools": registry.Schemas(),
	}
}
