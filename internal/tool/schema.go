package tool

import (
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Simple creates a jsonschema.Schema from a type-name map.
//
// Input format: {"entity": "string", "data": "object"}. Only the names
// listed in required are marked required; unknown properties are ignored
// at execute time, so schemas stay permissive.
func Simple(props map[string]string, required ...string) *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, len(props))
	for name, goType := range props {
		properties[name] = typeSchema(goType)
	}

	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// typeSchema converts a Go type string to a JSON Schema node.
func typeSchema(goType string) *jsonschema.Schema {
	switch goType {
	case "string":
		return &jsonschema.Schema{Type: "string"}
	case "int", "int32", "int64", "uint", "uint32", "uint64":
		return &jsonschema.Schema{Type: "integer"}
	case "float32", "float64", "float", "number":
		return &jsonschema.Schema{Type: "number"}
	case "bool", "boolean":
		return &jsonschema.Schema{Type: "boolean"}
	case "any", "object", "map[string]any":
		return &jsonschema.Schema{Type: "object"}
	default:
		if itemType, ok := strings.CutPrefix(goType, "[]"); ok {
			return &jsonschema.Schema{
				Type:  "array",
				Items: typeSchema(itemType),
			}
		}

		return &jsonschema.Schema{Type: "string"}
	}
}
