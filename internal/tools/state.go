package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/arkavo/arkavo-mcp/internal/state"
	"github.com/arkavo/arkavo-mcp/internal/tool"
)

// Compile-time verification of the tool contracts.
var (
	_ tool.Tool = (*QueryState)(nil)
	_ tool.Tool = (*MutateState)(nil)
)

// QueryState reads entities from the shared state store.
type QueryState struct {
	store *state.Store
}

// NewQueryState creates the query_state tool.
func NewQueryState(store *state.Store) *QueryState {
	return &QueryState{store: store}
}

func (t *QueryState) Name() string { return "query_state" }

func (t *QueryState) Description() string {
	return "Query entities from the shared state store, by id or by equality filter"
}

func (t *QueryState) InputSchema() *jsonschema.Schema {
	return tool.Simple(map[string]string{
		"entity": "string",
		"filter": "object",
	})
}

func (t *QueryState) Execute(_ context.Context, args map[string]any) (map[string]any, error) {
	entities := make(map[string]any)

	if entity, ok := args["entity"].(string); ok && entity != "" {
		if value, found := t.store.Get(entity); found {
			entities[entity] = value
		}
	} else {
		filter, _ := args["filter"].(map[string]any)
		entities = t.store.Query(filter)
	}

	return map[string]any{
		"state": entities,
		"count": len(entities),
	}, nil
}

// MutateState applies one of the standard actions to an entity.
type MutateState struct {
	store *state.Store
}

// NewMutateState creates the mutate_state tool.
func NewMutateState(store *state.Store) *MutateState {
	return &MutateState{store: store}
}

func (t *MutateState) Name() string { return "mutate_state" }

func (t *MutateState) Description() string {
	return "Mutate an entity in the shared state store: set, create, update, delete, or a recorded custom action"
}

func (t *MutateState) InputSchema() *jsonschema.Schema {
	return tool.Simple(map[string]string{
		"entity": "string",
		"action": "string",
		"data":   "object",
	}, "entity", "action")
}

func (t *MutateState) Execute(_ context.Context, args map[string]any) (map[string]any, error) {
	entity, ok := args["entity"].(string)
	if !ok || entity == "" {
		return tool.ErrorResult("InvalidParams", "entity is required"), nil
	}

	action, ok := args["action"].(string)
	if !ok || action == "" {
		return tool.ErrorResult("InvalidParams", "action is required"), nil
	}

	res, err := t.store.Apply(entity, action, args["data"])
	if err != nil {
		return tool.ErrorResult("MutationFailed", "%v", err), nil
	}

	out := map[string]any{
		"entity": entity,
		"action": action,
	}

	if action == "delete" {
		out["deleted"] = res.Deleted
	} else {
		out["result"] = res.Value
	}

	return out, nil
}
