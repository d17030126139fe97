package tools

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/arkavo/arkavo-mcp/internal/state"
	"github.com/arkavo/arkavo-mcp/internal/tool"
)

var _ tool.Tool = (*Snapshot)(nil)

// Snapshot manages named point-in-time copies of the state store.
type Snapshot struct {
	store *state.Store
}

// NewSnapshot creates the snapshot tool.
func NewSnapshot(store *state.Store) *Snapshot {
	return &Snapshot{store: store}
}

func (t *Snapshot) Name() string { return "snapshot" }

func (t *Snapshot) Description() string {
	return "Create, restore, or list named snapshots of the shared state store"
}

func (t *Snapshot) InputSchema() *jsonschema.Schema {
	return tool.Simple(map[string]string{
		"action": "string",
		"name":   "string",
	}, "action")
}

func (t *Snapshot) Execute(_ context.Context, args map[string]any) (map[string]any, error) {
	action, ok := args["action"].(string)
	if !ok || action == "" {
		return tool.ErrorResult("InvalidParams", "action is required: create, restore, or list"), nil
	}

	name, _ := args["name"].(string)

	switch action {
	case "create":
		if name == "" {
			return tool.ErrorResult("InvalidParams", "name is required for create"), nil
		}

		if err := t.store.CreateSnapshot(name); err != nil {
			if errors.Is(err, state.ErrSnapshotExists) {
				return tool.ErrorResult("NameExists", "snapshot %q already exists", name), nil
			}

			return tool.ErrorResult("SnapshotFailed", "%v", err), nil
		}

		return map[string]any{"created": name}, nil

	case "restore":
		if name == "" {
			return tool.ErrorResult("InvalidParams", "name is required for restore"), nil
		}

		if err := t.store.RestoreSnapshot(name); err != nil {
			if errors.Is(err, state.ErrSnapshotNotFound) {
				return tool.ErrorResult("NotFound", "snapshot %q not found", name), nil
			}

			return tool.ErrorResult("SnapshotFailed", "%v", err), nil
		}

		return map[string]any{"restored": name}, nil

	case "list":
		infos := t.store.ListSnapshots()

		list := make([]any, 0, len(infos))
		for _, info := range infos {
			list = append(list, map[string]any{
				"name":       info.Name,
				"id":         info.ID,
				"created_at": info.CreatedAt,
				"entities":   info.Entities,
			})
		}

		return map[string]any{"snapshots": list, "count": len(list)}, nil

	default:
		return tool.ErrorResult("InvalidParams", "unknown action %q", action), nil
	}
}
