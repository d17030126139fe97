package state

import "time"

// ActionResult reports the outcome of Apply.
type ActionResult struct {
	// Value is the entity value after the action; nil for delete.
	Value any

	// Deleted reports whether a delete action removed an existing entity.
	Deleted bool
}

// Apply performs one of the standard mutate actions against an entity.
//
// Semantics:
//   - set, create: overwrite with data, creating the entity if absent.
//   - update: shallow-merge data into the current value when both are
//     objects; replace otherwise; leave unchanged when data is nil.
//   - delete: remove the entity and report whether it existed.
//   - anything else: record the action on an audit object, preserving
//     existing fields.
func (s *Store) Apply(id, action string, data any) (ActionResult, error) {
	if action == "delete" {
		return ActionResult{Deleted: s.Delete(id)}, nil
	}

	value, err := s.Update(id, func(current any, exists bool) (any, error) {
		switch action {
		case "set", "create":
			return data, nil

		case "update":
			if data == nil {
				return current, nil
			}

			currentObj, currentIsObj := current.(map[string]any)

			dataObj, dataIsObj := data.(map[string]any)
			if !exists || !currentIsObj || !dataIsObj {
				return data, nil
			}

			for k, v := range dataObj {
				currentObj[k] = v
			}

			return currentObj, nil

		default:
			obj, ok := current.(map[string]any)
			if !ok {
				obj = make(map[string]any, 3)
			}

			obj["last_action"] = action
			obj["last_action_data"] = data
			obj["last_action_time"] = time.Now().UTC().Format(time.RFC3339)

			return obj, nil
		}
	})
	if err != nil {
		return ActionResult{}, err
	}

	return ActionResult{Value: value}, nil
}
