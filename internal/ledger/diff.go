package ledger

import "reflect"

// Diff computes the field-level delta between two optional entity
// snapshots. The result shape depends on which snapshots are present:
//
//	both nil        -> {}
//	before nil      -> {"created": after}
//	after nil       -> {"deleted": before}
//	both present    -> {key: {"before": old, "after": new}} for every
//	                   top-level key whose value differs
//
// Only top-level keys are compared; nested structures are compared by
// deep equality, not merged.
func Diff(before, after map[string]any) map[string]any {
	switch {
	case before == nil && after == nil:
		return map[string]any{}
	case before == nil:
		return map[string]any{"created": after}
	case after == nil:
		return map[string]any{"deleted": before}
	}

	changes := map[string]any{}
	for k, old := range before {
		neu, ok := after[k]
		if !ok || !reflect.DeepEqual(old, neu) {
			changes[k] = map[string]any{"before": old, "after": neu}
		}
	}
	for k, neu := range after {
		if _, ok := before[k]; !ok {
			changes[k] = map[string]any{"before": nil, "after": neu}
		}
	}
	return changes
}
