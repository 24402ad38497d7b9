package payload

// DefaultMaxDepth bounds envelope probing; the root value sits at depth 0.
const DefaultMaxDepth = 4

// PriorityKeys are probed, in order, before any other key of an object.
var PriorityKeys = []string{"data", "orders", "items", "list", "results"}

var priorityIndex = func() map[string]struct{} {
	m := make(map[string]struct{}, len(PriorityKeys))
	for _, k := range PriorityKeys {
		m[k] = struct{}{}
	}
	return m
}()

// FindArray locates the record array inside an arbitrarily nested envelope.
//
// An array input is returned as is. For objects the priority keys are tried
// first and, only when none of them yields an array, the remaining keys in
// document order. A present priority key holding an empty array wins.
// found is false when no array exists within maxDepth levels; callers treat
// that as an empty result, not a fault.
func FindArray(v Value, maxDepth int) (items []Value, found bool) {
	if maxDepth < 0 {
		maxDepth = 0
	}
	return findArray(v, 0, maxDepth)
}

// FindArrayDefault is FindArray with DefaultMaxDepth.
func FindArrayDefault(v Value) ([]Value, bool) {
	return FindArray(v, DefaultMaxDepth)
}

// Records returns the objects of the located array, skipping scalars.
func Records(v Value) []Value {
	items, _ := FindArrayDefault(v)
	out := make([]Value, 0, len(items))
	for _, it := range items {
		if it.IsObject() {
			out = append(out, it)
		}
	}
	return out
}

func findArray(v Value, depth, maxDepth int) ([]Value, bool) {
	if depth > maxDepth {
		return nil, false
	}
	switch v.kind {
	case KindArray:
		return v.arr, true
	case KindObject:
		if v.obj == nil {
			return nil, false
		}
		for _, key := range PriorityKeys {
			child, ok := v.obj.fields[key]
			if !ok {
				continue
			}
			if items, found := findArray(child, depth+1, maxDepth); found {
				return items, true
			}
		}
		for _, key := range v.obj.keys {
			if _, isPriority := priorityIndex[key]; isPriority {
				continue
			}
			if items, found := findArray(v.obj.fields[key], depth+1, maxDepth); found {
				return items, true
			}
		}
	}
	return nil, false
}
