package merge

import "sort"

// FromAny converts a native Go tree into a Value.
//
// map[string]any and map[string]string become mappings, []any and []string
// become sequences, Values are returned as-is and anything else is a Leaf.
// Go maps are unordered, so their keys are sorted.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Leaf{}
	case Value:
		return t
	case map[string]any:
		m := NewMapping()
		for _, k := range sortedKeys(t) {
			m.Set(k, FromAny(t[k]))
		}
		return m
	case map[string]string:
		m := NewMapping()
		for _, k := range sortedKeys(t) {
			m.Set(k, Leaf{V: t[k]})
		}
		return m
	case []any:
		seq := make(Sequence, len(t))
		for i, el := range t {
			seq[i] = FromAny(el)
		}
		return seq
	case []string:
		seq := make(Sequence, len(t))
		for i, el := range t {
			seq[i] = Leaf{V: el}
		}
		return seq
	default:
		return Leaf{V: v}
	}
}

// ToAny converts a Value back into map[string]any, []any or the raw leaf.
func ToAny(v Value) any {
	switch t := v.(type) {
	case Leaf:
		return t.V
	case Sequence:
		if t == nil {
			return nil
		}
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = ToAny(el)
		}
		return out
	case *Mapping:
		if t == nil {
			return nil
		}
		out := make(map[string]any, t.Len())
		for k, el := range t.All() {
			out[k] = ToAny(el)
		}
		return out
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
