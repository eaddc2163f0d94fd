package query

import (
	"maps"
	"slices"
)

// Node is a decoded JSON object as produced by encoding/json.
type Node = map[string]any

// Clone deep-copies maps and slices. Scalars are returned as is.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneNode(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneNode(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	default:
		return v
	}
}

// CloneNode deep-copies an object. A nil node yields nil.
func CloneNode(n Node) Node {
	if n == nil {
		return nil
	}
	out := make(Node, len(n))
	for k, v := range n {
		out[k] = Clone(v)
	}
	return out
}

// Lookup follows path through nested objects.
// It reports false when a hop is missing or is not an object.
func Lookup(n Node, path ...string) (any, bool) {
	var cur any = n
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// LookupNode is Lookup restricted to object values.
func LookupNode(n Node, path ...string) (Node, bool) {
	v, ok := Lookup(n, path...)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// StripKeys deletes every occurrence of keys anywhere in the tree.
// Values of deleted keys are not visited.
func StripKeys(v any, keys ...string) {
	switch t := v.(type) {
	case map[string]any:
		for _, k := range keys {
			delete(t, k)
		}
		for _, child := range t {
			StripKeys(child, keys...)
		}
	case []any:
		for _, child := range t {
			StripKeys(child, keys...)
		}
	}
}

// asClauses normalizes an object or array of objects into a clause list.
func asClauses(v any) []any {
	switch t := v.(type) {
	case map[string]any:
		return []any{t}
	case []any:
		out := make([]any, 0, len(t))
		for _, e := range t {
			if e != nil {
				out = append(out, e)
			}
		}
		return out
	default:
		return nil
	}
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
