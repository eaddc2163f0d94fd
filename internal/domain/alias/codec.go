// Package alias renames reserved field names between the legacy document
// shape and the names the engine accepts.
package alias

import (
	"fmt"
	"maps"
	"slices"
)

// Table maps legacy field names to engine field names.
type Table map[string]string

// Base holds the renames applied to every record kind.
func Base() Table {
	return Table{
		"_type": "type",
		"_all":  "alldata",
	}
}

// Codec renames object keys at every depth. It is immutable after New and
// safe for concurrent use.
type Codec struct {
	encode map[string]Table // kind -> merged table; "" is the base table
	decode map[string]Table
}

// New builds a Codec from the base table plus per-kind extensions.
// Kind tables may add renames but may not chain or collide.
func New(kinds map[string]Table) (*Codec, error) {
	c := &Codec{
		encode: map[string]Table{},
		decode: map[string]Table{},
	}
	if err := c.add("", Base()); err != nil {
		return nil, err
	}
	for _, kind := range slices.Sorted(maps.Keys(kinds)) {
		if kind == "" {
			return nil, fmt.Errorf("alias: empty kind name")
		}
		merged := Base()
		for from, to := range kinds[kind] {
			if prev, ok := merged[from]; ok && prev != to {
				return nil, fmt.Errorf("alias: kind %q redefines %q", kind, from)
			}
			merged[from] = to
		}
		if err := c.add(kind, merged); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is New that panics on an invalid table.
func MustNew(kinds map[string]Table) *Codec {
	c, err := New(kinds)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Codec) add(kind string, t Table) error {
	inverse := make(Table, len(t))
	for from, to := range t {
		if from == "" || to == "" || from == to {
			return fmt.Errorf("alias: kind %q: invalid rename %q -> %q", kind, from, to)
		}
		if _, ok := t[to]; ok {
			return fmt.Errorf("alias: kind %q: %q is both a source and a target", kind, to)
		}
		if prev, ok := inverse[to]; ok {
			return fmt.Errorf("alias: kind %q: %q and %q both rename to %q", kind, prev, from, to)
		}
		inverse[to] = from
	}
	c.encode[kind] = t
	c.decode[kind] = inverse
	return nil
}

// Encode returns a copy of doc with legacy names replaced by engine names.
func (c *Codec) Encode(doc map[string]any, kind string) map[string]any {
	return renameNode(doc, c.table(c.encode, kind))
}

// Decode reverses Encode.
func (c *Codec) Decode(doc map[string]any, kind string) map[string]any {
	return renameNode(doc, c.table(c.decode, kind))
}

// EncodeQuery applies the Encode renames to a query tree.
func (c *Codec) EncodeQuery(q map[string]any, kind string) map[string]any {
	return c.Encode(q, kind)
}

func (c *Codec) table(tables map[string]Table, kind string) Table {
	if t, ok := tables[kind]; ok {
		return t
	}
	return tables[""]
}

func renameNode(m map[string]any, t Table) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, ok := t[k]; !ok {
			out[k] = renameValue(v, t)
		}
	}
	// Renamed keys overwrite colliding plain keys.
	for k, v := range m {
		if to, ok := t[k]; ok {
			out[to] = renameValue(v, t)
		}
	}
	return out
}

func renameValue(v any, t Table) any {
	switch x := v.(type) {
	case map[string]any:
		return renameNode(x, t)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = renameValue(e, t)
		}
		return out
	default:
		return v
	}
}
