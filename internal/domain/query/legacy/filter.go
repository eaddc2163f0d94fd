// Package legacy models the pre-bool filter grammar (and, or, not, missing,
// ids and embedded queries) and lowers it onto bool clauses.
package legacy

import (
	"fmt"
	"maps"
	"slices"
)

// Filter is one node of the legacy filter grammar.
type Filter interface {
	filterNode()
}

// Match is a leaf clause the engine understands natively (term, range, exists, ...).
// Queries holds embedded queries lifted out of the clause.
type Match struct {
	Clause  map[string]any
	Queries []map[string]any
}

// Ids restricts hits to the given document ids.
type Ids struct {
	Values any
}

// And requires every child to match.
type And struct {
	Filters []Filter
}

// Or requires at least one child to match.
type Or struct {
	Filters []Filter
}

// Not excludes documents matching any child.
type Not struct {
	Filters []Filter
}

// Missing matches documents without a value for Field.
type Missing struct {
	Field any
}

// RawQuery is a scoring query embedded in a filter. It is hoisted out of the
// filter tree because bool filter context cannot carry it.
type RawQuery struct {
	Query map[string]any
}

func (Match) filterNode()    {}
func (Ids) filterNode()      {}
func (And) filterNode()      {}
func (Or) filterNode()       {}
func (Not) filterNode()      {}
func (Missing) filterNode()  {}
func (RawQuery) filterNode() {}

// Parse builds a filter tree from a decoded JSON object.
// Combinators are checked in the order and, or, not, missing; remaining keys of
// the same object are ignored. An empty object yields nil.
// Parse may rewrite embedded queries in place; pass a private copy.
func Parse(m map[string]any) Filter {
	if len(m) == 0 {
		return nil
	}
	if v, ok := m["and"]; ok && v != nil {
		return And{Filters: parseMembers(v)}
	}
	if v, ok := m["or"]; ok && v != nil {
		return Or{Filters: parseMembers(v)}
	}
	if v, ok := m["not"]; ok && v != nil {
		return Not{Filters: parseMembers(v)}
	}
	if v, ok := m["missing"]; ok && v != nil {
		return Missing{Field: v}
	}
	if q, ok := m["query"].(map[string]any); ok {
		return RawQuery{Query: rewriteTypedMatch(q)}
	}
	if fq, ok := m["fquery"].(map[string]any); ok {
		if q, ok := fq["query"].(map[string]any); ok {
			return RawQuery{Query: rewriteTypedMatch(q)}
		}
	}
	if v, ok := m["ids"]; ok && len(m) == 1 {
		return Ids{Values: v}
	}
	lifted := liftQueries(m)
	return Match{Clause: m, Queries: lifted}
}

// ownQuery names clauses whose "query" member is part of the clause itself.
var ownQuery = map[string]bool{
	"nested":         true,
	"has_child":      true,
	"has_parent":     true,
	"function_score": true,
	"script_score":   true,
	"boosting":       true,
	"constant_score": true,
}

// liftQueries removes "query" objects nested anywhere in a leaf clause and
// returns them in sorted key order. Objects and lists left empty by the removal
// are dropped as well.
func liftQueries(m map[string]any) []map[string]any {
	var out []map[string]any
	liftFrom(m, &out)
	return out
}

// liftFrom reports whether m lost members.
func liftFrom(m map[string]any, out *[]map[string]any) bool {
	changed := false
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if ownQuery[k] {
			continue
		}
		switch v := m[k].(type) {
		case map[string]any:
			if k == "query" {
				*out = append(*out, rewriteTypedMatch(v))
				delete(m, k)
				changed = true
				continue
			}
			if liftFrom(v, out) {
				changed = true
				if len(v) == 0 {
					delete(m, k)
				}
			}
		case []any:
			kept, lost := liftList(v, out)
			if !lost {
				continue
			}
			changed = true
			if len(kept) == 0 {
				delete(m, k)
			} else {
				m[k] = kept
			}
		}
	}
	return changed
}

func liftList(l []any, out *[]map[string]any) ([]any, bool) {
	kept := make([]any, 0, len(l))
	lost := false
	for _, e := range l {
		if m, ok := e.(map[string]any); ok && liftFrom(m, out) {
			lost = true
			if len(m) == 0 {
				continue
			}
		}
		kept = append(kept, e)
	}
	return kept, lost
}

// parseMembers reads the operand of a combinator: an array of filters, or an
// object holding them under "filters" or "filter", or a single filter object.
func parseMembers(v any) []Filter {
	switch t := v.(type) {
	case []any:
		out := make([]Filter, 0, len(t))
		for _, e := range t {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			if f := Parse(m); f != nil {
				out = append(out, f)
			}
		}
		return out
	case map[string]any:
		if inner, ok := t["filters"]; ok && inner != nil {
			return parseMembers(inner)
		}
		if inner, ok := t["filter"]; ok && inner != nil {
			return parseMembers(inner)
		}
		if f := Parse(t); f != nil {
			return []Filter{f}
		}
	}
	return nil
}

// Queries collects embedded queries depth first, in document order.
func Queries(f Filter) []map[string]any {
	var out []map[string]any
	walk(f, func(n Filter) {
		switch t := n.(type) {
		case RawQuery:
			out = append(out, t.Query)
		case Match:
			out = append(out, t.Queries...)
		}
	})
	return out
}

func walk(f Filter, visit func(Filter)) {
	if f == nil {
		return
	}
	visit(f)
	var children []Filter
	switch t := f.(type) {
	case And:
		children = t.Filters
	case Or:
		children = t.Filters
	case Not:
		children = t.Filters
	}
	for _, c := range children {
		walk(c, visit)
	}
}

// Lower translates f into a bool-compatible clause. Embedded queries lower to
// nothing, as do combinators left without children.
func Lower(f Filter) (map[string]any, error) {
	switch t := f.(type) {
	case nil:
		return nil, nil
	case Match:
		if len(t.Clause) == 0 {
			return nil, nil
		}
		return t.Clause, nil
	case Ids:
		return map[string]any{"ids": t.Values}, nil
	case And:
		return lowerGroup("must", t.Filters)
	case Or:
		return lowerGroup("should", t.Filters)
	case Not:
		return lowerGroup("must_not", t.Filters)
	case Missing:
		return boolClause("must_not", []any{map[string]any{"exists": existsBody(t.Field)}}), nil
	case RawQuery:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported filter type: %T", f)
	}
}

func lowerGroup(occur string, filters []Filter) (map[string]any, error) {
	clauses := make([]any, 0, len(filters))
	for _, child := range filters {
		c, err := Lower(child)
		if err != nil {
			return nil, err
		}
		if len(c) > 0 {
			clauses = append(clauses, c)
		}
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	return boolClause(occur, clauses), nil
}

func boolClause(occur string, clauses []any) map[string]any {
	return map[string]any{"bool": map[string]any{occur: clauses}}
}

// existsBody accepts both the bare field form ("missing": "f") and the object
// form ("missing": {"field": "f", ...}).
func existsBody(v any) any {
	switch t := v.(type) {
	case string:
		return map[string]any{"field": t}
	case map[string]any:
		if field, ok := t["field"]; ok {
			return map[string]any{"field": field}
		}
		return t
	default:
		return v
	}
}

// rewriteTypedMatch turns {"match": {f: {"type": "phrase", ...}}} into
// {"match_phrase": {f: {...}}}, dropping the type and operator options.
func rewriteTypedMatch(q map[string]any) map[string]any {
	match, ok := q["match"].(map[string]any)
	if !ok {
		return q
	}
	typ, ok := findString(match, "type")
	if !ok || typ == "" || typ == "boolean" {
		return q
	}
	stripKeys(match, "type", "operator")
	delete(q, "match")
	q["match_"+typ] = match
	return q
}

func findString(m map[string]any, key string) (string, bool) {
	if s, ok := m[key].(string); ok {
		return s, true
	}
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if child, ok := m[k].(map[string]any); ok {
			if s, ok := findString(child, key); ok {
				return s, true
			}
		}
	}
	return "", false
}

func stripKeys(m map[string]any, keys ...string) {
	for _, k := range keys {
		delete(m, k)
	}
	for _, v := range m {
		if child, ok := v.(map[string]any); ok {
			stripKeys(child, keys...)
		}
	}
}
