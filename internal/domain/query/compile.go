// Package query compiles the hybrid legacy query format into a single bool
// query accepted by current engine versions.
package query

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/escompat/internal/domain"
	"github.com/kailas-cloud/escompat/internal/domain/query/legacy"
)

// OpCompile names the compile step in classified errors.
const OpCompile = "compile query"

// passthroughKeys are copied to the output untouched when present.
var passthroughKeys = []string{"version", "size", "from", "sort"}

// deprecatedKeys are removed anywhere in the output tree.
var deprecatedKeys = []string{"ignore_unmapped", "_cache"}

// Renamer rewrites reserved field names of a query for a record kind.
type Renamer interface {
	EncodeQuery(q Node, kind string) Node
}

// Canonical is a compiled query. Its JSON form is deterministic.
type Canonical struct {
	body Node
}

// Body returns a copy of the compiled query tree.
func (c Canonical) Body() Node { return CloneNode(c.body) }

// JSON serializes the compiled query.
func (c Canonical) JSON() ([]byte, error) {
	b, err := json.Marshal(c.body)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical query: %w", err)
	}
	return b, nil
}

// MarshalJSON implements json.Marshaler.
func (c Canonical) MarshalJSON() ([]byte, error) { return c.JSON() }

// Compiler normalizes legacy queries. The zero value compiles without field renaming.
type Compiler struct {
	renamer Renamer
}

// NewCompiler creates a Compiler. renamer can be nil.
func NewCompiler(renamer Renamer) *Compiler {
	return &Compiler{renamer: renamer}
}

// boolBuilder accumulates clauses for one bool level.
type boolBuilder struct {
	must, mustNot, should []any
}

func (b *boolBuilder) empty() bool {
	return len(b.must) == 0 && len(b.mustNot) == 0 && len(b.should) == 0
}

// node emits the bool body: empty lists dropped, minimum_should_match set when
// should has to compete with other clauses. hasFilter counts as a competing clause.
func (b *boolBuilder) node(hasFilter bool) Node {
	out := Node{}
	if len(b.must) > 0 {
		out["must"] = b.must
	}
	if len(b.mustNot) > 0 {
		out["must_not"] = b.mustNot
	}
	if len(b.should) > 0 {
		out["should"] = b.should
		if len(b.must) > 0 || hasFilter {
			out["minimum_should_match"] = 1
		}
	}
	return out
}

// Compile normalizes input into a canonical bool query. ownerType selects the
// per-kind field renames and may be empty. input is never modified.
func (c *Compiler) Compile(input Node, ownerType string) (Canonical, error) {
	in := CloneNode(input)
	if in == nil {
		in = Node{}
	}
	if c != nil && c.renamer != nil {
		in = c.renamer.EncodeQuery(in, ownerType)
	}

	out := Node{}
	for _, k := range passthroughKeys {
		if v, ok := in[k]; ok && v != nil {
			out[k] = v
		}
	}
	if src, ok := in["_source"]; ok && src != nil {
		out["_source"] = compileSource(src)
	}

	var top, filter boolBuilder
	var hoisted []any

	if raw, ok := in["query"]; ok && raw != nil {
		q, ok := raw.(map[string]any)
		if !ok {
			return Canonical{}, malformed("query must be an object, got %T", raw)
		}
		mergeNative(q, &top, &filter)
		hoisted = append(hoisted, compileFiltered(q, &top, &filter)...)
		for _, k := range sortedKeys(q) {
			if k == "filtered" || k == "bool" || q[k] == nil {
				continue
			}
			top.must = append(top.must, Node{k: q[k]})
		}
	}

	if raw, ok := in["filter"]; ok && raw != nil {
		f, ok := raw.(map[string]any)
		if !ok {
			return Canonical{}, malformed("filter must be an object, got %T", raw)
		}
		if ids, ok := f["ids"]; ok && ids != nil {
			filter.must = append(filter.must, Node{"ids": ids})
		}
		delete(f, "ids")
		q, err := compileTopFilter(f, &filter)
		if err != nil {
			return Canonical{}, err
		}
		hoisted = append(hoisted, q...)
	}

	if len(hoisted) > 0 {
		top.must = append(top.must, Node{"bool": Node{"must": hoisted}})
	}

	boolNode := top.node(!filter.empty())
	if !filter.empty() {
		boolNode["filter"] = Node{"bool": filter.node(false)}
	}
	out["query"] = Node{"bool": boolNode}

	StripKeys(out, deprecatedKeys...)
	return Canonical{body: out}, nil
}

// compileSource prepends the type marker to a field list and wraps it as an
// includes/excludes pair. Other forms pass through.
func compileSource(src any) any {
	list, ok := src.([]any)
	if !ok {
		return src
	}
	includes := make([]any, 0, len(list)+1)
	includes = append(includes, "type")
	includes = append(includes, list...)
	return Node{"includes": includes, "excludes": []any{}}
}

// mergeNative folds an already canonical query.bool into the builders.
func mergeNative(q Node, top, filter *boolBuilder) {
	b, ok := q["bool"].(map[string]any)
	if !ok {
		return
	}
	top.must = append(top.must, asClauses(b["must"])...)
	top.mustNot = append(top.mustNot, asClauses(b["must_not"])...)
	top.should = append(top.should, asClauses(b["should"])...)

	switch f := b["filter"].(type) {
	case map[string]any:
		inner, ok := f["bool"].(map[string]any)
		if ok && len(f) == 1 {
			filter.must = append(filter.must, asClauses(inner["must"])...)
			filter.mustNot = append(filter.mustNot, asClauses(inner["must_not"])...)
			filter.should = append(filter.should, asClauses(inner["should"])...)
			return
		}
		filter.must = append(filter.must, f)
	case []any:
		filter.must = append(filter.must, asClauses(f)...)
	}
}

// compileFiltered reads query.filtered and returns embedded queries found in
// legacy filter members.
func compileFiltered(q Node, top, filter *boolBuilder) []any {
	var hoisted []any
	found := 0
	for _, occur := range []string{"must", "must_not", "should"} {
		v, ok := Lookup(q, "filtered", "filter", "bool", occur)
		if !ok {
			continue
		}
		clauses := asClauses(v)
		found += len(clauses)
		switch occur {
		case "must":
			filter.must = append(filter.must, clauses...)
		case "must_not":
			filter.mustNot = append(filter.mustNot, clauses...)
		case "should":
			filter.should = append(filter.should, clauses...)
		}
	}

	if found == 0 {
		if filters, ok := Lookup(q, "filtered", "filter", "and", "filters"); ok {
			for _, item := range asClauses(filters) {
				hoisted = append(hoisted, lowerInto(&filter.must, item)...)
			}
		} else if f, ok := LookupNode(q, "filtered", "filter"); ok {
			hoisted = append(hoisted, lowerInto(&filter.must, f)...)
		}
	}

	if fq, ok := Lookup(q, "filtered", "query"); ok {
		top.must = append(top.must, asClauses(fq)...)
	}
	return hoisted
}

// lowerInto translates a legacy filter member and appends the result to dst.
// Plain engine clauses come out unchanged.
func lowerInto(dst *[]any, item any) []any {
	m, ok := item.(map[string]any)
	if !ok {
		return nil
	}
	tree := legacy.Parse(m)
	clause, err := legacy.Lower(tree)
	if err == nil && len(clause) > 0 {
		*dst = append(*dst, clause)
	}
	return queriesOf(tree)
}

// compileTopFilter translates the top-level legacy filter.
func compileTopFilter(f Node, filter *boolBuilder) ([]any, error) {
	tree := legacy.Parse(f)
	clause, err := legacy.Lower(tree)
	if err != nil {
		return nil, domain.NewError(domain.ClassMalformedQuery, OpCompile, err)
	}
	if len(clause) > 0 {
		switch tree.(type) {
		case legacy.Not, legacy.Missing:
			if negated, ok := Lookup(clause, "bool", "must_not"); ok {
				filter.mustNot = append(filter.mustNot, asClauses(negated)...)
			}
		default:
			placeTranslated(clause, filter)
		}
	}
	return queriesOf(tree), nil
}

// placeTranslated puts a translated filter under filter.bool.must when it
// carries a must list, under should when it carries only a should list, and
// under must otherwise.
func placeTranslated(clause Node, filter *boolBuilder) {
	if _, ok := Lookup(clause, "bool", "must"); ok {
		filter.must = append(filter.must, clause)
		return
	}
	if _, ok := Lookup(clause, "bool", "should"); ok {
		filter.should = append(filter.should, clause)
		return
	}
	filter.must = append(filter.must, clause)
}

func queriesOf(tree legacy.Filter) []any {
	qs := legacy.Queries(tree)
	out := make([]any, 0, len(qs))
	for _, q := range qs {
		if len(q) > 0 {
			out = append(out, q)
		}
	}
	return out
}

func malformed(format string, args ...any) error {
	return domain.NewError(domain.ClassMalformedQuery, OpCompile, fmt.Errorf(format, args...))
}
