package document

import (
	"context"

	"github.com/kailas-cloud/escompat/internal/domain/query"
	"github.com/kailas-cloud/escompat/internal/engine"
	"github.com/kailas-cloud/escompat/internal/events"
)

// Engine is the subset of the search engine used for single-type access.
type Engine interface {
	engine.Documents
	Search(ctx context.Context, req engine.SearchRequest) (*engine.SearchResult, error)
	MultiSearch(ctx context.Context, reqs []engine.SearchRequest) ([]engine.MultiSearchItem, error)
	GetMapping(ctx context.Context, index string) (map[string]any, error)
	PutMapping(ctx context.Context, index string, body []byte) error
}

// QueryCompiler turns legacy query input into its canonical form.
type QueryCompiler interface {
	Compile(input query.Node, ownerType string) (query.Canonical, error)
}

// FieldCodec renames reserved document keys on the way in and out.
type FieldCodec interface {
	Encode(doc map[string]any, kind string) map[string]any
	Decode(doc map[string]any, kind string) map[string]any
}

// EventEmitter receives request events.
type EventEmitter interface {
	Emit(ctx context.Context, ev events.Event)
}
