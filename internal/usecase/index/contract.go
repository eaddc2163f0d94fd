package index

import (
	"context"

	"github.com/kailas-cloud/escompat/internal/domain/query"
	"github.com/kailas-cloud/escompat/internal/engine"
	"github.com/kailas-cloud/escompat/internal/events"
)

// Engine is the subset of the search engine used for index-wide access.
type Engine interface {
	CreateIndex(ctx context.Context, name string, body []byte) error
	DeleteIndex(ctx context.Context, name string) error
	PutSettings(ctx context.Context, index string, body []byte) error
	Search(ctx context.Context, req engine.SearchRequest) (*engine.SearchResult, error)
	MultiSearch(ctx context.Context, reqs []engine.SearchRequest) ([]engine.MultiSearchItem, error)
	DeleteByQuery(ctx context.Context, req engine.SearchRequest) (int64, error)
}

// MappingRegistry lists the record types of a category and their mappings.
type MappingRegistry interface {
	Types(category string) ([]string, error)
	Mapping(category, typ string) (map[string]any, bool)
	Settings() map[string]any
}

// QueryCompiler turns legacy query input into its canonical form.
type QueryCompiler interface {
	Compile(input query.Node, ownerType string) (query.Canonical, error)
}

// FieldCodec decodes reserved keys of search hits.
type FieldCodec interface {
	Decode(doc map[string]any, kind string) map[string]any
}

// EventEmitter receives request events.
type EventEmitter interface {
	Emit(ctx context.Context, ev events.Event)
}
