package engine

import (
	"context"
	"time"
)

// Engine is the search engine facade combining all sub-interfaces.
//
//nolint:interfacebloat // services depend on the narrow sub-interfaces
type Engine interface {
	Pinger
	Documents
	Searcher
	Indices
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks engine connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Documents provides single-document operations.
type Documents interface {
	Get(ctx context.Context, req GetRequest) (*Document, error)
	Index(ctx context.Context, req IndexRequest) (*IndexResult, error)
	Delete(ctx context.Context, req DeleteRequest) (*DeleteResult, error)
}

// Searcher runs compiled queries.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	MultiSearch(ctx context.Context, reqs []SearchRequest) ([]MultiSearchItem, error)
	DeleteByQuery(ctx context.Context, req SearchRequest) (int64, error)
}

// Indices provides index lifecycle and mapping operations.
type Indices interface {
	CreateIndex(ctx context.Context, name string, body []byte) error
	DeleteIndex(ctx context.Context, name string) error
	PutMapping(ctx context.Context, index string, body []byte) error
	GetMapping(ctx context.Context, index string) (map[string]any, error)
	PutSettings(ctx context.Context, index string, body []byte) error
	Refresh(ctx context.Context, index string) error
}

// OpType selects the write semantics of an index request.
type OpType string

const (
	// OpTypeIndex creates or replaces the document.
	OpTypeIndex OpType = "index"
	// OpTypeCreate fails if the document already exists.
	OpTypeCreate OpType = "create"
)

// GetRequest reads one document by id.
type GetRequest struct {
	Index    string
	ID       string
	Routing  string
	Realtime bool
	// Version, when set, fails the read with a version conflict unless it matches.
	Version *int64
}

// Document is a stored document with its concurrency metadata.
type Document struct {
	Index       string
	ID          string
	Version     int64
	SeqNo       int64
	PrimaryTerm int64
	Source      map[string]any
}

// IndexRequest writes a full document.
type IndexRequest struct {
	Index   string
	ID      string
	Routing string
	OpType  OpType
	Source  map[string]any
	// IfSeqNo and IfPrimaryTerm make the write conditional on the current revision.
	IfSeqNo       *int64
	IfPrimaryTerm *int64
	Refresh       string
}

// IndexResult describes an accepted write.
type IndexResult struct {
	Index       string
	ID          string
	Version     int64
	SeqNo       int64
	PrimaryTerm int64
	Result      string
}

// DeleteRequest removes one document.
type DeleteRequest struct {
	Index   string
	ID      string
	Routing string
	// IfSeqNo and IfPrimaryTerm make the delete conditional on the current revision.
	IfSeqNo       *int64
	IfPrimaryTerm *int64
	Refresh       string
}

// DeleteResult describes a delete. Found is false when nothing was removed.
type DeleteResult struct {
	Index   string
	ID      string
	Version int64
	Found   bool
}

// SearchRequest runs a compiled query body against an index or pattern.
type SearchRequest struct {
	Index   string
	Routing string
	Body    []byte
}

// Hit is one search hit.
type Hit struct {
	Index   string
	ID      string
	Score   float64
	Version int64
	Source  map[string]any
	Sort    []any
}

// SearchResult is a search response. The zero value is the empty result.
type SearchResult struct {
	Took     int64
	TimedOut bool
	Total    int64
	MaxScore float64
	Hits     []Hit
}

// MultiSearchItem holds one response of a multi-search. Err is set when that
// query failed on its own.
type MultiSearchItem struct {
	Result *SearchResult
	Err    error
}
