package chi

import (
	"context"

	"github.com/kailas-cloud/escompat/internal/domain/query"
	"github.com/kailas-cloud/escompat/internal/engine"
	documentuc "github.com/kailas-cloud/escompat/internal/usecase/document"
	healthuc "github.com/kailas-cloud/escompat/internal/usecase/health"
)

// DocumentService serves single-type document access.
type DocumentService interface {
	Get(ctx context.Context, t documentuc.Target, id string) (*documentuc.Document, error)
	GetIfVersion(ctx context.Context, t documentuc.Target, id string, version int64) (*documentuc.Document, error)
	Create(ctx context.Context, t documentuc.Target, id string, doc map[string]any) (*documentuc.WriteResult, error)
	Update(ctx context.Context, t documentuc.Target, id string, doc map[string]any) (*documentuc.WriteResult, error)
	UpdateIfVersion(
		ctx context.Context, t documentuc.Target, id string, doc map[string]any, version int64,
	) (*documentuc.WriteResult, error)
	Delete(ctx context.Context, t documentuc.Target, id string) (*documentuc.DeleteResult, error)
	DeleteIfVersion(ctx context.Context, t documentuc.Target, id string, version int64) (*documentuc.DeleteResult, error)
	Search(ctx context.Context, t documentuc.Target, q query.Node) (*engine.SearchResult, error)
	MultiSearch(ctx context.Context, t documentuc.Target, qs []query.Node) ([]engine.MultiSearchItem, error)
	GetMapping(ctx context.Context, t documentuc.Target) (map[string]any, error)
	PutMapping(ctx context.Context, t documentuc.Target, mapping map[string]any) error
}

// IndexService serves logical index lifecycle and index-wide queries.
type IndexService interface {
	Create(ctx context.Context, name, category string) error
	Delete(ctx context.Context, name string) error
	UpdateSettings(ctx context.Context, name string, settings map[string]any) error
	Search(ctx context.Context, name, routing string, q query.Node) (*engine.SearchResult, error)
	MultiSearch(ctx context.Context, name, routing string, qs []query.Node) ([]engine.MultiSearchItem, error)
	DeleteByQuery(ctx context.Context, name, routing string, q query.Node) error
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// QueryCompiler compiles legacy queries for the compile endpoint.
type QueryCompiler interface {
	Compile(input query.Node, ownerType string) (query.Canonical, error)
}
