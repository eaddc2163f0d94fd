// Package index manages logical indices: one engine index per record type,
// addressed together through a wildcard pattern.
package index

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/escompat/internal/domain"
	"github.com/kailas-cloud/escompat/internal/domain/query"
	"github.com/kailas-cloud/escompat/internal/engine"
	"github.com/kailas-cloud/escompat/internal/events"
	"github.com/kailas-cloud/escompat/internal/logger"
	"github.com/kailas-cloud/escompat/internal/retry"
)

// Operation names reported in errors, metrics and events.
const (
	OpCreate         = "CreateIndex"
	OpDelete         = "DeleteIndex"
	OpSearch         = "IndexSearch"
	OpMultiSearch    = "IndexMultiSearch"
	OpDeleteByQuery  = "DeleteByQuery"
	OpUpdateSettings = "UpdateSettings"
)

const typeField = "type"

// Service creates, deletes and queries logical indices.
type Service struct {
	eng      Engine
	registry MappingRegistry
	compiler QueryCompiler
	codec    FieldCodec
	exec     *retry.Executor
	events   EventEmitter
	settings map[string]any
	parallel int
}

// New creates an index service.
func New(eng Engine, registry MappingRegistry, compiler QueryCompiler, codec FieldCodec, exec *retry.Executor) *Service {
	return &Service{
		eng:      eng,
		registry: registry,
		compiler: compiler,
		codec:    codec,
		exec:     exec,
		events:   events.NewPublisher(nil, nil),
		parallel: 4,
	}
}

// WithEvents sets the event emitter.
func (s *Service) WithEvents(e EventEmitter) *Service {
	if e != nil {
		s.events = e
	}
	return s
}

// WithSettings overrides keys of the registry's base index settings.
func (s *Service) WithSettings(overrides map[string]any) *Service {
	s.settings = overrides
	return s
}

// WithParallelism bounds concurrent index creation.
func (s *Service) WithParallelism(n int) *Service {
	if n > 0 {
		s.parallel = n
	}
	return s
}

// Create creates one engine index per type registered for category.
func (s *Service) Create(ctx context.Context, name, category string) error {
	types, err := s.registry.Types(category)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if len(types) == 0 {
		return fmt.Errorf("create %s: category %q: %w", name, category, domain.ErrNoMappings)
	}

	settings := s.registry.Settings()
	for k, v := range s.settings {
		settings[k] = v
	}

	s.emit(ctx, events.CreatingIndex, OpCreate, name, "", map[string]any{"category": category})
	log := logger.FromContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for _, typ := range types {
		mapping, _ := s.registry.Mapping(category, typ)
		body, err := json.Marshal(map[string]any{"settings": settings, "mappings": mapping})
		if err != nil {
			return domain.NewError(domain.ClassSchemaMismatch, OpCreate, fmt.Errorf("encode %s: %w", typ, err))
		}
		index := engine.IndexName(name, typ)
		g.Go(func() error {
			_, err := retry.Do(gctx, s.exec, retry.Op[struct{}]{
				Name: OpCreate,
				Kind: retry.Write,
				Call: func(ctx context.Context) (struct{}, error) { return struct{}{}, s.eng.CreateIndex(ctx, index, body) },
			})
			if err != nil {
				return fmt.Errorf("index %s: %w", index, err)
			}
			log.Debug("index created", zap.String("index", index))
			return nil
		})
	}
	return g.Wait()
}

// Delete deletes every engine index of the logical index.
func (s *Service) Delete(ctx context.Context, name string) error {
	pattern := engine.IndexPattern(name)
	_, err := retry.Do(ctx, s.exec, retry.Op[struct{}]{
		Name: OpDelete,
		Kind: retry.Write,
		Call: func(ctx context.Context) (struct{}, error) { return struct{}{}, s.eng.DeleteIndex(ctx, pattern) },
	})
	return err
}

// UpdateSettings applies dynamic settings to every engine index of the logical index.
func (s *Service) UpdateSettings(ctx context.Context, name string, settings map[string]any) error {
	body, err := json.Marshal(settings)
	if err != nil {
		return domain.NewError(domain.ClassSchemaMismatch, OpUpdateSettings, err)
	}
	pattern := engine.IndexPattern(name)
	_, err = retry.Do(ctx, s.exec, retry.Op[struct{}]{
		Name: OpUpdateSettings,
		Kind: retry.Write,
		Call: func(ctx context.Context) (struct{}, error) { return struct{}{}, s.eng.PutSettings(ctx, pattern, body) },
	})
	return err
}

// Search runs q across every type of the logical index.
func (s *Service) Search(ctx context.Context, name, routing string, q query.Node) (*engine.SearchResult, error) {
	body, err := s.compile(q)
	if err != nil {
		return nil, err
	}
	res, err := s.search(ctx, OpSearch, engine.SearchRequest{Index: engine.IndexPattern(name), Routing: routing, Body: body})
	s.emit(ctx, events.AfterRequest, OpSearch, name, routing, q)
	if err != nil {
		return nil, err
	}
	s.decodeHits(res)
	return res, nil
}

// MultiSearch runs several queries across the logical index in one round trip.
func (s *Service) MultiSearch(ctx context.Context, name, routing string, qs []query.Node) ([]engine.MultiSearchItem, error) {
	if len(qs) == 0 {
		return nil, domain.NewError(domain.ClassMalformedQuery, OpMultiSearch, fmt.Errorf("no queries"))
	}
	pattern := engine.IndexPattern(name)
	reqs := make([]engine.SearchRequest, len(qs))
	for i, q := range qs {
		body, err := s.compile(q)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		reqs[i] = engine.SearchRequest{Index: pattern, Routing: routing, Body: body}
	}

	items, err := retry.Do(ctx, s.exec, retry.Op[[]engine.MultiSearchItem]{
		Name: OpMultiSearch,
		Kind: retry.Read,
		Call: func(ctx context.Context) ([]engine.MultiSearchItem, error) { return s.eng.MultiSearch(ctx, reqs) },
		Empty: func() []engine.MultiSearchItem {
			out := make([]engine.MultiSearchItem, len(reqs))
			for i := range out {
				out[i].Result = &engine.SearchResult{Hits: []engine.Hit{}}
			}
			return out
		},
	})
	s.emit(ctx, events.AfterRequest, OpMultiSearch, name, routing, qs)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Err != nil {
			items[i].Err = domain.NewError(s.exec.Classify(items[i].Err), OpMultiSearch, items[i].Err)
			continue
		}
		s.decodeHits(items[i].Result)
	}
	return items, nil
}

// DeleteByQuery removes every document matching q, then searches again and
// fails with *domain.DeleteByQueryError if any match remains.
func (s *Service) DeleteByQuery(ctx context.Context, name, routing string, q query.Node) error {
	body, err := s.compile(q)
	if err != nil {
		return err
	}
	req := engine.SearchRequest{Index: engine.IndexPattern(name), Routing: routing, Body: body}

	deleted, err := retry.Do(ctx, s.exec, retry.Op[int64]{
		Name: OpDeleteByQuery,
		Kind: retry.Write,
		Call: func(ctx context.Context) (int64, error) { return s.eng.DeleteByQuery(ctx, req) },
	})
	s.emit(ctx, events.AfterRequest, OpDeleteByQuery, name, routing, q)
	if err != nil {
		return err
	}

	res, err := s.search(ctx, OpDeleteByQuery, req)
	if err != nil {
		return fmt.Errorf("verify delete by query: %w", err)
	}
	if res.Total > 0 {
		return fmt.Errorf("%s %s: %w", OpDeleteByQuery, req.Index, &domain.DeleteByQueryError{Remaining: res.Total})
	}
	logger.FromContext(ctx).Debug("delete by query done",
		zap.String("index", req.Index),
		zap.Int64("deleted", deleted),
	)
	return nil
}

func (s *Service) search(ctx context.Context, op string, req engine.SearchRequest) (*engine.SearchResult, error) {
	return retry.Do(ctx, s.exec, retry.Op[*engine.SearchResult]{
		Name:  op,
		Kind:  retry.Read,
		Call:  func(ctx context.Context) (*engine.SearchResult, error) { return s.eng.Search(ctx, req) },
		Empty: func() *engine.SearchResult { return &engine.SearchResult{Hits: []engine.Hit{}} },
	})
}

func (s *Service) compile(q query.Node) ([]byte, error) {
	c, err := s.compiler.Compile(q, "")
	if err != nil {
		return nil, err
	}
	body, err := c.JSON()
	if err != nil {
		return nil, domain.NewError(domain.ClassMalformedQuery, query.OpCompile, err)
	}
	return body, nil
}

// decodeHits decodes each hit with the kind named by its stored type marker.
func (s *Service) decodeHits(res *engine.SearchResult) {
	if res == nil {
		return
	}
	for i := range res.Hits {
		kind, _ := res.Hits[i].Source[typeField].(string)
		res.Hits[i].Source = s.codec.Decode(res.Hits[i].Source, kind)
	}
}

func (s *Service) emit(ctx context.Context, kind events.Kind, op, index, routing string, data any) {
	s.events.Emit(ctx, events.Event{Kind: kind, Op: op, Index: index, Routing: routing, Data: data})
}
