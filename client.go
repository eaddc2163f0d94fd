// Package escompat gives legacy callers document, search and index access to
// a current Elasticsearch cluster. Queries in the old filtered/and/or/not form
// are compiled to bool queries, reserved field names are renamed on the way in
// and out, and transient engine failures are retried.
package escompat

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/escompat/internal/domain/alias"
	"github.com/kailas-cloud/escompat/internal/domain/query"
	"github.com/kailas-cloud/escompat/internal/engine"
	"github.com/kailas-cloud/escompat/internal/engine/elastic"
	"github.com/kailas-cloud/escompat/internal/events"
	eventsRedis "github.com/kailas-cloud/escompat/internal/events/redis"
	"github.com/kailas-cloud/escompat/internal/mapping"
	"github.com/kailas-cloud/escompat/internal/retry"
	documentuc "github.com/kailas-cloud/escompat/internal/usecase/document"
	indexuc "github.com/kailas-cloud/escompat/internal/usecase/index"
)

// Client is the escompat SDK entry point. It is safe for concurrent use.
type Client struct {
	store    *elastic.Store
	sink     *eventsRedis.Sink
	compiler *query.Compiler
	docSvc   *documentuc.Service
	indexSvc *indexuc.Service
}

// New creates a Client and waits for the engine to answer.
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("escompat: engine address required (use WithAddresses)")
	}

	store, err := elastic.NewStore(elastic.Config{Addrs: cfg.addrs, Transport: cfg.transport})
	if err != nil {
		return nil, fmt.Errorf("escompat: create engine client: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, cfg.readinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("escompat: engine not ready: %w", err)
	}

	return wireClient(store, cfg)
}

func wireClient(store *elastic.Store, cfg *clientConfig) (*Client, error) {
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	kinds := make(map[string]alias.Table, len(cfg.aliases))
	for kind, t := range cfg.aliases {
		kinds[kind] = alias.Table(t)
	}
	codec, err := alias.New(kinds)
	if err != nil {
		return nil, fmt.Errorf("escompat: %w", err)
	}

	registry, err := mapping.Load(cfg.mappingDir)
	if err != nil {
		return nil, fmt.Errorf("escompat: load mappings: %w", err)
	}

	var sink events.Sink = events.NopSink{}
	var rs *eventsRedis.Sink
	if len(cfg.eventAddrs) > 0 {
		rs, err = eventsRedis.NewSink(eventsRedis.Config{
			Addrs:    cfg.eventAddrs,
			Password: cfg.eventPassword,
			Stream:   cfg.eventStream,
		})
		if err != nil {
			return nil, fmt.Errorf("escompat: create event sink: %w", err)
		}
		sink = rs
	}
	publisher := events.NewPublisher(sink, logger)

	compiler := query.NewCompiler(codec)
	exec := retry.NewExecutor(retry.Policy{MaxAttempts: cfg.maxRetries, Interval: cfg.retryInterval}, nil, logger)

	return &Client{
		store:    store,
		sink:     rs,
		compiler: compiler,
		docSvc: documentuc.New(store, compiler, codec, exec).
			WithEvents(publisher).
			WithMarkerField(cfg.markerField),
		indexSvc: indexuc.New(store, registry, compiler, codec, exec).
			WithEvents(publisher).
			WithSettings(cfg.indexSettings),
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.sink != nil {
		c.sink.Close()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks engine connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Compile returns the canonical JSON query the engine receives for q. typ
// selects per-type field renames and may be empty.
func (c *Client) Compile(q Query, typ string) ([]byte, error) {
	canonical, err := c.compiler.Compile(q, typ)
	if err != nil {
		return nil, err
	}
	return canonical.JSON()
}

// Type returns a handle for one record type of a logical index. routing may be
// empty.
func (c *Client) Type(index, typ, routing string) *TypeHandle {
	return &TypeHandle{
		target: documentuc.Target{Index: index, Type: typ, Routing: routing},
		svc:    c.docSvc,
	}
}

// Index returns a handle for a logical index whose types come from the
// mapping category (for example "ad" or "usr").
func (c *Client) Index(name, category string) *IndexHandle {
	return &IndexHandle{name: name, category: category, svc: c.indexSvc}
}

// PhysicalIndex returns the engine index holding records of typ.
func PhysicalIndex(index, typ string) string { return engine.IndexName(index, typ) }
