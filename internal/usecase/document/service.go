package document

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/escompat/internal/domain"
	"github.com/kailas-cloud/escompat/internal/domain/query"
	"github.com/kailas-cloud/escompat/internal/engine"
	"github.com/kailas-cloud/escompat/internal/events"
	"github.com/kailas-cloud/escompat/internal/logger"
	"github.com/kailas-cloud/escompat/internal/metrics"
	"github.com/kailas-cloud/escompat/internal/retry"
)

// Operation names reported in errors, metrics and events.
const (
	OpGet         = "Get"
	OpCreate      = "Create"
	OpUpdate      = "Update"
	OpDelete      = "Delete"
	OpSearch      = "Search"
	OpMultiSearch = "MultiSearch"
	OpGetMapping  = "GetMapping"
	OpPutMapping  = "PutMapping"
)

// TypeField is the stored marker naming the record kind.
const TypeField = "type"

// DefaultMarkerField is the update timestamp compared when confirming a create.
const DefaultMarkerField = "u"

// Target addresses one record kind of a logical index.
type Target struct {
	Index   string
	Type    string
	Routing string
}

// PhysicalIndex returns the engine index holding the target's records.
func (t Target) PhysicalIndex() string { return engine.IndexName(t.Index, t.Type) }

// Document is a stored record with its reserved keys decoded.
type Document struct {
	ID          string
	Version     int64
	SeqNo       int64
	PrimaryTerm int64
	Source      map[string]any
}

// WriteResult describes an accepted create or update.
type WriteResult struct {
	ID          string
	Version     int64
	SeqNo       int64
	PrimaryTerm int64
	Result      string
	// Recovered is true when a create was confirmed by re-reading after a conflict.
	Recovered bool
}

// DeleteResult describes a delete.
type DeleteResult struct {
	ID      string
	Version int64
	Found   bool
}

// Service provides get, write, search and mapping access to one record kind at a time.
type Service struct {
	eng         Engine
	compiler    QueryCompiler
	codec       FieldCodec
	exec        *retry.Executor
	events      EventEmitter
	markerField string
	refresh     string
	newID       func() string
}

// New creates a document service.
func New(eng Engine, compiler QueryCompiler, codec FieldCodec, exec *retry.Executor) *Service {
	return &Service{
		eng:         eng,
		compiler:    compiler,
		codec:       codec,
		exec:        exec,
		events:      events.NewPublisher(nil, nil),
		markerField: DefaultMarkerField,
		refresh:     "true",
		newID:       newID,
	}
}

// WithEvents sets the event emitter.
func (s *Service) WithEvents(e EventEmitter) *Service {
	if e != nil {
		s.events = e
	}
	return s
}

// WithMarkerField sets the field compared when confirming a create.
func (s *Service) WithMarkerField(field string) *Service {
	if field != "" {
		s.markerField = field
	}
	return s
}

// WithIDGenerator replaces the generator used by creates without an id.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	if gen != nil {
		s.newID = gen
	}
	return s
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Get reads a document. A missing document or index returns domain.ErrDocumentNotFound.
func (s *Service) Get(ctx context.Context, t Target, id string) (*Document, error) {
	return s.get(ctx, t, id, nil)
}

// GetIfVersion reads a document and fails with a version conflict unless its
// version equals version.
func (s *Service) GetIfVersion(ctx context.Context, t Target, id string, version int64) (*Document, error) {
	return s.get(ctx, t, id, &version)
}

func (s *Service) get(ctx context.Context, t Target, id string, version *int64) (*Document, error) {
	req := engine.GetRequest{Index: t.PhysicalIndex(), ID: id, Routing: t.Routing, Realtime: true, Version: version}
	doc, err := retry.Do(ctx, s.exec, retry.Op[*engine.Document]{
		Name: OpGet,
		Kind: retry.Read,
		Call: func(ctx context.Context) (*engine.Document, error) { return s.eng.Get(ctx, req) },
	})
	s.emit(ctx, events.AfterRequest, OpGet, t, id, nil)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("get %s/%s: %w", req.Index, id, domain.ErrDocumentNotFound)
	}
	return s.decode(doc, t.Type), nil
}

// Create writes a new document. An empty id is replaced by a generated one.
//
// A conflict can mean an earlier attempt was written but not acknowledged. The
// stored document is then re-read and the create succeeds if its marker field
// equals the attempted one.
func (s *Service) Create(ctx context.Context, t Target, id string, doc map[string]any) (*WriteResult, error) {
	if id == "" {
		id = s.newID()
	}
	source := s.encode(doc, t.Type)
	req := engine.IndexRequest{
		Index:   t.PhysicalIndex(),
		ID:      id,
		Routing: t.Routing,
		OpType:  engine.OpTypeCreate,
		Source:  source,
		Refresh: s.refresh,
	}

	res, err := retry.Do(ctx, s.exec, retry.Op[*WriteResult]{
		Name: OpCreate,
		Kind: retry.Write,
		Call: func(ctx context.Context) (*WriteResult, error) {
			r, err := s.eng.Index(ctx, req)
			if err != nil {
				return nil, err
			}
			return writeResult(r), nil
		},
		Recover: func(ctx context.Context, class domain.ErrorClass, cause error) (*WriteResult, bool, error) {
			if class != domain.ClassVersionConflict {
				return nil, false, nil
			}
			r, err := s.confirmCreate(ctx, req, t.Type, cause)
			return r, true, err
		},
	})
	s.emit(ctx, events.AfterCreate, OpCreate, t, id, source)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// confirmCreate re-reads the target of a conflicting create and accepts it when
// the stored marker equals the attempted one. Both sides are compared under the
// marker's stored name.
func (s *Service) confirmCreate(
	ctx context.Context, req engine.IndexRequest, kind string, cause error,
) (*WriteResult, error) {
	key := s.storedMarker(kind)
	want, ok := req.Source[key]
	if !ok {
		return nil, domain.NewError(domain.ClassVersionConflict, "confirm create",
			fmt.Errorf("no %q marker to compare: %w", s.markerField, cause))
	}

	stored, err := s.eng.Get(ctx, engine.GetRequest{Index: req.Index, ID: req.ID, Routing: req.Routing, Realtime: true})
	if err != nil {
		return nil, domain.NewError(domain.ClassVersionConflict, "confirm create",
			fmt.Errorf("re-read: %w (after %w)", err, cause))
	}
	if stored == nil || !sameJSON(stored.Source[key], want) {
		return nil, domain.NewError(domain.ClassVersionConflict, "confirm create", cause)
	}

	metrics.RecoveredCreatesTotal.Inc()
	logger.FromContext(ctx).Info("create confirmed after conflict",
		zap.String("index", req.Index),
		zap.String("id", req.ID),
	)
	return &WriteResult{
		ID:          stored.ID,
		Version:     stored.Version,
		SeqNo:       stored.SeqNo,
		PrimaryTerm: stored.PrimaryTerm,
		Result:      "created",
		Recovered:   true,
	}, nil
}

// storedMarker returns the engine-side name of the marker field for kind.
func (s *Service) storedMarker(kind string) string {
	for k := range s.codec.Encode(map[string]any{s.markerField: true}, kind) {
		return k
	}
	return s.markerField
}

// Update replaces a document, creating it when absent.
func (s *Service) Update(ctx context.Context, t Target, id string, doc map[string]any) (*WriteResult, error) {
	return s.update(ctx, t, id, doc, nil)
}

// UpdateIfVersion replaces a document only if its current version equals
// version. The check reads the document's sequence number and primary term at
// that version and makes the write conditional on them.
func (s *Service) UpdateIfVersion(
	ctx context.Context, t Target, id string, doc map[string]any, version int64,
) (*WriteResult, error) {
	return s.update(ctx, t, id, doc, &version)
}

func (s *Service) update(
	ctx context.Context, t Target, id string, doc map[string]any, version *int64,
) (*WriteResult, error) {
	source := s.encode(doc, t.Type)
	req := engine.IndexRequest{
		Index:   t.PhysicalIndex(),
		ID:      id,
		Routing: t.Routing,
		OpType:  engine.OpTypeIndex,
		Source:  source,
		Refresh: s.refresh,
	}
	if version != nil {
		seqNo, term, err := s.revision(ctx, t, id, *version, OpUpdate)
		if err != nil {
			return nil, err
		}
		req.IfSeqNo, req.IfPrimaryTerm = &seqNo, &term
	}

	res, err := retry.Do(ctx, s.exec, retry.Op[*WriteResult]{
		Name: OpUpdate,
		Kind: retry.Write,
		Call: func(ctx context.Context) (*WriteResult, error) {
			r, err := s.eng.Index(ctx, req)
			if err != nil {
				return nil, err
			}
			return writeResult(r), nil
		},
	})
	s.emit(ctx, events.AfterCreate, OpUpdate, t, id, source)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Delete removes a document. Found is false when there was nothing to remove.
func (s *Service) Delete(ctx context.Context, t Target, id string) (*DeleteResult, error) {
	return s.delete(ctx, t, id, nil)
}

// DeleteIfVersion removes a document only if its current version equals version.
func (s *Service) DeleteIfVersion(ctx context.Context, t Target, id string, version int64) (*DeleteResult, error) {
	return s.delete(ctx, t, id, &version)
}

func (s *Service) delete(ctx context.Context, t Target, id string, version *int64) (*DeleteResult, error) {
	req := engine.DeleteRequest{Index: t.PhysicalIndex(), ID: id, Routing: t.Routing, Refresh: s.refresh}
	if version != nil {
		seqNo, term, err := s.revision(ctx, t, id, *version, OpDelete)
		if err != nil {
			return nil, err
		}
		req.IfSeqNo, req.IfPrimaryTerm = &seqNo, &term
	}

	res, err := retry.Do(ctx, s.exec, retry.Op[*engine.DeleteResult]{
		Name: OpDelete,
		Kind: retry.Write,
		Call: func(ctx context.Context) (*engine.DeleteResult, error) { return s.eng.Delete(ctx, req) },
	})
	s.emit(ctx, events.AfterRequest, OpDelete, t, id, nil)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{ID: id, Version: res.Version, Found: res.Found}, nil
}

// revision reads the sequence number and primary term of a document at version.
func (s *Service) revision(ctx context.Context, t Target, id string, version int64, op string) (int64, int64, error) {
	req := engine.GetRequest{Index: t.PhysicalIndex(), ID: id, Routing: t.Routing, Realtime: true, Version: &version}
	doc, err := retry.Do(ctx, s.exec, retry.Op[*engine.Document]{
		Name: op,
		Kind: retry.Write,
		Call: func(ctx context.Context) (*engine.Document, error) { return s.eng.Get(ctx, req) },
	})
	if err != nil {
		return 0, 0, err
	}
	if doc == nil {
		return 0, 0, domain.NewError(domain.ClassVersionConflict, op,
			fmt.Errorf("%s/%s at version %d: %w", req.Index, id, version, domain.ErrDocumentNotFound))
	}
	return doc.SeqNo, doc.PrimaryTerm, nil
}

// Search compiles q and runs it against the target. A missing index yields an
// empty result.
func (s *Service) Search(ctx context.Context, t Target, q query.Node) (*engine.SearchResult, error) {
	body, err := s.compile(ctx, q, t.Type)
	if err != nil {
		return nil, err
	}
	req := engine.SearchRequest{Index: t.PhysicalIndex(), Routing: t.Routing, Body: body}

	res, err := retry.Do(ctx, s.exec, retry.Op[*engine.SearchResult]{
		Name:  OpSearch,
		Kind:  retry.Read,
		Call:  func(ctx context.Context) (*engine.SearchResult, error) { return s.eng.Search(ctx, req) },
		Empty: emptyResult,
	})
	s.emit(ctx, events.AfterRequest, OpSearch, t, "", q)
	if err != nil {
		return nil, err
	}
	s.decodeHits(res, t.Type)
	return res, nil
}

// MultiSearch compiles and runs several queries against the target in one round
// trip. Each item carries its own result or classified error.
func (s *Service) MultiSearch(ctx context.Context, t Target, qs []query.Node) ([]engine.MultiSearchItem, error) {
	if len(qs) == 0 {
		return nil, domain.NewError(domain.ClassMalformedQuery, OpMultiSearch, fmt.Errorf("no queries"))
	}
	reqs := make([]engine.SearchRequest, len(qs))
	for i, q := range qs {
		body, err := s.compile(ctx, q, t.Type)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		reqs[i] = engine.SearchRequest{Index: t.PhysicalIndex(), Routing: t.Routing, Body: body}
	}

	items, err := retry.Do(ctx, s.exec, retry.Op[[]engine.MultiSearchItem]{
		Name: OpMultiSearch,
		Kind: retry.Read,
		Call: func(ctx context.Context) ([]engine.MultiSearchItem, error) { return s.eng.MultiSearch(ctx, reqs) },
		Empty: func() []engine.MultiSearchItem {
			out := make([]engine.MultiSearchItem, len(reqs))
			for i := range out {
				out[i].Result = emptyResult()
			}
			return out
		},
	})
	s.emit(ctx, events.AfterRequest, OpMultiSearch, t, "", qs)
	if err != nil {
		return nil, err
	}
	return s.settleItems(items, t.Type), nil
}

// settleItems classifies per-query failures: a missing index becomes an empty
// result, anything else a domain error.
func (s *Service) settleItems(items []engine.MultiSearchItem, kind string) []engine.MultiSearchItem {
	for i := range items {
		if items[i].Err == nil {
			s.decodeHits(items[i].Result, kind)
			continue
		}
		class := s.exec.Classify(items[i].Err)
		if class == domain.ClassIndexMissing {
			items[i] = engine.MultiSearchItem{Result: emptyResult()}
			continue
		}
		items[i].Err = domain.NewError(class, OpMultiSearch, items[i].Err)
	}
	return items
}

// GetMapping returns the mapping body of the target's index.
func (s *Service) GetMapping(ctx context.Context, t Target) (map[string]any, error) {
	index := t.PhysicalIndex()
	res, err := retry.Do(ctx, s.exec, retry.Op[map[string]any]{
		Name: OpGetMapping,
		Kind: retry.Write,
		Call: func(ctx context.Context) (map[string]any, error) { return s.eng.GetMapping(ctx, index) },
	})
	if err != nil {
		return nil, err
	}
	m, ok := query.LookupNode(res, index, "mappings")
	if !ok {
		return nil, fmt.Errorf("mapping of %s: %w", index, domain.ErrNoMappings)
	}
	return m, nil
}

// PutMapping updates the mapping of the target's index.
func (s *Service) PutMapping(ctx context.Context, t Target, mapping map[string]any) error {
	body, err := json.Marshal(mapping)
	if err != nil {
		return domain.NewError(domain.ClassSchemaMismatch, OpPutMapping, err)
	}
	index := t.PhysicalIndex()
	_, err = retry.Do(ctx, s.exec, retry.Op[struct{}]{
		Name: OpPutMapping,
		Kind: retry.Write,
		Call: func(ctx context.Context) (struct{}, error) { return struct{}{}, s.eng.PutMapping(ctx, index, body) },
	})
	return err
}

func (s *Service) compile(ctx context.Context, q query.Node, kind string) ([]byte, error) {
	c, err := s.compiler.Compile(q, kind)
	if err != nil {
		return nil, err
	}
	body, err := c.JSON()
	if err != nil {
		return nil, domain.NewError(domain.ClassMalformedQuery, query.OpCompile, err)
	}
	logger.FromContext(ctx).Debug("compiled query", zap.String("type", kind), zap.ByteString("body", body))
	return body, nil
}

// encode renames reserved keys and adds the type marker when absent.
func (s *Service) encode(doc map[string]any, kind string) map[string]any {
	out := s.codec.Encode(doc, kind)
	if out == nil {
		out = map[string]any{}
	}
	if _, ok := out[TypeField]; !ok {
		out[TypeField] = kind
	}
	return out
}

func (s *Service) decode(doc *engine.Document, kind string) *Document {
	return &Document{
		ID:          doc.ID,
		Version:     doc.Version,
		SeqNo:       doc.SeqNo,
		PrimaryTerm: doc.PrimaryTerm,
		Source:      s.codec.Decode(doc.Source, kind),
	}
}

func (s *Service) decodeHits(res *engine.SearchResult, kind string) {
	if res == nil {
		return
	}
	for i := range res.Hits {
		res.Hits[i].Source = s.codec.Decode(res.Hits[i].Source, kind)
	}
}

func (s *Service) emit(ctx context.Context, kind events.Kind, op string, t Target, id string, data any) {
	s.events.Emit(ctx, events.Event{
		Kind:    kind,
		Op:      op,
		Index:   t.Index,
		Type:    t.Type,
		ID:      id,
		Routing: t.Routing,
		Data:    data,
	})
}

func writeResult(r *engine.IndexResult) *WriteResult {
	return &WriteResult{
		ID:          r.ID,
		Version:     r.Version,
		SeqNo:       r.SeqNo,
		PrimaryTerm: r.PrimaryTerm,
		Result:      r.Result,
	}
}

func emptyResult() *engine.SearchResult {
	return &engine.SearchResult{Hits: []engine.Hit{}}
}

// sameJSON compares two values by their JSON encoding, so 5 and 5.0 are equal.
func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}
