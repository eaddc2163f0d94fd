package index

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/escompat/internal/domain"
	"github.com/kailas-cloud/escompat/internal/domain/alias"
	"github.com/kailas-cloud/escompat/internal/domain/query"
	"github.com/kailas-cloud/escompat/internal/engine"
	"github.com/kailas-cloud/escompat/internal/events"
	"github.com/kailas-cloud/escompat/internal/retry"
)

// --- Mocks ---

type mockEngine struct {
	mu sync.Mutex

	createIndexFn   func(string, []byte) error
	searchFn        func(engine.SearchRequest) (*engine.SearchResult, error)
	multiSearchFn   func([]engine.SearchRequest) ([]engine.MultiSearchItem, error)
	deleteByQueryFn func(engine.SearchRequest) (int64, error)
	deleteIndexErr  error
	putSettingsErr  error

	created  map[string][]byte
	deleted  []string
	settings map[string][]byte
	searches []engine.SearchRequest
	dbq      []engine.SearchRequest
}

func (m *mockEngine) CreateIndex(_ context.Context, name string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created == nil {
		m.created = map[string][]byte{}
	}
	if m.createIndexFn != nil {
		if err := m.createIndexFn(name, body); err != nil {
			return err
		}
	}
	m.created[name] = body
	return nil
}

func (m *mockEngine) DeleteIndex(_ context.Context, name string) error {
	m.deleted = append(m.deleted, name)
	return m.deleteIndexErr
}

func (m *mockEngine) PutSettings(_ context.Context, index string, body []byte) error {
	if m.settings == nil {
		m.settings = map[string][]byte{}
	}
	m.settings[index] = body
	return m.putSettingsErr
}

func (m *mockEngine) Search(_ context.Context, req engine.SearchRequest) (*engine.SearchResult, error) {
	m.searches = append(m.searches, req)
	if m.searchFn == nil {
		return &engine.SearchResult{Hits: []engine.Hit{}}, nil
	}
	return m.searchFn(req)
}

func (m *mockEngine) MultiSearch(_ context.Context, reqs []engine.SearchRequest) ([]engine.MultiSearchItem, error) {
	return m.multiSearchFn(reqs)
}

func (m *mockEngine) DeleteByQuery(_ context.Context, req engine.SearchRequest) (int64, error) {
	m.dbq = append(m.dbq, req)
	if m.deleteByQueryFn == nil {
		return 0, nil
	}
	return m.deleteByQueryFn(req)
}

type mockRegistry struct {
	types    map[string]map[string]map[string]any
	settings map[string]any
}

func (r *mockRegistry) Types(category string) ([]string, error) {
	types, ok := r.types[category]
	if !ok {
		return nil, domain.ErrNoMappings
	}
	out := make([]string, 0, len(types))
	for t := range types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (r *mockRegistry) Mapping(category, typ string) (map[string]any, bool) {
	m, ok := r.types[category][typ]
	return m, ok
}

func (r *mockRegistry) Settings() map[string]any {
	out := map[string]any{}
	for k, v := range r.settings {
		out[k] = v
	}
	return out
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(_ context.Context, ev events.Event) { r.events = append(r.events, ev) }

var (
	errIndexMissing = &engine.Error{Status: 404, Type: "index_not_found_exception"}
	errExists       = &engine.Error{Status: 400, Type: "resource_already_exists_exception"}
	errTransient    = &engine.Error{Status: 503}
)

func newTestRegistry() *mockRegistry {
	return &mockRegistry{
		types: map[string]map[string]map[string]any{
			"usr": {
				"Account": {"properties": map[string]any{"type": map[string]any{"type": "keyword"}}},
				"Box":     {"properties": map[string]any{}},
				"link":    {"properties": map[string]any{}},
			},
			"empty": {},
		},
		settings: map[string]any{"number_of_shards": 10, "number_of_replicas": 0},
	}
}

func newTestService(eng *mockEngine) (*Service, *recordingEmitter) {
	codec := alias.MustNew(nil)
	exec := retry.NewExecutor(retry.Policy{MaxAttempts: 2, Interval: time.Millisecond}, nil, nil).
		WithSleeper(func(context.Context, time.Duration) error { return nil })
	em := &recordingEmitter{}
	return New(eng, newTestRegistry(), query.NewCompiler(codec), codec, exec).WithEvents(em), em
}

// --- Create ---

func TestCreate_OneIndexPerType(t *testing.T) {
	eng := &mockEngine{}
	svc, em := newTestService(eng)
	svc.WithSettings(map[string]any{"number_of_replicas": 1})

	require.NoError(t, svc.Create(context.Background(), "u0", "usr"))

	require.Len(t, eng.created, 3)
	for _, name := range []string{"u0.account", "u0.box", "u0.link"} {
		assert.Contains(t, eng.created, name)
	}
	assert.JSONEq(t, `{
		"settings": {"number_of_shards": 10, "number_of_replicas": 1},
		"mappings": {"properties": {"type": {"type": "keyword"}}}
	}`, string(eng.created["u0.account"]))

	require.Len(t, em.events, 1)
	assert.Equal(t, events.CreatingIndex, em.events[0].Kind)
	assert.Equal(t, "u0", em.events[0].Index)
}

func TestCreate_UnknownCategory(t *testing.T) {
	eng := &mockEngine{}
	svc, _ := newTestService(eng)
	err := svc.Create(context.Background(), "u0", "nope")
	assert.ErrorIs(t, err, domain.ErrNoMappings)
	assert.Empty(t, eng.created)
}

func TestCreate_EmptyCategory(t *testing.T) {
	svc, _ := newTestService(&mockEngine{})
	assert.ErrorIs(t, svc.Create(context.Background(), "u0", "empty"), domain.ErrNoMappings)
}

func TestCreate_ExistingIndexFails(t *testing.T) {
	eng := &mockEngine{createIndexFn: func(name string, _ []byte) error {
		if name == "u0.box" {
			return errExists
		}
		return nil
	}}
	svc, _ := newTestService(eng)
	err := svc.Create(context.Background(), "u0", "usr")
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.ErrorContains(t, err, "u0.box")
}

func TestCreate_RetriesTransient(t *testing.T) {
	var mu sync.Mutex
	attempts := map[string]int{}
	eng := &mockEngine{createIndexFn: func(name string, _ []byte) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[name]++
		if attempts[name] == 1 {
			return errTransient
		}
		return nil
	}}
	svc, _ := newTestService(eng)
	require.NoError(t, svc.Create(context.Background(), "u0", "usr"))
	assert.Len(t, eng.created, 3)
	for name, n := range attempts {
		assert.Equal(t, 2, n, name)
	}
}

// --- Delete / settings ---

func TestDelete(t *testing.T) {
	eng := &mockEngine{}
	svc, _ := newTestService(eng)
	require.NoError(t, svc.Delete(context.Background(), "u0"))
	assert.Equal(t, []string{"u0.*"}, eng.deleted)
}

func TestDelete_IndexMissing(t *testing.T) {
	eng := &mockEngine{deleteIndexErr: errIndexMissing}
	svc, _ := newTestService(eng)
	assert.ErrorIs(t, svc.Delete(context.Background(), "u0"), domain.ErrIndexMissing)
}

func TestUpdateSettings(t *testing.T) {
	eng := &mockEngine{}
	svc, _ := newTestService(eng)
	require.NoError(t, svc.UpdateSettings(context.Background(), "u0", map[string]any{"index.max_result_window": 200000}))
	assert.JSONEq(t, `{"index.max_result_window":200000}`, string(eng.settings["u0.*"]))
}

// --- Search ---

func TestSearch_DecodesByStoredType(t *testing.T) {
	eng := &mockEngine{searchFn: func(engine.SearchRequest) (*engine.SearchResult, error) {
		return &engine.SearchResult{Total: 2, Hits: []engine.Hit{
			{ID: "1", Source: map[string]any{"type": "Account", "alldata": "a"}},
			{ID: "2", Source: map[string]any{"alldata": "b"}},
		}}, nil
	}}
	svc, em := newTestService(eng)

	res, err := svc.Search(context.Background(), "u0", "r1", query.Node{"size": 5})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"_type": "Account", "_all": "a"}, res.Hits[0].Source)
	assert.Equal(t, map[string]any{"_all": "b"}, res.Hits[1].Source)

	require.Len(t, eng.searches, 1)
	assert.Equal(t, "u0.*", eng.searches[0].Index)
	assert.Equal(t, "r1", eng.searches[0].Routing)
	assert.JSONEq(t, `{"size":5,"query":{"bool":{}}}`, string(eng.searches[0].Body))
	require.Len(t, em.events, 1)
	assert.Equal(t, OpSearch, em.events[0].Op)
}

func TestMultiSearch(t *testing.T) {
	var got []engine.SearchRequest
	eng := &mockEngine{multiSearchFn: func(reqs []engine.SearchRequest) ([]engine.MultiSearchItem, error) {
		got = reqs
		return []engine.MultiSearchItem{
			{Result: &engine.SearchResult{Hits: []engine.Hit{}}},
			{Err: &engine.Error{Status: 400, Type: "parsing_exception"}},
		}, nil
	}}
	svc, _ := newTestService(eng)

	items, err := svc.MultiSearch(context.Background(), "u0", "", []query.Node{{}, {"size": 1}})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.NoError(t, items[0].Err)
	assert.ErrorIs(t, items[1].Err, domain.ErrMalformedQuery)
	require.Len(t, got, 2)
	assert.Equal(t, "u0.*", got[1].Index)
}

func TestMultiSearch_Empty(t *testing.T) {
	svc, _ := newTestService(&mockEngine{})
	_, err := svc.MultiSearch(context.Background(), "u0", "", nil)
	assert.ErrorIs(t, err, domain.ErrMalformedQuery)
}

// --- DeleteByQuery ---

func TestDeleteByQuery_Verified(t *testing.T) {
	eng := &mockEngine{deleteByQueryFn: func(engine.SearchRequest) (int64, error) { return 4, nil }}
	svc, _ := newTestService(eng)

	q := query.Node{"filter": map[string]any{"ids": map[string]any{"values": []any{"1"}}}}
	require.NoError(t, svc.DeleteByQuery(context.Background(), "u0", "r1", q))

	require.Len(t, eng.dbq, 1)
	require.Len(t, eng.searches, 1)
	assert.Equal(t, eng.dbq[0], eng.searches[0])
	assert.JSONEq(t, `{"query":{"bool":{"filter":{"bool":{"must":[{"ids":{"values":["1"]}}]}}}}}`,
		string(eng.dbq[0].Body))
}

func TestDeleteByQuery_Remaining(t *testing.T) {
	eng := &mockEngine{searchFn: func(engine.SearchRequest) (*engine.SearchResult, error) {
		return &engine.SearchResult{Total: 2, Hits: []engine.Hit{}}, nil
	}}
	svc, _ := newTestService(eng)

	err := svc.DeleteByQuery(context.Background(), "u0", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDeleteByQueryIncomplete)
	var dbq *domain.DeleteByQueryError
	require.True(t, errors.As(err, &dbq))
	assert.Equal(t, int64(2), dbq.Remaining)
}

func TestDeleteByQuery_EngineFailureSkipsVerify(t *testing.T) {
	eng := &mockEngine{deleteByQueryFn: func(engine.SearchRequest) (int64, error) {
		return 0, &engine.Error{Status: 400, Type: "parsing_exception"}
	}}
	svc, _ := newTestService(eng)
	err := svc.DeleteByQuery(context.Background(), "u0", "", nil)
	assert.ErrorIs(t, err, domain.ErrMalformedQuery)
	assert.Empty(t, eng.searches)
}

func TestDeleteByQuery_MalformedQuery(t *testing.T) {
	eng := &mockEngine{}
	svc, _ := newTestService(eng)
	err := svc.DeleteByQuery(context.Background(), "u0", "", query.Node{"query": []any{}})
	assert.ErrorIs(t, err, domain.ErrMalformedQuery)
	assert.Empty(t, eng.dbq)
}

func TestCreate_BodyIsValidJSON(t *testing.T) {
	eng := &mockEngine{}
	svc, _ := newTestService(eng)
	require.NoError(t, svc.Create(context.Background(), "u1", "usr"))
	for name, body := range eng.created {
		var v map[string]any
		assert.NoError(t, json.Unmarshal(body, &v), name)
	}
}
