package elastic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/escompat/internal/engine"
)

// --- Helpers ---

type recorded struct {
	Method string
	Path   string
	Query  map[string]string
	Body   string
}

// fakeCluster answers every request with handler and records what it saw.
type fakeCluster struct {
	srv      *httptest.Server
	requests []recorded
}

func newFakeCluster(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Store, *fakeCluster) {
	t.Helper()
	fc := &fakeCluster{}
	fc.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		q := map[string]string{}
		for k, v := range r.URL.Query() {
			q[k] = v[0]
		}
		fc.requests = append(fc.requests, recorded{Method: r.Method, Path: r.URL.Path, Query: q, Body: string(body)})
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(fc.srv.Close)

	s, err := NewStore(Config{Addrs: []string{fc.srv.URL}})
	require.NoError(t, err)
	return s, fc
}

func reply(status int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (fc *fakeCluster) last(t *testing.T) recorded {
	t.Helper()
	require.NotEmpty(t, fc.requests)
	return fc.requests[len(fc.requests)-1]
}

func i64(v int64) *int64 { return &v }

func requireEngineError(t *testing.T, err error) *engine.Error {
	t.Helper()
	var ee *engine.Error
	require.True(t, errors.As(err, &ee), "want *engine.Error, got %T: %v", err, err)
	return ee
}

// --- client.go ---

func TestNewStore_RequiresAddrs(t *testing.T) {
	_, err := NewStore(Config{})
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	s, fc := newFakeCluster(t, reply(200, `{}`))
	require.NoError(t, s.Ping(context.Background()))
	assert.Equal(t, http.MethodHead, fc.last(t).Method)
}

func TestPing_Error(t *testing.T) {
	s, _ := newFakeCluster(t, reply(503, ``))
	err := s.Ping(context.Background())
	ee := requireEngineError(t, err)
	assert.Equal(t, 503, ee.Status)
}

func TestPing_TransportError(t *testing.T) {
	s, fc := newFakeCluster(t, reply(200, `{}`))
	fc.srv.Close()
	err := s.Ping(context.Background())
	ee := requireEngineError(t, err)
	assert.Error(t, ee.Err)
}

func TestWaitForReady_Timeout(t *testing.T) {
	s, _ := newFakeCluster(t, reply(503, ``))
	err := s.WaitForReady(context.Background(), 250*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForReady_Success(t *testing.T) {
	s, _ := newFakeCluster(t, reply(200, `{}`))
	require.NoError(t, s.WaitForReady(context.Background(), time.Second))
}

// --- errors.go ---

func TestParseError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		raw        string
		wantStatus int
		wantType   string
		wantReason string
	}{
		{
			name:       "object",
			status:     404,
			raw:        `{"error":{"root_cause":[],"type":"index_not_found_exception","reason":"no such index [x]"},"status":404}`,
			wantStatus: 404, wantType: "index_not_found_exception", wantReason: "no such index [x]",
		},
		{
			name:       "root cause only",
			status:     400,
			raw:        `{"error":{"root_cause":[{"type":"parsing_exception","reason":"bad"}]},"status":400}`,
			wantStatus: 400, wantType: "parsing_exception", wantReason: "bad",
		},
		{
			name:       "string error",
			status:     500,
			raw:        `{"error":"boom","status":500}`,
			wantStatus: 500, wantReason: "boom",
		},
		{
			name:       "not json",
			status:     502,
			raw:        `bad gateway`,
			wantStatus: 502, wantReason: "bad gateway",
		},
		{
			name:       "status from body wins",
			status:     200,
			raw:        `{"error":{"type":"version_conflict_engine_exception","reason":"conflict"},"status":409}`,
			wantStatus: 409, wantType: "version_conflict_engine_exception", wantReason: "conflict",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ee := requireEngineError(t, parseError("op", tt.status, []byte(tt.raw)))
			assert.Equal(t, "op", ee.Op)
			assert.Equal(t, tt.wantStatus, ee.Status)
			assert.Equal(t, tt.wantType, ee.Type)
			assert.Equal(t, tt.wantReason, ee.Reason)
		})
	}
}

// --- documents.go ---

func TestGet_Found(t *testing.T) {
	s, fc := newFakeCluster(t, reply(200,
		`{"_index":"idx.user","_id":"1","_version":3,"_seq_no":7,"_primary_term":2,"found":true,"_source":{"name":"a"}}`))

	doc, err := s.Get(context.Background(), engine.GetRequest{
		Index: "idx.user", ID: "1", Routing: "r1", Realtime: true, Version: i64(3),
	})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, engine.Document{
		Index: "idx.user", ID: "1", Version: 3, SeqNo: 7, PrimaryTerm: 2,
		Source: map[string]any{"name": "a"},
	}, *doc)

	req := fc.last(t)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/idx.user/_doc/1", req.Path)
	assert.Equal(t, "r1", req.Query["routing"])
	assert.Equal(t, "true", req.Query["realtime"])
	assert.Equal(t, "3", req.Query["version"])
}

func TestGet_NotFound(t *testing.T) {
	s, _ := newFakeCluster(t, reply(404, `{"_index":"idx.user","_id":"1","found":false}`))
	doc, err := s.Get(context.Background(), engine.GetRequest{Index: "idx.user", ID: "1"})
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestGet_IndexMissing(t *testing.T) {
	s, _ := newFakeCluster(t, reply(404,
		`{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`))
	_, err := s.Get(context.Background(), engine.GetRequest{Index: "idx.user", ID: "1"})
	ee := requireEngineError(t, err)
	assert.Equal(t, "index_not_found_exception", ee.Type)
	assert.Equal(t, engine.OpGet, ee.Op)
}

func TestGet_VersionConflict(t *testing.T) {
	s, _ := newFakeCluster(t, reply(409,
		`{"error":{"type":"version_conflict_engine_exception","reason":"current version [4] is different"},"status":409}`))
	_, err := s.Get(context.Background(), engine.GetRequest{Index: "idx.user", ID: "1", Version: i64(3)})
	ee := requireEngineError(t, err)
	assert.Equal(t, 409, ee.Status)
}

func TestIndex_Create(t *testing.T) {
	s, fc := newFakeCluster(t, reply(201,
		`{"_index":"idx.user","_id":"1","_version":1,"_seq_no":0,"_primary_term":1,"result":"created"}`))

	got, err := s.Index(context.Background(), engine.IndexRequest{
		Index: "idx.user", ID: "1", Routing: "r1", OpType: engine.OpTypeCreate,
		Source: map[string]any{"type": "user"}, Refresh: "true",
	})
	require.NoError(t, err)
	assert.Equal(t, &engine.IndexResult{Index: "idx.user", ID: "1", Version: 1, SeqNo: 0, PrimaryTerm: 1, Result: "created"}, got)

	req := fc.last(t)
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/idx.user/_doc/1", req.Path)
	assert.Equal(t, "create", req.Query["op_type"])
	assert.Equal(t, "true", req.Query["refresh"])
	assert.Equal(t, "r1", req.Query["routing"])
	assert.JSONEq(t, `{"type":"user"}`, req.Body)
}

func TestIndex_Conditional(t *testing.T) {
	s, fc := newFakeCluster(t, reply(200,
		`{"_index":"idx.user","_id":"1","_version":2,"_seq_no":8,"_primary_term":2,"result":"updated"}`))

	_, err := s.Index(context.Background(), engine.IndexRequest{
		Index: "idx.user", ID: "1", Source: map[string]any{}, IfSeqNo: i64(7), IfPrimaryTerm: i64(2),
	})
	require.NoError(t, err)

	req := fc.last(t)
	assert.Equal(t, "index", req.Query["op_type"])
	assert.Equal(t, "7", req.Query["if_seq_no"])
	assert.Equal(t, "2", req.Query["if_primary_term"])
}

func TestIndex_Conflict(t *testing.T) {
	s, _ := newFakeCluster(t, reply(409,
		`{"error":{"type":"version_conflict_engine_exception","reason":"document already exists"},"status":409}`))
	_, err := s.Index(context.Background(), engine.IndexRequest{Index: "i", ID: "1", OpType: engine.OpTypeCreate})
	ee := requireEngineError(t, err)
	assert.Equal(t, "version_conflict_engine_exception", ee.Type)
}

func TestDelete(t *testing.T) {
	s, fc := newFakeCluster(t, reply(200, `{"_index":"idx.user","_id":"1","_version":4,"result":"deleted"}`))
	got, err := s.Delete(context.Background(), engine.DeleteRequest{
		Index: "idx.user", ID: "1", Refresh: "true", IfSeqNo: i64(3), IfPrimaryTerm: i64(1),
	})
	require.NoError(t, err)
	assert.Equal(t, &engine.DeleteResult{Index: "idx.user", ID: "1", Version: 4, Found: true}, got)

	req := fc.last(t)
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "3", req.Query["if_seq_no"])
	assert.Equal(t, "1", req.Query["if_primary_term"])
	assert.Equal(t, "true", req.Query["refresh"])
}

func TestDelete_NotFound(t *testing.T) {
	s, _ := newFakeCluster(t, reply(404, `{"_index":"idx.user","_id":"1","_version":1,"result":"not_found"}`))
	got, err := s.Delete(context.Background(), engine.DeleteRequest{Index: "idx.user", ID: "1"})
	require.NoError(t, err)
	assert.False(t, got.Found)
}

func TestDelete_IndexMissing(t *testing.T) {
	s, _ := newFakeCluster(t, reply(404,
		`{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`))
	_, err := s.Delete(context.Background(), engine.DeleteRequest{Index: "idx.user", ID: "1"})
	ee := requireEngineError(t, err)
	assert.Equal(t, "index_not_found_exception", ee.Type)
}

// --- search.go ---

const searchReply = `{"took":3,"timed_out":false,"hits":{"total":{"value":2,"relation":"eq"},"max_score":1.5,"hits":[
{"_index":"idx.user","_id":"1","_score":1.5,"_version":1,"_source":{"type":"user"}},
{"_index":"idx.user","_id":"2","_score":null,"_version":2,"_source":{"type":"user"},"sort":["a"]}]}}`

func TestSearch(t *testing.T) {
	s, fc := newFakeCluster(t, reply(200, searchReply))
	got, err := s.Search(context.Background(), engine.SearchRequest{
		Index: "idx.user", Routing: "r1", Body: []byte(`{"query":{"bool":{}}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Took)
	assert.Equal(t, int64(2), got.Total)
	assert.InDelta(t, 1.5, got.MaxScore, 1e-9)
	require.Len(t, got.Hits, 2)
	assert.Equal(t, "1", got.Hits[0].ID)
	assert.InDelta(t, 1.5, got.Hits[0].Score, 1e-9)
	assert.Zero(t, got.Hits[1].Score)
	assert.Equal(t, []any{"a"}, got.Hits[1].Sort)

	req := fc.last(t)
	assert.Equal(t, "/idx.user/_search", req.Path)
	assert.Equal(t, "r1", req.Query["routing"])
	assert.Equal(t, "true", req.Query["version"])
	assert.JSONEq(t, `{"query":{"bool":{}}}`, req.Body)
}

func TestSearch_LegacyTotal(t *testing.T) {
	s, _ := newFakeCluster(t, reply(200, `{"took":1,"hits":{"total":5,"max_score":null,"hits":[]}}`))
	got, err := s.Search(context.Background(), engine.SearchRequest{Index: "i", Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Total)
	assert.NotNil(t, got.Hits)
	assert.Empty(t, got.Hits)
}

func TestSearch_Error(t *testing.T) {
	s, _ := newFakeCluster(t, reply(400,
		`{"error":{"type":"search_phase_execution_exception","reason":"all shards failed"},"status":400}`))
	_, err := s.Search(context.Background(), engine.SearchRequest{Index: "i", Body: []byte(`{}`)})
	ee := requireEngineError(t, err)
	assert.Equal(t, "search_phase_execution_exception", ee.Type)
	assert.Equal(t, engine.OpSearch, ee.Op)
}

func TestMultiSearch(t *testing.T) {
	s, fc := newFakeCluster(t, reply(200, `{"responses":[
{"took":1,"hits":{"total":{"value":1},"hits":[{"_index":"a.x","_id":"1","_source":{}}]},"status":200},
{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}]}`))

	items, err := s.MultiSearch(context.Background(), []engine.SearchRequest{
		{Index: "a.x", Routing: "r", Body: []byte("{\n  \"size\": 1\n}")},
		{Index: "b.y", Body: []byte(`{}`)},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.NoError(t, items[0].Err)
	assert.Equal(t, int64(1), items[0].Result.Total)
	ee := requireEngineError(t, items[1].Err)
	assert.Equal(t, "index_not_found_exception", ee.Type)
	assert.Equal(t, 404, ee.Status)

	req := fc.last(t)
	assert.Equal(t, "/_msearch", req.Path)
	lines := strings.Split(strings.TrimSuffix(req.Body, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":"a.x","routing":"r"}`, lines[0])
	assert.Equal(t, `{"size":1}`, lines[1])
	assert.JSONEq(t, `{"index":"b.y"}`, lines[2])
}

func TestMultiSearch_CountMismatch(t *testing.T) {
	s, _ := newFakeCluster(t, reply(200, `{"responses":[]}`))
	_, err := s.MultiSearch(context.Background(), []engine.SearchRequest{{Index: "a", Body: []byte(`{}`)}})
	requireEngineError(t, err)
}

func TestMsearchBody_InvalidJSON(t *testing.T) {
	_, err := msearchBody([]engine.SearchRequest{{Index: "a", Body: []byte(`{`)}})
	assert.Error(t, err)
}

func TestDeleteByQuery(t *testing.T) {
	s, fc := newFakeCluster(t, reply(200, `{"took":5,"deleted":3,"failures":[]}`))
	n, err := s.DeleteByQuery(context.Background(), engine.SearchRequest{Index: "idx.*", Body: []byte(`{"query":{}}`)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	req := fc.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/idx.*/_delete_by_query", req.Path)
	assert.Equal(t, "true", req.Query["refresh"])
}

// --- indices.go ---

func TestIndices(t *testing.T) {
	s, fc := newFakeCluster(t, reply(200, `{"acknowledged":true}`))
	ctx := context.Background()

	require.NoError(t, s.CreateIndex(ctx, "idx.user", []byte(`{"settings":{}}`)))
	assert.Equal(t, recorded{Method: http.MethodPut, Path: "/idx.user", Query: map[string]string{}, Body: `{"settings":{}}`},
		fc.last(t))

	require.NoError(t, s.DeleteIndex(ctx, "idx.*"))
	assert.Equal(t, http.MethodDelete, fc.last(t).Method)
	assert.Equal(t, "/idx.*", fc.last(t).Path)

	require.NoError(t, s.PutMapping(ctx, "idx.user", []byte(`{"properties":{}}`)))
	assert.Equal(t, "/idx.user/_mapping", fc.last(t).Path)

	require.NoError(t, s.PutSettings(ctx, "idx.*", []byte(`{"index":{}}`)))
	assert.Equal(t, "/idx.*/_settings", fc.last(t).Path)

	require.NoError(t, s.Refresh(ctx, "idx.user"))
	assert.Equal(t, "/idx.user/_refresh", fc.last(t).Path)
}

func TestCreateIndex_Exists(t *testing.T) {
	s, _ := newFakeCluster(t, reply(400,
		`{"error":{"type":"resource_already_exists_exception","reason":"exists"},"status":400}`))
	err := s.CreateIndex(context.Background(), "idx.user", nil)
	ee := requireEngineError(t, err)
	assert.Equal(t, "resource_already_exists_exception", ee.Type)
}

func TestGetMapping(t *testing.T) {
	s, fc := newFakeCluster(t, reply(200, `{"idx.user":{"mappings":{"properties":{"type":{"type":"keyword"}}}}}`))
	got, err := s.GetMapping(context.Background(), "idx.user")
	require.NoError(t, err)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"idx.user":{"mappings":{"properties":{"type":{"type":"keyword"}}}}}`, string(raw))
	assert.Equal(t, "/idx.user/_mapping", fc.last(t).Path)
}
