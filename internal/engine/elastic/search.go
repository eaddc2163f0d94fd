package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/escompat/internal/engine"
)

type searchResponse struct {
	Took     int64 `json:"took"`
	TimedOut bool  `json:"timed_out"`
	Hits     struct {
		Total    json.RawMessage `json:"total"`
		MaxScore *float64        `json:"max_score"`
		Hits     []struct {
			Index   string         `json:"_index"`
			ID      string         `json:"_id"`
			Score   *float64       `json:"_score"`
			Version int64          `json:"_version"`
			Source  map[string]any `json:"_source"`
			Sort    []any          `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

type msearchResponse struct {
	Responses []json.RawMessage `json:"responses"`
}

type deleteByQueryResponse struct {
	Deleted int64 `json:"deleted"`
}

// Search runs a compiled query body.
func (s *Store) Search(ctx context.Context, req engine.SearchRequest) (*engine.SearchResult, error) {
	res, err := s.perform(ctx, engine.OpSearch, esapi.SearchRequest{
		Index:   []string{req.Index},
		Body:    bytes.NewReader(req.Body),
		Routing: routing(req.Routing),
		Version: boolPtr(true),
	})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, decodeError(engine.OpSearch, res)
	}

	raw, err := readAll(engine.OpSearch, res)
	if err != nil {
		return nil, err
	}
	out, err := parseSearch(raw)
	if err != nil {
		return nil, &engine.Error{Op: engine.OpSearch, Status: res.StatusCode, Err: err}
	}
	return out, nil
}

// MultiSearch runs several bodies in one round trip. Per-query failures are
// reported on the item; only a failure of the whole call returns an error.
func (s *Store) MultiSearch(ctx context.Context, reqs []engine.SearchRequest) ([]engine.MultiSearchItem, error) {
	payload, err := msearchBody(reqs)
	if err != nil {
		return nil, &engine.Error{Op: engine.OpMultiSearch, Err: err}
	}
	res, err := s.perform(ctx, engine.OpMultiSearch, esapi.MsearchRequest{
		Body: bytes.NewReader(payload),
	})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, decodeError(engine.OpMultiSearch, res)
	}

	var body msearchResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, &engine.Error{Op: engine.OpMultiSearch, Status: res.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	if len(body.Responses) != len(reqs) {
		return nil, &engine.Error{Op: engine.OpMultiSearch, Status: res.StatusCode,
			Err: fmt.Errorf("got %d responses for %d queries", len(body.Responses), len(reqs))}
	}

	items := make([]engine.MultiSearchItem, len(body.Responses))
	for i, raw := range body.Responses {
		var probe errorBody
		if json.Unmarshal(raw, &probe) == nil && len(probe.Error) > 0 {
			items[i].Err = parseError(engine.OpMultiSearch, probe.Status, raw)
			continue
		}
		r, perr := parseSearch(raw)
		if perr != nil {
			items[i].Err = &engine.Error{Op: engine.OpMultiSearch, Err: perr}
			continue
		}
		items[i].Result = r
	}
	return items, nil
}

// DeleteByQuery removes every document matching the body and refreshes the
// index so the removal is visible to the next search.
func (s *Store) DeleteByQuery(ctx context.Context, req engine.SearchRequest) (int64, error) {
	res, err := s.perform(ctx, engine.OpDeleteByQuery, esapi.DeleteByQueryRequest{
		Index:   []string{req.Index},
		Body:    bytes.NewReader(req.Body),
		Routing: routing(req.Routing),
		Refresh: boolPtr(true),
	})
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, decodeError(engine.OpDeleteByQuery, res)
	}

	var body deleteByQueryResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, &engine.Error{Op: engine.OpDeleteByQuery, Status: res.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return body.Deleted, nil
}

func parseSearch(raw []byte) (*engine.SearchResult, error) {
	var body searchResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	total, err := parseTotal(body.Hits.Total)
	if err != nil {
		return nil, err
	}
	out := &engine.SearchResult{
		Took:     body.Took,
		TimedOut: body.TimedOut,
		Total:    total,
		Hits:     make([]engine.Hit, 0, len(body.Hits.Hits)),
	}
	if body.Hits.MaxScore != nil {
		out.MaxScore = *body.Hits.MaxScore
	}
	for _, h := range body.Hits.Hits {
		hit := engine.Hit{Index: h.Index, ID: h.ID, Version: h.Version, Source: h.Source, Sort: h.Sort}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

// parseTotal accepts both {"value": n, "relation": ...} and a bare number.
func parseTotal(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var obj struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Value, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("decode hits.total: %w", err)
	}
	return n, nil
}

// msearchBody renders the NDJSON payload: a header line naming index and
// routing, then the compacted body, per query.
func msearchBody(reqs []engine.SearchRequest) ([]byte, error) {
	var buf bytes.Buffer
	for i, r := range reqs {
		header := map[string]any{"index": r.Index}
		if r.Routing != "" {
			header["routing"] = r.Routing
		}
		h, err := json.Marshal(header)
		if err != nil {
			return nil, fmt.Errorf("encode header %d: %w", i, err)
		}
		buf.Write(h)
		buf.WriteByte('\n')

		body := r.Body
		if len(body) == 0 {
			body = []byte("{}")
		}
		if err := json.Compact(&buf, body); err != nil {
			return nil, fmt.Errorf("compact body %d: %w", i, err)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func routing(r string) []string {
	if r == "" {
		return nil
	}
	return []string{r}
}
