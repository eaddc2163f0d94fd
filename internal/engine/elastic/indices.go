package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/escompat/internal/engine"
)

// CreateIndex creates an index with the given settings and mappings body.
func (s *Store) CreateIndex(ctx context.Context, name string, body []byte) error {
	return s.ack(ctx, engine.OpCreateIndex, esapi.IndicesCreateRequest{Index: name, Body: reader(body)})
}

// DeleteIndex deletes an index or wildcard pattern.
func (s *Store) DeleteIndex(ctx context.Context, name string) error {
	return s.ack(ctx, engine.OpDeleteIndex, esapi.IndicesDeleteRequest{Index: []string{name}})
}

// PutMapping updates the mappings of an index.
func (s *Store) PutMapping(ctx context.Context, index string, body []byte) error {
	return s.ack(ctx, engine.OpPutMapping, esapi.IndicesPutMappingRequest{Index: []string{index}, Body: reader(body)})
}

// PutSettings updates dynamic settings of an index or pattern.
func (s *Store) PutSettings(ctx context.Context, index string, body []byte) error {
	return s.ack(ctx, engine.OpPutSettings, esapi.IndicesPutSettingsRequest{Index: []string{index}, Body: reader(body)})
}

// Refresh makes recent writes visible to search.
func (s *Store) Refresh(ctx context.Context, index string) error {
	return s.ack(ctx, engine.OpRefresh, esapi.IndicesRefreshRequest{Index: []string{index}})
}

// GetMapping returns the mapping of index, keyed by concrete index name.
func (s *Store) GetMapping(ctx context.Context, index string) (map[string]any, error) {
	res, err := s.perform(ctx, engine.OpGetMapping, esapi.IndicesGetMappingRequest{Index: []string{index}})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, decodeError(engine.OpGetMapping, res)
	}

	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, &engine.Error{Op: engine.OpGetMapping, Status: res.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return out, nil
}

// ack runs a call whose success body carries nothing of interest.
func (s *Store) ack(ctx context.Context, op string, req esapi.Request) error {
	res, err := s.perform(ctx, op, req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return decodeError(op, res)
	}
	return nil
}

// reader returns a nil interface for an empty body so the request is sent without one.
func reader(body []byte) io.Reader {
	if len(body) == 0 {
		return nil
	}
	return bytes.NewReader(body)
}
