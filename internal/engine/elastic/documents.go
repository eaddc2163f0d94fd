package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/escompat/internal/engine"
)

type getResponse struct {
	Index       string         `json:"_index"`
	ID          string         `json:"_id"`
	Version     int64          `json:"_version"`
	SeqNo       int64          `json:"_seq_no"`
	PrimaryTerm int64          `json:"_primary_term"`
	Found       bool           `json:"found"`
	Source      map[string]any `json:"_source"`
}

type writeResponse struct {
	Index       string `json:"_index"`
	ID          string `json:"_id"`
	Version     int64  `json:"_version"`
	SeqNo       int64  `json:"_seq_no"`
	PrimaryTerm int64  `json:"_primary_term"`
	Result      string `json:"result"`
}

// Get reads one document. A missing document returns (nil, nil); a missing
// index returns an engine error.
func (s *Store) Get(ctx context.Context, req engine.GetRequest) (*engine.Document, error) {
	res, err := s.perform(ctx, engine.OpGet, esapi.GetRequest{
		Index:      req.Index,
		DocumentID: req.ID,
		Routing:    req.Routing,
		Realtime:   boolPtr(req.Realtime),
		Version:    intPtr(req.Version),
	})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var body getResponse
	if res.StatusCode == http.StatusNotFound {
		// 404 carries either a found:false document or an index error.
		raw, rerr := readAll(engine.OpGet, res)
		if rerr != nil {
			return nil, rerr
		}
		if json.Unmarshal(raw, &body) == nil && body.ID != "" && !body.Found {
			return nil, nil
		}
		return nil, parseError(engine.OpGet, res.StatusCode, raw)
	}
	if res.IsError() {
		return nil, decodeError(engine.OpGet, res)
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, &engine.Error{Op: engine.OpGet, Status: res.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	if !body.Found {
		return nil, nil
	}
	return &engine.Document{
		Index:       body.Index,
		ID:          body.ID,
		Version:     body.Version,
		SeqNo:       body.SeqNo,
		PrimaryTerm: body.PrimaryTerm,
		Source:      body.Source,
	}, nil
}

// Index writes a full document.
func (s *Store) Index(ctx context.Context, req engine.IndexRequest) (*engine.IndexResult, error) {
	payload, err := json.Marshal(req.Source)
	if err != nil {
		return nil, &engine.Error{Op: engine.OpIndex, Err: fmt.Errorf("encode document: %w", err)}
	}
	opType := req.OpType
	if opType == "" {
		opType = engine.OpTypeIndex
	}
	res, err := s.perform(ctx, engine.OpIndex, esapi.IndexRequest{
		Index:         req.Index,
		DocumentID:    req.ID,
		Body:          bytes.NewReader(payload),
		OpType:        string(opType),
		Routing:       req.Routing,
		Refresh:       req.Refresh,
		IfSeqNo:       intPtr(req.IfSeqNo),
		IfPrimaryTerm: intPtr(req.IfPrimaryTerm),
	})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, decodeError(engine.OpIndex, res)
	}

	var body writeResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, &engine.Error{Op: engine.OpIndex, Status: res.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return &engine.IndexResult{
		Index:       body.Index,
		ID:          body.ID,
		Version:     body.Version,
		SeqNo:       body.SeqNo,
		PrimaryTerm: body.PrimaryTerm,
		Result:      body.Result,
	}, nil
}

// Delete removes one document. A missing document returns Found=false.
func (s *Store) Delete(ctx context.Context, req engine.DeleteRequest) (*engine.DeleteResult, error) {
	res, err := s.perform(ctx, engine.OpDelete, esapi.DeleteRequest{
		Index:         req.Index,
		DocumentID:    req.ID,
		Routing:       req.Routing,
		Refresh:       req.Refresh,
		IfSeqNo:       intPtr(req.IfSeqNo),
		IfPrimaryTerm: intPtr(req.IfPrimaryTerm),
	})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := readAll(engine.OpDelete, res)
	if err != nil {
		return nil, err
	}
	var body writeResponse
	decodeErr := json.Unmarshal(raw, &body)
	if res.StatusCode == http.StatusNotFound && decodeErr == nil && body.Result == "not_found" {
		return &engine.DeleteResult{Index: body.Index, ID: body.ID, Version: body.Version}, nil
	}
	if res.IsError() {
		return nil, parseError(engine.OpDelete, res.StatusCode, raw)
	}
	if decodeErr != nil {
		return nil, &engine.Error{Op: engine.OpDelete, Status: res.StatusCode, Err: fmt.Errorf("decode: %w", decodeErr)}
	}
	return &engine.DeleteResult{
		Index:   body.Index,
		ID:      body.ID,
		Version: body.Version,
		Found:   body.Result == "deleted",
	}, nil
}

func readAll(op string, res *esapi.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		return nil, &engine.Error{Op: op, Status: res.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return buf.Bytes(), nil
}
