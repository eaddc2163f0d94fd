package chi

import (
	"github.com/kailas-cloud/escompat/internal/engine"
	documentuc "github.com/kailas-cloud/escompat/internal/usecase/document"
)

// ErrorCode is the machine-readable code of an error response.
type ErrorCode string

// Error codes returned by the API.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeDocumentNotFound  ErrorCode = "document_not_found"
	CodeIndexNotFound     ErrorCode = "index_not_found"
	CodeMappingNotFound   ErrorCode = "mapping_not_found"
	CodeVersionConflict   ErrorCode = "version_conflict"
	CodeSchemaMismatch    ErrorCode = "schema_mismatch"
	CodeMalformedQuery    ErrorCode = "malformed_query"
	CodeDeleteIncomplete  ErrorCode = "delete_by_query_incomplete"
	CodeEngineUnavailable ErrorCode = "engine_unavailable"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DocumentResponse is a stored document.
type DocumentResponse struct {
	ID          string         `json:"_id"`
	Version     int64          `json:"_version"`
	SeqNo       int64          `json:"_seq_no"`
	PrimaryTerm int64          `json:"_primary_term"`
	Source      map[string]any `json:"_source"`
}

// WriteResponse acknowledges a create or update.
type WriteResponse struct {
	ID          string `json:"_id"`
	Version     int64  `json:"_version"`
	SeqNo       int64  `json:"_seq_no"`
	PrimaryTerm int64  `json:"_primary_term"`
	Result      string `json:"result"`
	Recovered   bool   `json:"recovered,omitempty"`
}

// DeleteResponse acknowledges a delete.
type DeleteResponse struct {
	ID      string `json:"_id"`
	Version int64  `json:"_version"`
	Found   bool   `json:"found"`
}

// HitResponse is one search hit.
type HitResponse struct {
	Index   string         `json:"_index"`
	ID      string         `json:"_id"`
	Score   float64        `json:"_score"`
	Version int64          `json:"_version,omitempty"`
	Source  map[string]any `json:"_source"`
	Sort    []any          `json:"sort,omitempty"`
}

// SearchResponse is a search result.
type SearchResponse struct {
	Took     int64         `json:"took"`
	TimedOut bool          `json:"timed_out"`
	Total    int64         `json:"total"`
	MaxScore float64       `json:"max_score"`
	Hits     []HitResponse `json:"hits"`
}

// MultiSearchRequest carries the queries of a multi-search.
type MultiSearchRequest struct {
	Queries []map[string]any `json:"queries"`
}

// MultiSearchItemResponse is one multi-search response: a result or an error.
type MultiSearchItemResponse struct {
	*SearchResponse
	Error *ErrorResponse `json:"error,omitempty"`
}

// MultiSearchResponse holds multi-search items in request order.
type MultiSearchResponse struct {
	Responses []MultiSearchItemResponse `json:"responses"`
}

// HealthResponse reports component health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func documentToResponse(d *documentuc.Document) DocumentResponse {
	return DocumentResponse{
		ID:          d.ID,
		Version:     d.Version,
		SeqNo:       d.SeqNo,
		PrimaryTerm: d.PrimaryTerm,
		Source:      d.Source,
	}
}

func writeResultToResponse(r *documentuc.WriteResult) WriteResponse {
	return WriteResponse{
		ID:          r.ID,
		Version:     r.Version,
		SeqNo:       r.SeqNo,
		PrimaryTerm: r.PrimaryTerm,
		Result:      r.Result,
		Recovered:   r.Recovered,
	}
}

func searchToResponse(r *engine.SearchResult) *SearchResponse {
	if r == nil {
		return &SearchResponse{Hits: []HitResponse{}}
	}
	hits := make([]HitResponse, len(r.Hits))
	for i, h := range r.Hits {
		hits[i] = HitResponse{
			Index:   h.Index,
			ID:      h.ID,
			Score:   h.Score,
			Version: h.Version,
			Source:  h.Source,
			Sort:    h.Sort,
		}
	}
	return &SearchResponse{
		Took:     r.Took,
		TimedOut: r.TimedOut,
		Total:    r.Total,
		MaxScore: r.MaxScore,
		Hits:     hits,
	}
}
