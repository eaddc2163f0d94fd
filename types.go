package escompat

import (
	"github.com/kailas-cloud/escompat/internal/domain/query"
	"github.com/kailas-cloud/escompat/internal/engine"
	documentuc "github.com/kailas-cloud/escompat/internal/usecase/document"
)

// Query is a legacy or native query document.
type Query = query.Node

// Document is a stored record with reserved names restored.
type Document struct {
	ID          string
	Version     int64
	SeqNo       int64
	PrimaryTerm int64
	Source      map[string]any
}

// WriteResult describes an accepted create or update.
type WriteResult struct {
	ID      string
	Version int64
	Result  string // created, updated
	// Recovered is true when a create that reported a conflict turned out to
	// be this client's own earlier attempt.
	Recovered bool
}

// DeleteResult describes a delete. Found is false when nothing was removed.
type DeleteResult struct {
	ID      string
	Version int64
	Found   bool
}

// Hit is one search hit.
type Hit struct {
	Index   string
	ID      string
	Score   float64
	Version int64
	Source  map[string]any
	Sort    []any
}

// SearchResult is a search response. A missing index yields an empty result.
type SearchResult struct {
	Took     int64
	TimedOut bool
	Total    int64
	MaxScore float64
	Hits     []Hit
}

// MultiSearchItem is one response of a multi-search: a result or an error.
type MultiSearchItem struct {
	Result *SearchResult
	Err    error
}

func documentFromInternal(d *documentuc.Document) *Document {
	return &Document{
		ID:          d.ID,
		Version:     d.Version,
		SeqNo:       d.SeqNo,
		PrimaryTerm: d.PrimaryTerm,
		Source:      d.Source,
	}
}

func writeResultFromInternal(r *documentuc.WriteResult) *WriteResult {
	return &WriteResult{ID: r.ID, Version: r.Version, Result: r.Result, Recovered: r.Recovered}
}

func searchResultFromInternal(r *engine.SearchResult) *SearchResult {
	if r == nil {
		return &SearchResult{Hits: []Hit{}}
	}
	hits := make([]Hit, len(r.Hits))
	for i, h := range r.Hits {
		hits[i] = Hit{Index: h.Index, ID: h.ID, Score: h.Score, Version: h.Version, Source: h.Source, Sort: h.Sort}
	}
	return &SearchResult{Took: r.Took, TimedOut: r.TimedOut, Total: r.Total, MaxScore: r.MaxScore, Hits: hits}
}

func multiSearchFromInternal(items []engine.MultiSearchItem) []MultiSearchItem {
	out := make([]MultiSearchItem, len(items))
	for i, it := range items {
		if it.Err != nil {
			out[i].Err = it.Err
			continue
		}
		out[i].Result = searchResultFromInternal(it.Result)
	}
	return out
}
