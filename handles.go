package escompat

import (
	"context"

	documentuc "github.com/kailas-cloud/escompat/internal/usecase/document"
	indexuc "github.com/kailas-cloud/escompat/internal/usecase/index"
)

// TypeHandle addresses one record type of a logical index.
type TypeHandle struct {
	target documentuc.Target
	svc    *documentuc.Service
}

// Get reads a document. A missing document returns ErrDocumentNotFound.
func (h *TypeHandle) Get(ctx context.Context, id string) (*Document, error) {
	d, err := h.svc.Get(ctx, h.target, id)
	if err != nil {
		return nil, err
	}
	return documentFromInternal(d), nil
}

// GetIfVersion reads a document and fails with ErrVersionConflict unless its
// version equals version.
func (h *TypeHandle) GetIfVersion(ctx context.Context, id string, version int64) (*Document, error) {
	d, err := h.svc.GetIfVersion(ctx, h.target, id, version)
	if err != nil {
		return nil, err
	}
	return documentFromInternal(d), nil
}

// Create writes a new document. An empty id is replaced by a generated one.
// It fails with ErrVersionConflict when another document holds the id.
func (h *TypeHandle) Create(ctx context.Context, id string, doc map[string]any) (*WriteResult, error) {
	r, err := h.svc.Create(ctx, h.target, id, doc)
	if err != nil {
		return nil, err
	}
	return writeResultFromInternal(r), nil
}

// Update replaces a document, creating it when absent.
func (h *TypeHandle) Update(ctx context.Context, id string, doc map[string]any) (*WriteResult, error) {
	r, err := h.svc.Update(ctx, h.target, id, doc)
	if err != nil {
		return nil, err
	}
	return writeResultFromInternal(r), nil
}

// UpdateIfVersion replaces a document only if its current version equals version.
func (h *TypeHandle) UpdateIfVersion(
	ctx context.Context, id string, doc map[string]any, version int64,
) (*WriteResult, error) {
	r, err := h.svc.UpdateIfVersion(ctx, h.target, id, doc, version)
	if err != nil {
		return nil, err
	}
	return writeResultFromInternal(r), nil
}

// Delete removes a document.
func (h *TypeHandle) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	r, err := h.svc.Delete(ctx, h.target, id)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{ID: r.ID, Version: r.Version, Found: r.Found}, nil
}

// DeleteIfVersion removes a document only if its current version equals version.
func (h *TypeHandle) DeleteIfVersion(ctx context.Context, id string, version int64) (*DeleteResult, error) {
	r, err := h.svc.DeleteIfVersion(ctx, h.target, id, version)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{ID: r.ID, Version: r.Version, Found: r.Found}, nil
}

// Search runs a legacy query against the type.
func (h *TypeHandle) Search(ctx context.Context, q Query) (*SearchResult, error) {
	r, err := h.svc.Search(ctx, h.target, q)
	if err != nil {
		return nil, err
	}
	return searchResultFromInternal(r), nil
}

// MultiSearch runs several queries in one round trip.
func (h *TypeHandle) MultiSearch(ctx context.Context, qs ...Query) ([]MultiSearchItem, error) {
	items, err := h.svc.MultiSearch(ctx, h.target, qs)
	if err != nil {
		return nil, err
	}
	return multiSearchFromInternal(items), nil
}

// Mapping returns the type's index mapping.
func (h *TypeHandle) Mapping(ctx context.Context) (map[string]any, error) {
	return h.svc.GetMapping(ctx, h.target)
}

// PutMapping updates the type's index mapping.
func (h *TypeHandle) PutMapping(ctx context.Context, mapping map[string]any) error {
	return h.svc.PutMapping(ctx, h.target, mapping)
}

// IndexHandle addresses a logical index: one engine index per type of its
// mapping category.
type IndexHandle struct {
	name     string
	category string
	svc      *indexuc.Service
}

// Create creates the engine index of every type in the category.
func (h *IndexHandle) Create(ctx context.Context) error {
	return h.svc.Create(ctx, h.name, h.category)
}

// Delete deletes every engine index of the logical index.
func (h *IndexHandle) Delete(ctx context.Context) error {
	return h.svc.Delete(ctx, h.name)
}

// UpdateSettings applies dynamic settings to every engine index.
func (h *IndexHandle) UpdateSettings(ctx context.Context, settings map[string]any) error {
	return h.svc.UpdateSettings(ctx, h.name, settings)
}

// Search runs q across all types.
func (h *IndexHandle) Search(ctx context.Context, routing string, q Query) (*SearchResult, error) {
	r, err := h.svc.Search(ctx, h.name, routing, q)
	if err != nil {
		return nil, err
	}
	return searchResultFromInternal(r), nil
}

// MultiSearch runs several queries across all types in one round trip.
func (h *IndexHandle) MultiSearch(ctx context.Context, routing string, qs ...Query) ([]MultiSearchItem, error) {
	items, err := h.svc.MultiSearch(ctx, h.name, routing, qs)
	if err != nil {
		return nil, err
	}
	return multiSearchFromInternal(items), nil
}

// DeleteByQuery removes every document matching q and checks that none
// remain. Leftovers are reported as *DeleteByQueryError.
func (h *IndexHandle) DeleteByQuery(ctx context.Context, routing string, q Query) error {
	return h.svc.DeleteByQuery(ctx, h.name, routing, q)
}
