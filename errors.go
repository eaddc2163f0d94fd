package escompat

import "github.com/kailas-cloud/escompat/internal/domain"

// Errors returned by the client. Match them with errors.Is.
var (
	ErrIndexMissing            = domain.ErrIndexMissing
	ErrVersionConflict         = domain.ErrVersionConflict
	ErrSchemaMismatch          = domain.ErrSchemaMismatch
	ErrMalformedQuery          = domain.ErrMalformedQuery
	ErrTransient               = domain.ErrTransient
	ErrUnclassified            = domain.ErrUnclassified
	ErrDocumentNotFound        = domain.ErrDocumentNotFound
	ErrNoMappings              = domain.ErrNoMappings
	ErrDeleteByQueryIncomplete = domain.ErrDeleteByQueryIncomplete
)

// DeleteByQueryError reports documents still matching after DeleteByQuery.
// Match it with errors.As to read the remaining count.
type DeleteByQueryError = domain.DeleteByQueryError
