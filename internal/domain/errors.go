package domain

import (
	"errors"
	"fmt"
)

// ErrorClass is the category the executor assigns to every failure it surfaces.
type ErrorClass int

const (
	// ClassUnclassified is any failure the classifier cannot recognize.
	ClassUnclassified ErrorClass = iota
	// ClassIndexMissing means the target index does not exist.
	ClassIndexMissing
	// ClassVersionConflict means an optimistic lock check failed or the document already exists.
	ClassVersionConflict
	// ClassSchemaMismatch means the document does not fit the index mapping.
	ClassSchemaMismatch
	// ClassMalformedQuery means the request was rejected before or by query parsing.
	ClassMalformedQuery
	// ClassTransient means a network or execution-phase failure worth retrying.
	ClassTransient
)

var classNames = map[ErrorClass]string{
	ClassUnclassified:    "unclassified",
	ClassIndexMissing:    "index_missing",
	ClassVersionConflict: "version_conflict",
	ClassSchemaMismatch:  "schema_mismatch",
	ClassMalformedQuery:  "malformed_query",
	ClassTransient:       "transient",
}

func (c ErrorClass) String() string {
	if n, ok := classNames[c]; ok {
		return n
	}
	return fmt.Sprintf("error_class(%d)", int(c))
}

// Particular reports whether the class is handled without consuming a retry attempt.
func (c ErrorClass) Particular() bool {
	switch c {
	case ClassIndexMissing, ClassVersionConflict, ClassSchemaMismatch:
		return true
	default:
		return false
	}
}

// Retryable reports whether the executor sleeps and tries again on this class.
// Unclassified failures share the Transient policy.
func (c ErrorClass) Retryable() bool {
	return c == ClassTransient || c == ClassUnclassified
}

var (
	// ErrIndexMissing signals a missing engine index.
	ErrIndexMissing = errors.New("index missing")
	// ErrVersionConflict signals an optimistic locking conflict.
	ErrVersionConflict = errors.New("version conflict")
	// ErrSchemaMismatch signals a document rejected by the index mapping.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrMalformedQuery signals a query that cannot be compiled or executed.
	ErrMalformedQuery = errors.New("malformed query")
	// ErrTransient signals a retryable failure that outlived its retry budget.
	ErrTransient = errors.New("transient failure")
	// ErrUnclassified signals an unrecognized engine failure.
	ErrUnclassified = errors.New("unclassified failure")

	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrNoMappings signals an unknown mapping category or type.
	ErrNoMappings = errors.New("no mappings")
	// ErrDeleteByQueryIncomplete signals documents left behind by a delete-by-query.
	ErrDeleteByQueryIncomplete = errors.New("delete by query incomplete")
)

var classSentinels = map[ErrorClass]error{
	ClassUnclassified:    ErrUnclassified,
	ClassIndexMissing:    ErrIndexMissing,
	ClassVersionConflict: ErrVersionConflict,
	ClassSchemaMismatch:  ErrSchemaMismatch,
	ClassMalformedQuery:  ErrMalformedQuery,
	ClassTransient:       ErrTransient,
}

// Sentinel returns the sentinel error matching the class.
func (c ErrorClass) Sentinel() error {
	if s, ok := classSentinels[c]; ok {
		return s
	}
	return ErrUnclassified
}

// Error is the single failure type surfaced by engine operations.
// errors.Is matches it against the sentinel of its class.
type Error struct {
	Class ErrorClass
	Op    string
	Err   error
}

// NewError wraps err with a class and an operation name.
func NewError(class ErrorClass, op string, err error) *Error {
	return &Error{Class: class, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Class.Sentinel())
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Class.Sentinel(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's class.
func (e *Error) Is(target error) bool {
	return target == e.Class.Sentinel()
}

// ClassOf extracts the class from err. Errors that are not *Error are Unclassified.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassUnclassified
}

// DeleteByQueryError reports documents still matching after a delete-by-query.
type DeleteByQueryError struct {
	Remaining int64
}

func (e *DeleteByQueryError) Error() string {
	return fmt.Sprintf("%s: %d documents remain", ErrDeleteByQueryIncomplete.Error(), e.Remaining)
}

func (e *DeleteByQueryError) Unwrap() error { return ErrDeleteByQueryIncomplete }
