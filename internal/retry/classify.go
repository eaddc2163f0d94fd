package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/kailas-cloud/escompat/internal/domain"
	"github.com/kailas-cloud/escompat/internal/engine"
)

// Classifier maps a failure to an error class.
type Classifier interface {
	Classify(err error) domain.ErrorClass
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(err error) domain.ErrorClass

// Classify implements Classifier.
func (f ClassifierFunc) Classify(err error) domain.ErrorClass { return f(err) }

// defaultTypes maps engine error type strings to classes.
var defaultTypes = map[string]domain.ErrorClass{
	"index_not_found_exception":               domain.ClassIndexMissing,
	"version_conflict_engine_exception":       domain.ClassVersionConflict,
	"resource_already_exists_exception":       domain.ClassVersionConflict,
	"mapper_parsing_exception":                domain.ClassSchemaMismatch,
	"strict_dynamic_mapping_exception":        domain.ClassSchemaMismatch,
	"document_parsing_exception":              domain.ClassSchemaMismatch,
	"parsing_exception":                       domain.ClassMalformedQuery,
	"x_content_parse_exception":               domain.ClassMalformedQuery,
	"search_phase_execution_exception":        domain.ClassTransient,
	"es_rejected_execution_exception":         domain.ClassTransient,
	"node_not_connected_exception":            domain.ClassTransient,
	"no_shard_available_action_exception":     domain.ClassTransient,
	"unavailable_shards_exception":            domain.ClassTransient,
	"circuit_breaking_exception":              domain.ClassTransient,
	"process_cluster_event_timeout_exception": domain.ClassTransient,
}

// EngineClassifier classifies engine errors by their type string, then by
// HTTP status, then by transport error kind.
type EngineClassifier struct {
	types map[string]domain.ErrorClass
}

// NewEngineClassifier creates a classifier. extra entries override the defaults.
func NewEngineClassifier(extra map[string]domain.ErrorClass) *EngineClassifier {
	types := make(map[string]domain.ErrorClass, len(defaultTypes)+len(extra))
	for k, v := range defaultTypes {
		types[k] = v
	}
	for k, v := range extra {
		types[k] = v
	}
	return &EngineClassifier{types: types}
}

// Classify implements Classifier.
func (c *EngineClassifier) Classify(err error) domain.ErrorClass {
	if err == nil {
		return domain.ClassUnclassified
	}

	var de *domain.Error
	if errors.As(err, &de) {
		return de.Class
	}

	var ee *engine.Error
	if errors.As(err, &ee) {
		if class, ok := c.types[strings.ToLower(ee.Type)]; ok {
			return class
		}
		if class, ok := classifyStatus(ee.Status); ok {
			return class
		}
		if ee.Err != nil {
			return classifyTransport(ee.Err)
		}
		return domain.ClassUnclassified
	}

	return classifyTransport(err)
}

func classifyStatus(status int) (domain.ErrorClass, bool) {
	switch status {
	case http.StatusConflict:
		return domain.ClassVersionConflict, true
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return domain.ClassTransient, true
	default:
		return domain.ClassUnclassified, false
	}
}

func classifyTransport(err error) domain.ErrorClass {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.As(err, &netErr):
		return domain.ClassTransient
	default:
		return domain.ClassUnclassified
	}
}
