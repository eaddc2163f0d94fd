package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kailas-cloud/escompat/internal/domain"
	"github.com/kailas-cloud/escompat/internal/engine"
)

func TestEngineClassifier(t *testing.T) {
	c := NewEngineClassifier(nil)
	tests := []struct {
		name string
		err  error
		want domain.ErrorClass
	}{
		{"index missing", &engine.Error{Op: engine.OpSearch, Status: 404, Type: "index_not_found_exception"},
			domain.ClassIndexMissing},
		{"version conflict", &engine.Error{Op: engine.OpIndex, Status: 409, Type: "version_conflict_engine_exception"},
			domain.ClassVersionConflict},
		{"index exists", &engine.Error{Op: engine.OpCreateIndex, Status: 400, Type: "resource_already_exists_exception"},
			domain.ClassVersionConflict},
		{"mapper parsing", &engine.Error{Op: engine.OpIndex, Status: 400, Type: "mapper_parsing_exception"},
			domain.ClassSchemaMismatch},
		{"search phase", &engine.Error{Op: engine.OpSearch, Status: 500, Type: "search_phase_execution_exception"},
			domain.ClassTransient},
		{"parsing", &engine.Error{Op: engine.OpSearch, Status: 400, Type: "parsing_exception"},
			domain.ClassMalformedQuery},
		{"type is case insensitive", &engine.Error{Status: 404, Type: "Index_Not_Found_Exception"},
			domain.ClassIndexMissing},
		{"bare 409", &engine.Error{Status: 409}, domain.ClassVersionConflict},
		{"bare 503", &engine.Error{Status: 503}, domain.ClassTransient},
		{"bare 429", &engine.Error{Status: 429}, domain.ClassTransient},
		{"unknown type", &engine.Error{Status: 400, Type: "illegal_argument_exception"}, domain.ClassUnclassified},
		{"transport inside engine error", &engine.Error{Op: engine.OpGet, Err: io.EOF}, domain.ClassTransient},
		{"wrapped", fmt.Errorf("outer: %w", &engine.Error{Status: 404, Type: "index_not_found_exception"}),
			domain.ClassIndexMissing},
		{"net error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, domain.ClassTransient},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), domain.ClassTransient},
		{"unexpected eof", io.ErrUnexpectedEOF, domain.ClassTransient},
		{"deadline", context.DeadlineExceeded, domain.ClassTransient},
		{"domain error keeps class", domain.NewError(domain.ClassMalformedQuery, "compile", nil),
			domain.ClassMalformedQuery},
		{"plain", errors.New("what"), domain.ClassUnclassified},
		{"nil", nil, domain.ClassUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.err))
		})
	}
}

func TestEngineClassifier_ExtraOverrides(t *testing.T) {
	c := NewEngineClassifier(map[string]domain.ErrorClass{
		"illegal_argument_exception":       domain.ClassSchemaMismatch,
		"search_phase_execution_exception": domain.ClassUnclassified,
	})
	assert.Equal(t, domain.ClassSchemaMismatch, c.Classify(&engine.Error{Type: "illegal_argument_exception"}))
	assert.Equal(t, domain.ClassUnclassified, c.Classify(&engine.Error{Type: "search_phase_execution_exception"}))
}
