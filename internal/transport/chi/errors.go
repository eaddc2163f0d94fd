package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/escompat/internal/domain"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		deleteIncompleteHandler,
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrNoMappings, http.StatusNotFound, CodeMappingNotFound),
		sentinelHandler(domain.ErrIndexMissing, http.StatusNotFound, CodeIndexNotFound),
		sentinelHandler(domain.ErrVersionConflict, http.StatusConflict, CodeVersionConflict),
		sentinelHandler(domain.ErrSchemaMismatch, http.StatusBadRequest, CodeSchemaMismatch),
		malformedQueryHandler,
		sentinelHandler(domain.ErrTransient, http.StatusServiceUnavailable, CodeEngineUnavailable),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDocumentNotFound,
		domain.ErrNoMappings,
		domain.ErrIndexMissing,
		domain.ErrVersionConflict,
		domain.ErrSchemaMismatch,
		domain.ErrMalformedQuery,
		domain.ErrTransient,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// malformedQueryHandler reports the compile failure itself; it names only
// parts of the caller's own query.
func malformedQueryHandler(w http.ResponseWriter, err error, _ string) bool {
	if !errors.Is(err, domain.ErrMalformedQuery) {
		return false
	}
	writeError(w, http.StatusBadRequest, CodeMalformedQuery, err.Error())
	return true
}

// deleteIncompleteHandler reports the number of documents left by a delete-by-query.
func deleteIncompleteHandler(w http.ResponseWriter, err error, _ string) bool {
	var dqe *domain.DeleteByQueryError
	if !errors.As(err, &dqe) {
		return false
	}
	writeJSON(w, http.StatusConflict, map[string]any{
		"code":      CodeDeleteIncomplete,
		"message":   fmt.Sprintf("%d documents remain", dqe.Remaining),
		"remaining": dqe.Remaining,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
