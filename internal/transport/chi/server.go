package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	router "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/escompat/internal/domain"
	"github.com/kailas-cloud/escompat/internal/domain/query"
	"github.com/kailas-cloud/escompat/internal/engine"
	logpkg "github.com/kailas-cloud/escompat/internal/logger"
	documentuc "github.com/kailas-cloud/escompat/internal/usecase/document"
	healthuc "github.com/kailas-cloud/escompat/internal/usecase/health"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 16 << 20

// Server exposes the document and index services over HTTP.
type Server struct {
	documents     DocumentService
	indices       IndexService
	health        HealthChecker
	compiler      QueryCompiler
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	documents DocumentService,
	indices IndexService,
	health HealthChecker,
	compiler QueryCompiler,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		documents:     documents,
		indices:       indices,
		health:        health,
		compiler:      compiler,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
}

// Register mounts the API routes on r.
func (s *Server) Register(r router.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r router.Router) {
		r.Post("/_compile", s.Compile)

		r.Route("/{index}", func(r router.Router) {
			r.Use(scopeLogger)
			r.Put("/", s.CreateIndex)
			r.Delete("/", s.DeleteIndex)
			r.Put("/_settings", s.UpdateSettings)
			r.Post("/_search", s.IndexSearch)
			r.Post("/_msearch", s.IndexMultiSearch)
			r.Post("/_delete_by_query", s.DeleteByQuery)

			r.Route("/{type}", func(r router.Router) {
				r.Post("/", s.CreateDocument)
				r.Post("/_search", s.Search)
				r.Post("/_msearch", s.MultiSearch)
				r.Get("/_mapping", s.GetMapping)
				r.Put("/_mapping", s.PutMapping)
				r.Get("/{id}", s.GetDocument)
				r.Put("/{id}", s.PutDocument)
				r.Delete("/{id}", s.DeleteDocument)
			})
		})
	})
}

// Handler returns a router serving the API with the given middlewares applied.
func (s *Server) Handler(middlewares ...func(http.Handler) http.Handler) http.Handler {
	r := router.NewRouter()
	r.Use(middlewares...)
	s.Register(r)
	return r
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// Compile handles POST /v1/_compile. It returns the canonical form of a legacy
// query without running it.
func (s *Server) Compile(w http.ResponseWriter, r *http.Request) {
	kind, err := bindOptionalString(r, "type")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	c, err := s.compiler.Compile(q, kind)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CreateIndex handles PUT /v1/{index}?category=.
func (s *Server) CreateIndex(w http.ResponseWriter, r *http.Request) {
	category, err := bindRequiredString(r, "category")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	name := router.URLParam(r, "index")

	if err := s.indices.Create(r.Context(), name, category); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"acknowledged": true, "index": name})
}

// DeleteIndex handles DELETE /v1/{index}.
func (s *Server) DeleteIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.indices.Delete(r.Context(), router.URLParam(r, "index")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
}

// UpdateSettings handles PUT /v1/{index}/_settings.
func (s *Server) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings map[string]any
	if !s.decodeBody(w, r, &settings, false) {
		return
	}
	if err := s.indices.UpdateSettings(r.Context(), router.URLParam(r, "index"), settings); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
}

// IndexSearch handles POST /v1/{index}/_search.
func (s *Server) IndexSearch(w http.ResponseWriter, r *http.Request) {
	params, err := bindSearchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	res, err := s.indices.Search(r.Context(), router.URLParam(r, "index"), deref(params.Routing), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchToResponse(res))
}

// IndexMultiSearch handles POST /v1/{index}/_msearch.
func (s *Server) IndexMultiSearch(w http.ResponseWriter, r *http.Request) {
	params, err := bindSearchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	qs, ok := s.decodeQueries(w, r)
	if !ok {
		return
	}

	items, err := s.indices.MultiSearch(r.Context(), router.URLParam(r, "index"), deref(params.Routing), qs)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.multiSearchToResponse(items))
}

// DeleteByQuery handles POST /v1/{index}/_delete_by_query.
func (s *Server) DeleteByQuery(w http.ResponseWriter, r *http.Request) {
	params, err := bindSearchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	if err := s.indices.DeleteByQuery(r.Context(), router.URLParam(r, "index"), deref(params.Routing), q); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
}

// CreateDocument handles POST /v1/{index}/{type}: create with a generated id.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	params, err := bindDocParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	var doc map[string]any
	if !s.decodeBody(w, r, &doc, false) {
		return
	}

	res, err := s.documents.Create(r.Context(), target(r, params.Routing), "", doc)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("%s/%s", r.URL.Path, res.ID))
	writeJSON(w, http.StatusCreated, writeResultToResponse(res))
}

// GetDocument handles GET /v1/{index}/{type}/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	params, err := bindDocParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	t, id := target(r, params.Routing), router.URLParam(r, "id")

	var doc *documentuc.Document
	if params.Version != nil {
		doc, err = s.documents.GetIfVersion(r.Context(), t, id, *params.Version)
	} else {
		doc, err = s.documents.Get(r.Context(), t, id)
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentToResponse(doc))
}

// PutDocument handles PUT /v1/{index}/{type}/{id}. op_type=create fails when
// the document exists; otherwise the document is replaced, conditionally on
// version when given.
func (s *Server) PutDocument(w http.ResponseWriter, r *http.Request) {
	params, err := bindDocParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	var doc map[string]any
	if !s.decodeBody(w, r, &doc, false) {
		return
	}
	t, id := target(r, params.Routing), router.URLParam(r, "id")

	var res *documentuc.WriteResult
	switch {
	case deref(params.OpType) == OpTypeCreate:
		if params.Version != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "version is not allowed with op_type=create")
			return
		}
		res, err = s.documents.Create(r.Context(), t, id, doc)
	case params.Version != nil:
		res, err = s.documents.UpdateIfVersion(r.Context(), t, id, doc, *params.Version)
	default:
		res, err = s.documents.Update(r.Context(), t, id, doc)
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusOK
	if res.Result == "created" {
		status = http.StatusCreated
	}
	writeJSON(w, status, writeResultToResponse(res))
}

// DeleteDocument handles DELETE /v1/{index}/{type}/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	params, err := bindDocParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	t, id := target(r, params.Routing), router.URLParam(r, "id")

	var res *documentuc.DeleteResult
	if params.Version != nil {
		res, err = s.documents.DeleteIfVersion(r.Context(), t, id, *params.Version)
	} else {
		res, err = s.documents.Delete(r.Context(), t, id)
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusOK
	if !res.Found {
		status = http.StatusNotFound
	}
	writeJSON(w, status, DeleteResponse{ID: res.ID, Version: res.Version, Found: res.Found})
}

// Search handles POST /v1/{index}/{type}/_search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	params, err := bindSearchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	res, err := s.documents.Search(r.Context(), target(r, params.Routing), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchToResponse(res))
}

// MultiSearch handles POST /v1/{index}/{type}/_msearch.
func (s *Server) MultiSearch(w http.ResponseWriter, r *http.Request) {
	params, err := bindSearchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	qs, ok := s.decodeQueries(w, r)
	if !ok {
		return
	}

	items, err := s.documents.MultiSearch(r.Context(), target(r, params.Routing), qs)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.multiSearchToResponse(items))
}

// GetMapping handles GET /v1/{index}/{type}/_mapping.
func (s *Server) GetMapping(w http.ResponseWriter, r *http.Request) {
	m, err := s.documents.GetMapping(r.Context(), target(r, nil))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// PutMapping handles PUT /v1/{index}/{type}/_mapping.
func (s *Server) PutMapping(w http.ResponseWriter, r *http.Request) {
	var mapping map[string]any
	if !s.decodeBody(w, r, &mapping, false) {
		return
	}
	if err := s.documents.PutMapping(r.Context(), target(r, nil), mapping); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
}

// scopeLogger adds the addressed index to the request logger.
func scopeLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logpkg.With(r.Context(), zap.String("index", router.URLParam(r, "index")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func target(r *http.Request, routing *string) documentuc.Target {
	return documentuc.Target{
		Index:   router.URLParam(r, "index"),
		Type:    router.URLParam(r, "type"),
		Routing: deref(routing),
	}
}

// decodeBody decodes a JSON request body into v. An empty body is accepted
// only when optional is set. It writes the error response and returns false
// on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF) && optional:
		return true
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, CodeBadRequest, "request body is required")
	default:
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
	}
	return false
}

// decodeQuery reads a legacy query body. An empty body is the empty query.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (query.Node, bool) {
	var q query.Node
	if !s.decodeBody(w, r, &q, true) {
		return nil, false
	}
	if q == nil {
		q = query.Node{}
	}
	return q, true
}

func (s *Server) decodeQueries(w http.ResponseWriter, r *http.Request) ([]query.Node, bool) {
	var req MultiSearchRequest
	if !s.decodeBody(w, r, &req, false) {
		return nil, false
	}
	qs := make([]query.Node, len(req.Queries))
	for i, q := range req.Queries {
		if q == nil {
			q = query.Node{}
		}
		qs[i] = q
	}
	return qs, true
}

func (s *Server) multiSearchToResponse(items []engine.MultiSearchItem) MultiSearchResponse {
	out := make([]MultiSearchItemResponse, len(items))
	for i, it := range items {
		if it.Err != nil {
			s.logger.Warn("multi-search item failed", zap.Int("item", i), zap.Error(it.Err))
			out[i].Error = &ErrorResponse{Code: itemErrorCode(it.Err), Message: safeDomainMessage(it.Err)}
			continue
		}
		out[i].SearchResponse = searchToResponse(it.Result)
	}
	return MultiSearchResponse{Responses: out}
}

func itemErrorCode(err error) ErrorCode {
	switch {
	case errors.Is(err, domain.ErrIndexMissing):
		return CodeIndexNotFound
	case errors.Is(err, domain.ErrVersionConflict):
		return CodeVersionConflict
	case errors.Is(err, domain.ErrSchemaMismatch):
		return CodeSchemaMismatch
	case errors.Is(err, domain.ErrMalformedQuery):
		return CodeMalformedQuery
	case errors.Is(err, domain.ErrTransient):
		return CodeEngineUnavailable
	default:
		return CodeInternalError
	}
}
