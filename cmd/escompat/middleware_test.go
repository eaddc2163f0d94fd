package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	router "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	logpkg "github.com/kailas-cloud/escompat/internal/logger"
	chiTransport "github.com/kailas-cloud/escompat/internal/transport/chi"
)

func TestJSONRecoverer(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := jsonRecoverer(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/main/Box/d1", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body chiTransport.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, chiTransport.CodeInternalError, body.Code)
	assert.Equal(t, 1, logs.FilterMessage("handler panic").Len())
}

func TestJSONRecoverer_AbortHandlerPropagates(t *testing.T) {
	h := jsonRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRequestLogMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	r := router.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogMiddleware(zap.New(core)))
	r.Get("/v1/{index}/{type}/{id}", func(w http.ResponseWriter, r *http.Request) {
		logpkg.FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/main/Box/d1", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	inside := logs.FilterMessage("inside").All()
	require.Len(t, inside, 1)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), inside[0].ContextMap()["request_id"])

	lines := logs.FilterMessage("http_request").All()
	require.Len(t, lines, 1)
	fields := lines[0].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, lines[0].Level)
	assert.Equal(t, int64(http.StatusNotFound), fields["status"])
	assert.Equal(t, "/v1/{index}/{type}/{id}", fields["route"])
	assert.Equal(t, "main", fields["index"])
	assert.Equal(t, "Box", fields["type"])

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/broken", nil))
	lines = logs.FilterMessage("http_request").All()
	require.Len(t, lines, 2)
	assert.Equal(t, zapcore.WarnLevel, lines[1].Level)
	assert.NotContains(t, lines[1].ContextMap(), "index")
}
