package elastic

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/escompat/internal/engine"
	"github.com/kailas-cloud/escompat/internal/metrics"
)

// Compile-time check: Store implements engine.Engine.
var _ engine.Engine = (*Store)(nil)

// Config holds connection parameters for an Elasticsearch cluster.
type Config struct {
	Addrs []string
	// Transport overrides the HTTP round tripper. Nil uses the client default.
	Transport http.RoundTripper
}

// Store implements engine.Engine via go-elasticsearch.
type Store struct {
	es *elasticsearch.Client
}

// NewStore creates an Elasticsearch store. Client-level retries are disabled:
// the retry executor owns the retry policy.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    cfg.Addrs,
		Transport:    cfg.Transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{es: es}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	res, err := s.perform(ctx, engine.OpPing, esapi.PingRequest{})
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return decodeError(engine.OpPing, res)
	}
	return nil
}

// Close is a no-op. The HTTP transport holds no resources that need releasing.
func (s *Store) Close() {}

// WaitForReady polls Ping until the cluster responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for search engine: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// perform runs one API call and records its status and latency.
// Transport failures come back as *engine.Error with Err set.
func (s *Store) perform(ctx context.Context, op string, req esapi.Request) (*esapi.Response, error) {
	start := time.Now()
	res, err := req.Do(ctx, s.es)
	metrics.EngineRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EngineRequestsTotal.WithLabelValues(op, "transport_error").Inc()
		return nil, &engine.Error{Op: op, Err: err}
	}
	metrics.EngineRequestsTotal.WithLabelValues(op, strconv.Itoa(res.StatusCode)).Inc()
	return res, nil
}

func intPtr(v *int64) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

func boolPtr(v bool) *bool { return &v }
