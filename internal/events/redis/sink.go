// Package redis publishes request events to a capped Redis stream.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/escompat/internal/events"
)

// Compile-time check: Sink implements events.Sink.
var _ events.Sink = (*Sink)(nil)

const (
	defaultStream = "escompat:events"
	defaultMaxLen = 100000
)

// Config holds connection and stream parameters.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// Sink appends events to a stream with XADD, trimming it to about MaxLen entries.
type Sink struct {
	client rueidis.Client
	stream string
	maxLen int64
}

// NewSink creates a Redis stream sink via rueidis.
func NewSink(cfg Config) (*Sink, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return newSink(client, cfg.Stream, cfg.MaxLen), nil
}

func newSink(client rueidis.Client, stream string, maxLen int64) *Sink {
	if stream == "" {
		stream = defaultStream
	}
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Sink{client: client, stream: stream, maxLen: maxLen}
}

// Publish appends ev to the stream.
func (s *Sink) Publish(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}

	cmd := s.client.B().Arbitrary("XADD").Keys(s.stream).
		Args("MAXLEN", "~", strconv.FormatInt(s.maxLen, 10), "*").
		Args(
			"kind", string(ev.Kind),
			"op", ev.Op,
			"index", ev.Index,
			"type", ev.Type,
			"id", ev.ID,
			"routing", ev.Routing,
			"data", string(data),
			"at", ev.At.UTC().Format(time.RFC3339Nano),
		).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("XADD %s: %w", s.stream, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Sink) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Sink) Close() {
	s.client.Close()
}
