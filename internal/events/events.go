// Package events publishes request events to an external sink.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/escompat/internal/metrics"
)

// Kind names an event.
type Kind string

const (
	// AfterRequest follows a get, search, multi-search or delete.
	AfterRequest Kind = "afterRequest"
	// AfterCreate follows a document write.
	AfterCreate Kind = "afterCreate"
	// CreatingIndex precedes index creation.
	CreatingIndex Kind = "creatingIndex"
)

// Event describes one engine request.
type Event struct {
	Kind    Kind
	Op      string
	Index   string
	Type    string
	ID      string
	Routing string
	// Data is the query or document sent to the engine.
	Data any
	At   time.Time
}

// Sink receives events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// NopSink drops every event.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(context.Context, Event) error { return nil }

// Publisher hands events to a sink. Sink failures are logged and counted but
// never fail the request that produced the event.
type Publisher struct {
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

// NewPublisher creates a Publisher. A nil sink drops events.
func NewPublisher(sink Sink, logger *zap.Logger) *Publisher {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{sink: sink, logger: logger, now: time.Now}
}

// Emit stamps and publishes ev.
func (p *Publisher) Emit(ctx context.Context, ev Event) {
	if p == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = p.now()
	}
	if err := p.sink.Publish(ctx, ev); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(string(ev.Kind), "error").Inc()
		p.logger.Warn("event publish failed",
			zap.String("event", string(ev.Kind)),
			zap.String("op", ev.Op),
			zap.String("index", ev.Index),
			zap.Error(err),
		)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(ev.Kind), "ok").Inc()
}
