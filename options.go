package escompat

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	addrs            []string
	transport        http.RoundTripper
	readinessTimeout time.Duration

	maxRetries    int
	retryInterval time.Duration

	aliases       map[string]map[string]string
	markerField   string
	mappingDir    string
	indexSettings map[string]any

	eventAddrs    []string
	eventPassword string
	eventStream   string

	logger *zap.Logger
}

func defaultConfig() *clientConfig {
	return &clientConfig{
		readinessTimeout: 10 * time.Second,
		maxRetries:       3,
		retryInterval:    1500 * time.Millisecond,
		aliases:          map[string]map[string]string{},
	}
}

// WithAddresses sets the engine node URLs.
func WithAddresses(addrs ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = append(c.addrs, addrs...)
	})
}

// WithTransport replaces the HTTP round tripper used to reach the engine.
func WithTransport(rt http.RoundTripper) Option {
	return optionFunc(func(c *clientConfig) {
		c.transport = rt
	})
}

// WithReadinessTimeout bounds the wait for the engine in New.
func WithReadinessTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		if d > 0 {
			c.readinessTimeout = d
		}
	})
}

// WithRetry sets how often a transient failure is retried after the first
// call and the wait between attempts.
func WithRetry(maxRetries int, interval time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxRetries = maxRetries
		c.retryInterval = interval
	})
}

// WithAliases adds field renames for one record type, on top of the
// _type -> type and _all -> alldata renames every type gets.
func WithAliases(typ string, renames map[string]string) Option {
	return optionFunc(func(c *clientConfig) {
		c.aliases[typ] = renames
	})
}

// WithMarkerField sets the field compared when a create is confirmed by
// re-reading after a conflict. Default "u".
func WithMarkerField(field string) Option {
	return optionFunc(func(c *clientConfig) {
		c.markerField = field
	})
}

// WithMappingDir loads index mappings from dir instead of the embedded bundle.
func WithMappingDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.mappingDir = dir
	})
}

// WithIndexSettings overrides settings of indices created through Index handles.
func WithIndexSettings(settings map[string]any) Option {
	return optionFunc(func(c *clientConfig) {
		c.indexSettings = settings
	})
}

// WithRedisEvents publishes request events to a Redis stream.
func WithRedisEvents(addr, password, stream string) Option {
	return optionFunc(func(c *clientConfig) {
		c.eventAddrs = []string{addr}
		c.eventPassword = password
		c.eventStream = stream
	})
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
