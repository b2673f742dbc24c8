package organizer

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithAPIKey sends the key as a Bearer token.
func WithAPIKey(key string) Option {
	return optionFunc(func(c *clientConfig) {
		c.apiKey = key
	})
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithTimeout bounds each request. Default: 60s, synthesis answers are slow.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithLogger enables structured logging of client calls. Pass nil to disable (default).
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers call counts and durations on reg. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
