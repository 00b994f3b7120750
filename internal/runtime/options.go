package runtime

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tjfontaine/rd-mini/internal/core/ports"
	"github.com/tjfontaine/rd-mini/internal/transport"
)

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithLogger sets a custom logger. It takes precedence over the debug
// logger built from config.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithPlugins registers plugins after the built-in ones enabled by config.
func WithPlugins(plugins ...ports.Plugin) Option {
	return func(c *Client) error {
		c.plugins = append(c.plugins, plugins...)
		return nil
	}
}

// WithHTTPClient sets the HTTP client used by the transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// WithMetrics registers transport metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) error {
		c.metrics = transport.NewMetrics(reg)
		return nil
	}
}

// WithSink replaces the transport queue. The client still flushes and
// closes it.
func WithSink(sink ports.Sink) Option {
	return func(c *Client) error {
		c.sink = sink
		return nil
	}
}
