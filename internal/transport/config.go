// Package transport buffers rendered records in memory and delivers them to
// the collector in batches. Producers never block on network I/O: a flush is
// triggered by queue size or by a timer, and failed batches are retried with
// exponential backoff and then dropped.
package transport

import (
	"log/slog"
	"net/http"
	"time"
)

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultBaseURL        = "https://api.raindrop.ai"
	DefaultFlushInterval  = time.Second
	DefaultMaxQueueSize   = 100
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 100 * time.Millisecond
	DefaultTimeout        = 30 * time.Second

	// MaxEventSize is the largest rendered record accepted by Enqueue.
	MaxEventSize = 1 << 20
)

// Collector endpoints.
const (
	EventsPath   = "/v1/events/track"
	SignalsPath  = "/v1/signals/track"
	IdentifyPath = "/v1/users/identify"
)

// Config configures a Queue.
type Config struct {
	APIKey  string
	BaseURL string

	// Disabled turns Enqueue into a no-op
	Disabled bool

	FlushInterval  time.Duration
	MaxQueueSize   int
	MaxRetries     int
	RetryBaseDelay time.Duration

	// Timeout bounds each HTTP attempt
	Timeout time.Duration

	// Compress gzips request bodies
	Compress bool

	// HTTPClient overrides the underlying client; its Timeout is left as is
	HTTPClient *http.Client

	Logger  *slog.Logger
	Metrics *Metrics
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		FlushInterval:  DefaultFlushInterval,
		MaxQueueSize:   DefaultMaxQueueSize,
		MaxRetries:     DefaultMaxRetries,
		RetryBaseDelay: DefaultRetryBaseDelay,
		Timeout:        DefaultTimeout,
	}
}

// withDefaults fills unset fields. MaxRetries is taken as given: zero means
// no retries.
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
