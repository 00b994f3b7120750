// Package config loads client and dev collector settings from an optional
// YAML file and RAINDROP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load. A double
// underscore separates nested keys: RAINDROP_OTEL__ENABLED sets otel.enabled.
const EnvPrefix = "RAINDROP_"

// ErrMissingAPIKey is returned by Validate when no API key is configured and
// the client is not disabled.
var ErrMissingAPIKey = errors.New("config: api_key is required unless disabled")

type Config struct {
	APIKey         string        `koanf:"api_key"`
	BaseURL        string        `koanf:"base_url"`
	Debug          bool          `koanf:"debug"`
	Disabled       bool          `koanf:"disabled"`
	FlushInterval  time.Duration `koanf:"flush_interval"`
	MaxQueueSize   int           `koanf:"max_queue_size"`
	MaxRetries     int           `koanf:"max_retries"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	Timeout        time.Duration `koanf:"timeout"`
	Compress       bool          `koanf:"compress"`
	RedactPII      bool          `koanf:"redact_pii"`

	OTel      OTelConfig      `koanf:"otel"`
	Collector CollectorConfig `koanf:"collector"`
}

// OTelConfig enables the OpenTelemetry export plugin.
type OTelConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Exporter    string `koanf:"exporter"` // stdout, none
	ServiceName string `koanf:"service_name"`
}

// CollectorConfig configures the development collector.
type CollectorConfig struct {
	Port   int    `koanf:"port"`
	DBPath string `koanf:"db_path"`
	// APIKey, when set, is required as a bearer token on ingest routes
	APIKey string `koanf:"api_key"`
}

var defaults = map[string]any{
	"base_url":          "https://api.raindrop.ai",
	"flush_interval":    "1s",
	"max_queue_size":    100,
	"max_retries":       3,
	"retry_base_delay":  "100ms",
	"timeout":           "30s",
	"otel.exporter":     "stdout",
	"otel.service_name": "rd-mini",
	"collector.port":    8787,
	"collector.db_path": "rdmini-collector.db",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (skipped when empty or missing), then overlays the
// environment, then fills defaults for anything still unset.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.APIKey = substituteEnvVars(cfg.APIKey)
	cfg.Collector.APIKey = substituteEnvVars(cfg.Collector.APIKey)

	return &cfg, nil
}

// Validate checks the client settings.
func (c *Config) Validate() error {
	if c.Disabled {
		return nil
	}
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("config: invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: base_url must be http or https, got %q", c.BaseURL)
	}

	switch {
	case c.FlushInterval <= 0:
		return fmt.Errorf("config: flush_interval must be positive, got %s", c.FlushInterval)
	case c.MaxQueueSize <= 0:
		return fmt.Errorf("config: max_queue_size must be positive, got %d", c.MaxQueueSize)
	case c.MaxRetries < 0:
		return fmt.Errorf("config: max_retries must not be negative, got %d", c.MaxRetries)
	case c.RetryBaseDelay <= 0:
		return fmt.Errorf("config: retry_base_delay must be positive, got %s", c.RetryBaseDelay)
	case c.Timeout <= 0:
		return fmt.Errorf("config: timeout must be positive, got %s", c.Timeout)
	}

	if c.OTel.Enabled && c.OTel.Exporter != "stdout" && c.OTel.Exporter != "none" {
		return fmt.Errorf("config: unsupported otel exporter %q", c.OTel.Exporter)
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
