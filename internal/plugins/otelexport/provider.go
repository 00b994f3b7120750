// Package otelexport provides a plugin that mirrors finished interactions,
// spans and traces into OpenTelemetry.
package otelexport

import (
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultServiceName is used when Config.ServiceName is empty.
const DefaultServiceName = "rd-mini"

// Exporters supported by NewTracerProvider.
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Config selects the exporter backing a tracer provider.
type Config struct {
	// Exporter is "stdout" (default) or "none"
	Exporter    string
	ServiceName string

	// Writer receives stdout exports; defaults to os.Stdout
	Writer io.Writer
}

// NewTracerProvider builds an SDK tracer provider from cfg. The caller owns
// the provider and must shut it down.
func NewTracerProvider(cfg Config, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	}

	switch cfg.Exporter {
	case ExporterStdout, "":
		exporterOpts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if cfg.Writer != nil {
			exporterOpts = append(exporterOpts, stdouttrace.WithWriter(cfg.Writer))
		}
		exporter, err := stdouttrace.New(exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	case ExporterNone:
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}

	logger.Info("OpenTelemetry export initialized",
		slog.String("service", serviceName),
		slog.String("exporter", cfg.Exporter),
	)
	return sdktrace.NewTracerProvider(opts...), nil
}
