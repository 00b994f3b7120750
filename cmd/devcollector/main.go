package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/tjfontaine/rd-mini/internal/collector"
	"github.com/tjfontaine/rd-mini/internal/pkg/config"
	"github.com/tjfontaine/rd-mini/internal/plugins/otelexport"
)

func main() {
	configPath := flag.String("config", "rdmini.yaml", "path to the YAML config file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.OTel.Enabled {
		tp, err := otelexport.NewTracerProvider(otelexport.Config{
			Exporter:    cfg.OTel.Exporter,
			ServiceName: "rdmini-collector",
		}, logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		otel.SetTracerProvider(tp)
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	store, err := collector.NewStore(cfg.Collector.DBPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	srv := collector.New(cfg.Collector.Port, store, cfg.Collector.APIKey, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("collector started",
		slog.Int("port", cfg.Collector.Port),
		slog.String("db_path", cfg.Collector.DBPath),
		slog.Bool("auth", cfg.Collector.APIKey != ""),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received, stopping collector")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("collector shutdown complete")
}
