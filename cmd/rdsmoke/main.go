package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/rd-mini/pkg/raindrop"
)

// rdsmoke sends one sample interaction, standalone trace and feedback signal
// to the configured collector.
func main() {
	configPath := flag.String("config", "rdmini.yaml", "path to the YAML config file")
	input := flag.String("input", "What is the capital of France?", "interaction input")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg, err := raindrop.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	client, err := raindrop.New(cfg, raindrop.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	client.Identify("smoke-user", &raindrop.UserTraits{Plan: "dev"})

	answer, err := raindrop.WithInteraction(ctx, client, raindrop.BeginOptions{Input: *input, Event: "smoke_test"},
		func(ctx context.Context, h *raindrop.Handle) (string, error) {
			words, _ := raindrop.Tool(ctx, client, "tokenize", func(ctx context.Context) ([]string, error) {
				return strings.Fields(*input), nil
			})
			h.SetProperty("word_count", len(words))

			res, err := raindrop.TraceCall(ctx, client, raindrop.ModelCall{Provider: "openai", Model: "gpt-4o-mini", Input: *input},
				func(ctx context.Context) (*raindrop.ModelResult, error) {
					return &raindrop.ModelResult{Output: "Paris"}, nil
				})
			if err != nil {
				return "", err
			}
			return res.Output.(string), nil
		})
	if err != nil {
		log.Fatalf("Interaction failed: %v", err)
	}
	client.Feedback(client.LastTraceID(), raindrop.Feedback{Type: "thumbs_up", Comment: "smoke test"})

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.Close(shutdownCtx); err != nil {
		logger.Error("close failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("smoke test sent",
		slog.String("answer", answer),
		slog.String("trace_id", client.LastTraceID()),
	)
}
