// Package collector implements a development collector that accepts the
// telemetry wire protocol and stores what it receives in SQLite.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/rd-mini/internal/transport"
)

// MaxBodySize bounds a single ingest request.
const MaxBodySize = 16 << 20

type Server struct {
	Router *chi.Mux
	Port   int

	store  *Store
	logger *slog.Logger
	http   *http.Server
}

// New builds the router. apiKey, when set, is required as a bearer token on
// ingest routes.
func New(port int, store *Store, apiKey string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Router: chi.NewRouter(),
		Port:   port,
		store:  store,
		logger: logger,
	}

	r := s.Router
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "rdmini-collector")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/records", s.handleList)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiKey))
		r.Use(DecompressMiddleware)
		r.Post(transport.EventsPath, s.handleBatch(KindEvent))
		r.Post(transport.SignalsPath, s.handleBatch(KindSignal))
		r.Post(transport.IdentifyPath, s.handleIdentify)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start listens on Port until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting collector", slog.Int("port", s.Port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBatch(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
		if err != nil {
			AddError(r.Context(), err)
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			AddError(r.Context(), err)
			http.Error(w, "body must be a JSON array", http.StatusBadRequest)
			return
		}

		for _, item := range items {
			if len(item) == 0 || item[0] != '{' {
				http.Error(w, "records must be JSON objects", http.StatusBadRequest)
				return
			}
		}
		for _, item := range items {
			if err := s.store.Save(r.Context(), kind, item); err != nil {
				AddError(r.Context(), err)
				http.Error(w, "failed to store record", http.StatusInternalServerError)
				return
			}
		}

		AddLogField(r.Context(), "records", strconv.Itoa(len(items)))
		writeJSON(w, http.StatusOK, map[string]int{"accepted": len(items)})
	}
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		AddError(r.Context(), err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) || len(body) == 0 || body[0] != '{' {
		http.Error(w, "body must be a JSON object", http.StatusBadRequest)
		return
	}

	if err := s.store.Save(r.Context(), KindIdentify, body); err != nil {
		AddError(r.Context(), err)
		http.Error(w, "failed to store record", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"accepted": 1})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	kind := Kind(r.URL.Query().Get("kind"))
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.store.List(r.Context(), kind, limit)
	if err != nil {
		AddError(r.Context(), err)
		http.Error(w, "failed to list records", http.StatusInternalServerError)
		return
	}
	total, err := s.store.Count(r.Context(), kind)
	if err != nil {
		AddError(r.Context(), err)
		http.Error(w, "failed to count records", http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []StoredRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
