package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentmem/config"
	"github.com/BaSui01/agentmem/embedding"
	"github.com/BaSui01/agentmem/internal/metrics"
	"github.com/BaSui01/agentmem/memory"
	"github.com/BaSui01/agentmem/store"
	"github.com/BaSui01/agentmem/types"
)

// Server wires the memory system to its HTTP surface.
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	system     *memory.System
	httpServer *http.Server
	closeStore func() error
}

// NewServer builds the record store, embedder, and memory system from cfg.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	recStore, closeStore, err := buildStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	embedder := buildEmbedder(cfg.Embedding)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(prometheus.DefaultRegisterer)
	}

	system, err := memory.NewSystem(context.Background(), cfg.Memory, embedder, recStore, collector, logger)
	if err != nil {
		if closeStore != nil {
			closeStore()
		}
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		system:     system,
		closeStore: closeStore,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s, nil
}

func buildStore(cfg *config.Config, logger *zap.Logger) (store.RecordStore, func() error, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Database.Path, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil, nil
	case "redis":
		s, err := store.NewRedisStore(store.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return s, s.Close, nil
	default:
		return store.NewInMemoryStore(logger), nil, nil
	}
}

func buildEmbedder(cfg config.EmbeddingConfig) embedding.Provider {
	switch cfg.Provider {
	case "api":
		return embedding.NewAPIProvider(embedding.Config{
			Endpoint:  cfg.Endpoint,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: cfg.Dimension,
			RateLimit: cfg.RateLimit,
		})
	case "none":
		return nil
	default:
		return embedding.NewLocalProvider(cfg.Dimension)
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/experiences", s.handleStore)
	mux.HandleFunc("POST /v1/recall", s.handleRecall)
	mux.HandleFunc("POST /v1/consolidate", s.handleConsolidate)
	mux.HandleFunc("POST /v1/forget", s.handleForget)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/graph", s.handleGraph)
	if s.cfg.Metrics.Enabled {
		mux.Handle("GET "+s.cfg.Metrics.Path, promhttp.Handler())
	}
	return mux
}

// Start launches the background consolidation loop and the HTTP listener.
func (s *Server) Start() error {
	s.system.Start(context.Background())

	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then drains the HTTP
// server, stops the consolidation loop, and closes the store.
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	s.system.Stop()

	if s.closeStore != nil {
		if err := s.closeStore(); err != nil {
			s.logger.Warn("store close failed", zap.Error(err))
		}
	}
}

type storeRequest struct {
	Payload types.ExperiencePayload `json:"payload"`
	Context map[string]any          `json:"context,omitempty"`
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.system.StoreExperience(r.Context(), req.Payload, req.Context)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type recallRequest struct {
	Query   string         `json:"query"`
	Context map[string]any `json:"context,omitempty"`
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	var req recallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	recall, err := s.system.RetrieveRelevant(r.Context(), req.Query, req.Context)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, recall)
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	report, err := s.system.Consolidate(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	aggressive := r.URL.Query().Get("aggressive") == "true"
	counts, err := s.system.Forget(r.Context(), aggressive)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.system.Stats())
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	root := r.URL.Query().Get("root")
	if root == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("root query parameter is required"))
		return
	}
	graph, err := s.system.ConceptGraph(root)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
