package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/market-ingest/internal/model"
	"github.com/sells-group/market-ingest/internal/monitoring"
	"github.com/sells-group/market-ingest/internal/pipeline"
	"github.com/sells-group/market-ingest/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger for ingestion cycles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initIngest(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		var collector *monitoring.Collector
		if env.Store != nil {
			collector = monitoring.NewCollector(env.Store, env.Breakers)
			if cfg.Monitoring.WebhookURL != "" {
				checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
				go checker.Run(ctx)
			}
		}

		srvState := newIngestServer(env.Pipeline, env.Store, collector,
			pipelineConfig(cfg, nil),
			time.Duration(cfg.Server.IngestMinIntervalSecs)*time.Second,
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(srvState, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// cycleRunner is the part of *pipeline.Pipeline the server drives.
type cycleRunner interface {
	Run(ctx context.Context, cfg pipeline.Config) *model.Cycle
}

// ingestServer serialises cycles triggered over HTTP. The store and
// collector may be nil.
type ingestServer struct {
	runner    cycleRunner
	store     store.Store
	collector *monitoring.Collector
	base      pipeline.Config
	limiter   *rate.Limiter

	mu sync.Mutex
}

func newIngestServer(runner cycleRunner, st store.Store, collector *monitoring.Collector, base pipeline.Config, minInterval time.Duration) *ingestServer {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &ingestServer{
		runner:    runner,
		store:     st,
		collector: collector,
		base:      base,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

func buildRouter(s *ingestServer, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/ingest", s.handleIngest)
	r.Get("/cycles", s.handleCycles)
	r.Get("/cycles/{id}", s.handleCycle)
	r.Get("/metrics", s.handleMetrics)
	return r
}

func (s *ingestServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *ingestServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sources []string `json:"sources"`
	}
	// An empty body, chunked or not, runs the configured sources.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "ingestion triggered too recently")
		return
	}

	pcfg := s.base
	if len(req.Sources) > 0 {
		pcfg.Sources = req.Sources
	}

	s.mu.Lock()
	cycle := s.runner.Run(r.Context(), pcfg)
	s.mu.Unlock()

	saveCycle(r.Context(), s.store, cycle)
	writeJSON(w, http.StatusOK, cycle)
}

func (s *ingestServer) handleCycles(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	limit := store.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	cycles, err := s.store.ListCycles(r.Context(), limit)
	if err != nil {
		zap.L().Error("list cycles failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list cycles failed")
		return
	}
	writeJSON(w, http.StatusOK, cycles)
}

func (s *ingestServer) handleCycle(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	c, err := s.store.GetCycle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "cycle not found")
			return
		}
		zap.L().Error("get cycle failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get cycle failed")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *ingestServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	snap, err := s.collector.Collect(r.Context(), cfgLookback())
	if err != nil {
		zap.L().Error("collect metrics failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "collect metrics failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func cfgLookback() int {
	if cfg == nil || cfg.Monitoring.LookbackCycles <= 0 {
		return 20
	}
	return cfg.Monitoring.LookbackCycles
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
