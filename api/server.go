// Package api provides the HTTP API server for optionyield.
//
// It exposes endpoints to start a refresh, poll progress, read the ranked
// valuation table and list eligible instruments, plus a WebSocket stream
// of progress updates and Prometheus metrics.
package api

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
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seenimoa/optionyield/internal/config"
	"github.com/seenimoa/optionyield/internal/pipeline"
	"github.com/seenimoa/optionyield/pkg/models"
	"github.com/seenimoa/optionyield/pkg/utils"
)

// RefreshService is the part of the refresh pipeline the API drives.
type RefreshService interface {
	Refresh(ctx context.Context, concurrency int, codes []string) (*pipeline.RefreshCycle, error)
	Instruments(ctx context.Context) ([]models.Instrument, error)
	Current() *pipeline.RefreshCycle
	CurrentProgress() models.ProgressState
	CurrentResults(key models.SortKey) []models.ValuationRecord
}

// Options configures a Server.
type Options struct {
	Config   *config.Config
	Service  RefreshService
	Gatherer prometheus.Gatherer // nil uses the default registry
	Logger   *slog.Logger
	Version  string
}

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	svc      RefreshService
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	version  string
	wsHub    *WSHub
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	srv := &Server{
		cfg:      opts.Config,
		svc:      opts.Service,
		gatherer: opts.Gatherer,
		logger:   opts.Logger,
		version:  opts.Version,
		wsHub:    NewWSHub(),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.wsHub.Run(hubCtx)
	go s.pushProgress(hubCtx, s.progressInterval())

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) progressInterval() time.Duration {
	if s.cfg == nil {
		return time.Second
	}
	return s.cfg.API.ProgressInterval()
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	// CORS
	origins := []string{"*"}
	if s.cfg != nil && len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(corsOptions(origins)))

	// WebSocket upgrades need the raw connection, so they sit outside compression.
	r.Get("/ws/progress", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(zstdMiddleware)

		r.Get("/health", s.handleHealth)
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{DisableCompression: true}))

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/health", s.handleHealth)

			r.Post("/refresh", s.handleRefresh)
			r.Get("/progress", s.handleProgress)
			r.Get("/results", s.handleResults)
			r.Get("/instruments", s.handleInstruments)
			r.Get("/config", s.handleGetConfig)
		})
	})

	return r
}

// corsOptions allows credentials only for explicit origins; browsers reject
// credentialed responses to a wildcard origin.
func corsOptions(origins []string) cors.Options {
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	}
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RefreshRequest is the optional body for POST /api/v1/refresh.
type RefreshRequest struct {
	Concurrency int      `json:"concurrency,omitempty"`
	Codes       []string `json:"codes,omitempty"`
}

// RefreshResponse describes a started cycle.
type RefreshResponse struct {
	CycleID   string    `json:"cycle_id"`
	Total     int       `json:"total"`
	StartedAt time.Time `json:"started_at"`
}

// ProgressResponse is the progress view with derived fields.
type ProgressResponse struct {
	models.ProgressState
	CycleID  string  `json:"cycle_id,omitempty"`
	Fraction float64 `json:"fraction"`
	Status   string  `json:"status"`
}

// ResultsResponse is a sorted, optionally filtered result snapshot.
type ResultsResponse struct {
	CycleID string                   `json:"cycle_id,omitempty"`
	Sort    models.SortKey           `json:"sort"`
	Side    models.Side              `json:"side,omitempty"`
	Count   int                      `json:"count"`
	Total   int                      `json:"total"`
	Records []models.ValuationRecord `json:"records"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":            "ok",
			"version":           s.version,
			"market_status":     utils.MarketStatus(),
			"time_ams":          utils.FormatDateTimeAMS(utils.NowAMS()),
			"cycle_in_progress": !s.svc.CurrentProgress().Done,
		},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Concurrency < 0 {
		writeError(w, http.StatusBadRequest, "concurrency must not be negative")
		return
	}

	// The cycle outlives the request.
	cycle, err := s.svc.Refresh(context.WithoutCancel(r.Context()), req.Concurrency, req.Codes)
	switch {
	case errors.Is(err, pipeline.ErrUnknownCodes):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("refresh not started", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.wsHub.Broadcast(WSMessage{Type: "refresh_started", Data: map[string]interface{}{
		"cycle_id": cycle.ID,
		"total":    cycle.Total(),
	}})

	writeJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data: RefreshResponse{
			CycleID:   cycle.ID,
			Total:     cycle.Total(),
			StartedAt: cycle.StartedAt,
		},
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.progress()})
}

func (s *Server) progress() ProgressResponse {
	p := s.svc.CurrentProgress()
	resp := ProgressResponse{
		ProgressState: p,
		Fraction:      p.FractionComplete(),
		Status:        p.Status(),
	}
	if c := s.svc.Current(); c != nil {
		resp.CycleID = c.ID
	}
	return resp
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sortParam := q.Get("sort")
	if sortParam == "" && s.cfg != nil {
		sortParam = s.cfg.Refresh.SortKey
	}
	key, err := models.ParseSortKey(sortParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	side, err := models.ParseSide(q.Get("side"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
	}

	records := models.FilterSide(s.svc.CurrentResults(key), side)
	total := len(records)
	if limit > 0 && limit < total {
		records = records[:limit]
	}

	resp := ResultsResponse{
		Sort:    key,
		Side:    side,
		Count:   len(records),
		Total:   total,
		Records: records,
	}
	if c := s.svc.Current(); c != nil {
		resp.CycleID = c.ID
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.svc.Instruments(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: instruments})
}

// ============================================================
// Helpers
// ============================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
