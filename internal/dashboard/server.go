// Package dashboard exposes the engine over a small authenticated JSON
// API: on-demand scans, reconciled positions, and order submission.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/wheelhouse-trading/wheelhouse/internal/broker"
	"github.com/wheelhouse-trading/wheelhouse/internal/orders"
	"github.com/wheelhouse-trading/wheelhouse/internal/positions"
	"github.com/wheelhouse-trading/wheelhouse/internal/scanner"
	"github.com/wheelhouse-trading/wheelhouse/internal/storage"
	"github.com/wheelhouse-trading/wheelhouse/internal/watchlist"
)

// Config holds the server's listen address and optional auth token.
type Config struct {
	Addr      string
	AuthToken string
}

// Deps are the engine components the API fronts.
type Deps struct {
	Scanner      *scanner.Scanner
	Reconciler   *positions.Reconciler
	Orchestrator *orders.Orchestrator
	Execution    broker.ExecutionGateway
	Journal      storage.Interface
	Watchlist    watchlist.Watchlist
	ScanFilter   scanner.Filter
}

// Server is the HTTP front for the engine.
type Server struct {
	router *chi.Mux
	server *http.Server
	deps   Deps
	logger *logrus.Logger
	cfg    Config
}

// NewServer wires the routes. A nil logger falls back to the standard
// one.
func NewServer(cfg Config, deps Deps, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		logger: logger,
		cfg:    cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.cfg.AuthToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/scan", s.handleScan)
	s.router.Get("/api/scan/last", s.handleLastScan)
	s.router.Get("/api/positions", s.handlePositions)
	s.router.Post("/api/orders", s.handleSubmitOrders)
	s.router.Get("/api/orders/working", s.handleWorkingOrders)
	s.router.Get("/api/orders/history", s.handleOrderHistory)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.cfg.AuthToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start blocks serving the API until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.WithField("addr", s.cfg.Addr).Info("starting dashboard server")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Scanner.Scan(r.Context(), s.deps.Watchlist, s.deps.ScanFilter, time.Now().UTC())
	if err != nil {
		s.logger.WithError(err).Error("scan failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if s.deps.Journal != nil {
		summary := storage.ScanSummary{
			ScanID:        result.ScanID,
			AsOf:          result.AsOf,
			Symbols:       s.deps.Watchlist.Len(),
			Opportunities: len(result.Opportunities),
			Errors:        len(result.Errors),
			Duration:      result.Duration.String(),
		}
		if err := s.deps.Journal.RecordScan(summary); err != nil {
			s.logger.WithError(err).Warn("recording scan summary failed")
		}
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLastScan(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Journal == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	last := s.deps.Journal.LastScan()
	if last == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, last)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Reconciler.Reconcile(r.Context(), time.Now().UTC())
	if err != nil {
		s.logger.WithError(err).Error("reconciliation failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// submitOrdersRequest is the POST /api/orders body. Account state is
// read fresh from the gateway; only the items and the dry-run flag come
// from the caller.
type submitOrdersRequest struct {
	Items  []orders.BatchItem `json:"items"`
	DryRun bool               `json:"dry_run"`
}

func (s *Server) handleSubmitOrders(w http.ResponseWriter, r *http.Request) {
	var req submitOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	buyingPower, err := s.deps.Execution.GetOptionBuyingPowerCtx(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("buying power fetch failed")
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	report, err := s.deps.Reconciler.Reconcile(r.Context(), time.Now().UTC())
	if err != nil {
		s.logger.WithError(err).Error("pre-submission reconciliation failed")
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	result, err := s.deps.Orchestrator.SubmitBatch(r.Context(), orders.BatchRequest{
		Items:       req.Items,
		DryRun:      req.DryRun,
		BuyingPower: buyingPower,
		Exposure:    report.Exposure,
	})
	if err != nil {
		s.logger.WithError(err).Error("batch submission failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWorkingOrders(w http.ResponseWriter, r *http.Request) {
	working, err := s.deps.Execution.GetWorkingOrdersCtx(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("working orders fetch failed")
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	if working == nil {
		working = []broker.WorkingOrder{}
	}
	s.writeJSON(w, http.StatusOK, working)
}

func (s *Server) handleOrderHistory(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Journal == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Journal.OutcomeHistory())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("encoding response failed")
	}
}
