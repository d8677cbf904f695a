package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"LendLedger/internal/observability"
	"LendLedger/internal/query"
)

const (
	defaultDayDataLimit  = 30
	maxDayDataLimit      = 365
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// HTTPServer serves the read API, health probes, and Prometheus metrics.
type HTTPServer struct {
	server *http.Server
	log    zerolog.Logger
}

// Deps holds everything the handlers need.
type Deps struct {
	Query         *query.Service
	HealthChecker *observability.HealthChecker
}

func NewHTTPServer(addr string, deps *Deps) *HTTPServer {
	s := &HTTPServer{
		log: observability.NewLogger("http"),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", deps.HealthChecker.LivenessHandler)
	r.Get("/readyz", deps.HealthChecker.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Get("/markets", s.listMarkets(deps.Query))
		api.Get("/markets/{id}", s.getMarket(deps.Query))
		api.Get("/markets/{id}/day-data", s.marketDayData(deps.Query))
		api.Get("/accounts/{id}", s.getAccount(deps.Query))
		api.Get("/liquidation-day-data", s.liquidationDayData(deps.Query))
		api.Get("/comptroller", s.getComptroller(deps.Query))
		api.Get("/activity", s.recentActivity(deps.Query))
		api.Get("/watermark", s.getWatermark(deps.Query))
		api.Get("/admin/integrity", s.verifyIntegrity(deps.Query))
	})

	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start blocks until the listener fails or ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) listMarkets(q *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := q.ListMarkets(r.Context())
		s.respond(w, resp, err)
	}
}

func (s *HTTPServer) getMarket(q *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := q.GetMarket(r.Context(), chi.URLParam(r, "id"))
		s.respond(w, resp, err)
	}
}

func (s *HTTPServer) marketDayData(q *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from := parseInt64(r.URL.Query().Get("from"))
		to := parseInt64(r.URL.Query().Get("to"))
		limit := clampLimit(r.URL.Query().Get("limit"), defaultDayDataLimit, maxDayDataLimit)

		resp, err := q.GetMarketDayData(r.Context(), chi.URLParam(r, "id"), from, to, limit)
		s.respond(w, resp, err)
	}
}

func (s *HTTPServer) getAccount(q *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := q.GetAccount(r.Context(), chi.URLParam(r, "id"))
		s.respond(w, resp, err)
	}
}

func (s *HTTPServer) liquidationDayData(q *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from := parseInt64(r.URL.Query().Get("from"))
		to := parseInt64(r.URL.Query().Get("to"))
		limit := clampLimit(r.URL.Query().Get("limit"), defaultDayDataLimit, maxDayDataLimit)

		resp, err := q.GetLiquidationDayData(r.Context(), r.URL.Query().Get("repayMarket"), from, to, limit)
		s.respond(w, resp, err)
	}
}

func (s *HTTPServer) getComptroller(q *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := q.GetComptroller(r.Context())
		s.respond(w, resp, err)
	}
}

func (s *HTTPServer) recentActivity(q *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := clampLimit(r.URL.Query().Get("limit"), defaultActivityLimit, maxActivityLimit)
		resp, err := q.RecentActivity(r.Context(), r.URL.Query().Get("emitter"), limit)
		s.respond(w, resp, err)
	}
}

func (s *HTTPServer) getWatermark(q *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := q.GetWatermark(r.Context())
		s.respond(w, resp, err)
	}
}

func (s *HTTPServer) verifyIntegrity(q *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := q.VerifyIntegrity(r.Context())
		s.respond(w, resp, err)
	}
}

func (s *HTTPServer) respond(w http.ResponseWriter, body interface{}, err error) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case errors.Is(err, sql.ErrNoRows):
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	case err != nil:
		s.log.Error().Err(err).Msg("query failed")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "internal error"})
	default:
		if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
			s.log.Error().Err(encErr).Msg("encode response")
		}
	}
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func clampLimit(s string, def, max int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
