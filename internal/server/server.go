package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the HTTP side of the bot: payment webhooks, health and metrics.
type Server struct {
	server *http.Server
	ready  atomic.Bool
	log    *zap.Logger
}

type Dependencies struct {
	WebhookHandler http.Handler
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
}

func New(addr string, deps Dependencies) *Server {
	s := &Server{log: deps.Logger}
	r := chi.NewRouter()
	ApplyMiddlewares(r, deps.Logger)

	r.Get("/health", s.health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Post("/api/v1/webhooks/payments/{gateway_type}", deps.WebhookHandler.ServeHTTP)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetReady switches /health from "starting" to "ok".
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	status, code := "starting", http.StatusServiceUnavailable
	if s.ready.Load() {
		status, code = "ok", http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// Start blocks until the server stops. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info("http server started", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	s.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
