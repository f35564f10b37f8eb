package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/beaconchat/beacon/pkg/config"
	"github.com/beaconchat/beacon/pkg/logging"
)

// Server serves the WebSocket endpoint, the static chat page, and the
// operational endpoints
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *logging.Logger
}

// New builds the server around the given WebSocket handler
func New(cfg *config.Config, wsHandler http.Handler, gatherer prometheus.Gatherer, log *logging.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Handle("/ws", wsHandler)
	router.Get("/healthz", handleHealth)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if _, err := os.Stat(cfg.Server.StaticDir); err == nil {
		router.Handle("/*", http.FileServer(http.Dir(cfg.Server.StaticDir)))
	} else {
		log.Warn("static dir not found, page serving disabled", zap.String("dir", cfg.Server.StaticDir))
	}

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.Addr(),
			Handler: router,
		},
		router: router,
		log:    log,
	}
}

// Handler exposes the mux, for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in a background goroutine
func (s *Server) Start() {
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatal("http server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
