package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/beaconchat/beacon/pkg/config"
	"github.com/beaconchat/beacon/pkg/httpserver"
	"github.com/beaconchat/beacon/pkg/logging"
	"github.com/beaconchat/beacon/pkg/metrics"
	"github.com/beaconchat/beacon/pkg/presence"
	"github.com/beaconchat/beacon/pkg/relay"
	"github.com/beaconchat/beacon/pkg/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logging
	if err := logging.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger := logging.Get()
	defer logger.Sync()

	logger.Info("starting beacon relay",
		zap.String("addr", cfg.Addr()),
		zap.Duration("grace_period", cfg.Presence.GracePeriod))

	// Metrics registry
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	// Presence store and event router
	store := presence.NewStore(cfg.Presence.GracePeriod)
	router := relay.NewRouter(store, logger, m)

	// Grace-period sweeper
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go router.RunSweeper(sweepCtx, cfg.Presence.SweepInterval)

	// WebSocket hub and handler
	hub := websocket.NewHub(logger, m)
	hub.Start()
	wsHandler := websocket.NewClientHandler(hub, router, logger, cfg.Server)

	// HTTP server
	server := httpserver.New(cfg, wsHandler, promReg, logger)
	server.Start()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping http server", zap.Error(err))
	}

	stopSweeper()
	hub.Stop()

	logger.Info("beacon relay stopped")
}
