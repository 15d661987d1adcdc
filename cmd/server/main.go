package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"stock-analyzer/internal/config"
	"stock-analyzer/internal/handlers"
	"stock-analyzer/internal/monitoring"
	"stock-analyzer/internal/pipeline"
	"stock-analyzer/internal/providers"
	"stock-analyzer/internal/routes"
	"stock-analyzer/internal/runs"
	"stock-analyzer/internal/types"
	"stock-analyzer/pkg/logger"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	// Initialize logger
	logger.Init(cfg.Logger)
	log := logger.New(cfg.Logger)

	log.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"port":        cfg.Server.Port,
		"source":      cfg.Source.Name,
		"version":     version,
	}).Info("Starting Stock Analyzer server")

	// Initialize metrics
	metrics := monitoring.NewPrometheusMetrics(prometheus.DefaultRegisterer)

	// Initialize stock source
	source, err := providers.NewFactory(cfg.Source, cfg.Cache, log, metrics).Build()
	if err != nil {
		log.WithError(err).Fatal("Failed to create stock source")
	}

	// Test source connection
	if checker, ok := source.(types.HealthChecker); ok {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Source.Timeout)
		if err := checker.Ping(ctx); err != nil {
			log.WithError(err).Warn("Stock source check failed - service will start but runs may fail")
		} else {
			log.Info("Stock source reachable")
		}
		cancel()
	}

	// Initialize pipeline and run registry
	service := pipeline.NewService(source, pipeline.ConfigFrom(cfg.Pipeline), log, metrics)
	registry := runs.NewRegistry(service, runs.Config{
		Retention:  cfg.Runs.Retention,
		MaxActive:  cfg.Runs.MaxActive,
		RunTimeout: cfg.Pipeline.RunTimeout,
	}, log)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go registry.RunSweeper(sweepCtx, cfg.Runs.SweepInterval)

	// Initialize HTTP handlers and routes
	routerConfig := &routes.RouterConfig{
		Debug:          cfg.IsDevelopment(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	router := routes.NewRouter(
		handlers.NewHealthHandler(source, registry, cfg.Environment, version),
		handlers.NewStocksHandler(source, log),
		handlers.NewAnalysisHandler(service, log),
		handlers.NewRunsHandler(registry, cfg.WebSocket, log),
		prometheus.DefaultGatherer,
		metrics,
		log,
		routerConfig,
	)
	router.SetupRoutes(routerConfig)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.WithField("addr", server.Addr).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Cancel runs in progress before closing connections so streams see the end
	if err := registry.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Runs still active at shutdown")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	if closer, ok := source.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.WithError(err).Error("Failed to close stock source")
		}
	}

	log.Info("Server exited")
}
