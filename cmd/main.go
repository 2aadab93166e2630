package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/proxyscope/internal/api"
	"github.com/proxyscope/internal/config"
	"github.com/proxyscope/internal/engine"
	"github.com/proxyscope/internal/metrics"
	"github.com/proxyscope/internal/realip"
	"github.com/proxyscope/internal/storage"
	"github.com/proxyscope/internal/table"
)

const version = "1.0.0"

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)
	log.Infof("Starting ProxyScope v%s", version)

	// Load configuration
	cfg, err := config.Load("config.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set log level and format
	if level, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Logging.Format == "text" {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	// Set GOMAXPROCS to use all available CPUs
	numCPU := runtime.NumCPU()
	runtime.GOMAXPROCS(numCPU)
	log.Infof("GOMAXPROCS set to %d", numCPU)

	// Initialize metrics
	metricsCollector := metrics.NewCollector(cfg.Metrics.Namespace)

	// Initialize storage
	store, err := storage.NewStorage(cfg.Storage.Type, cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Initialize the proxy table
	tbl := table.New(store, metricsCollector, cfg.Storage.PersistIntervalSeconds)
	defer tbl.Close()

	// Load existing proxies from storage
	if err := tbl.LoadFromStorage(); err != nil {
		log.Warnf("Failed to load saved proxies: %v (starting fresh)", err)
	}

	// Initialize the engine
	timeout := time.Duration(cfg.Engine.RequestTimeoutSeconds) * time.Second
	resolver := realip.NewResolver(cfg.Engine.RealIPURL, timeout)
	eng := engine.New(engine.Options{
		Threads:      cfg.Engine.ThreadCount,
		Timeout:      timeout,
		Delay:        time.Duration(cfg.Engine.RequestDelaySeconds) * time.Second,
		JudgeURL:     cfg.Engine.JudgeURL,
		UserAgent:    cfg.Engine.UserAgent,
		SocksEnabled: cfg.Engine.SocksEnabled,
	}, tbl, resolver, metricsCollector)

	// Start API server
	apiServer := api.NewServer(cfg, tbl, metricsCollector, eng)
	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	log.Infof("Service started successfully on %s", cfg.API.Addr)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down gracefully...")

	// Stop any batch in flight before closing
	eng.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("API server shutdown error: %v", err)
	}

	log.Info("Shutdown complete")
}
