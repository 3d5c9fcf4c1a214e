package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/config"
	httpDelivery "github.com/mapsync-service/internal/delivery/http"
	"github.com/mapsync-service/internal/delivery/http/handler"
	"github.com/mapsync-service/internal/infrastructure/backend"
	"github.com/mapsync-service/internal/infrastructure/lighting"
	"github.com/mapsync-service/internal/pkg/logger"
	"github.com/mapsync-service/internal/usecase"
	"github.com/mapsync-service/internal/worker"
	cacheWorker "github.com/mapsync-service/internal/worker/cache"
	hazardWorker "github.com/mapsync-service/internal/worker/hazard"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting MapSync Service")
	log.Info("Configuration loaded",
		zap.String("env", cfg.Server.Env),
		zap.String("server_addr", cfg.GetServerAddr()),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	// 3. Persistent cache tier
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := openStore(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Fatal("Failed to open cache store", zap.Error(err))
	}
	log.Info("Cache store ready", zap.String("backend", cfg.Cache.Backend))

	// 4. Local signals and backend transport
	lit, err := lighting.Load(cfg.Lighting.GeoJSONPath, log)
	if err != nil {
		log.Warn("Lighting data unavailable, route heuristic runs without it", zap.Error(err))
	}
	backendClient := backend.NewClient(&cfg.Backend, log)

	// 5. Map session
	clk := clock.New()
	session := usecase.NewMapSession(cfg, store.repo, backendClient, lit, clk, log)
	log.Info("Map session initialized", zap.Int("lit_segments", len(lit)))

	// 6. Background workers
	workers := worker.NewWorkerManager(log)
	workers.Register(hazardWorker.NewSyncWorker(&cfg.Hazard, session, clk, log))
	if store.purger != nil {
		workers.Register(cacheWorker.NewJanitorWorker(store.purger, cacheWorker.DefaultJanitorInterval, clk, log))
	}
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if err := workers.Start(workerCtx); err != nil {
		log.Fatal("Failed to start workers", zap.Error(err))
	}

	// 7. HTTP server
	server := httpDelivery.NewServer(
		cfg,
		log,
		handler.NewSessionHandler(session, log),
	)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started successfully",
		zap.String("address", cfg.GetServerAddr()),
		zap.String("env", cfg.Server.Env),
	)

	// 8. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	if err := workers.Stop(); err != nil {
		log.Error("Workers shutdown error", zap.Error(err))
	}
	stopWorkers()

	session.Close()

	if err := store.close(); err != nil {
		log.Error("Failed to close cache store", zap.Error(err))
	}

	log.Info("Server stopped successfully")
}
