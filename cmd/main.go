package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"voice-archive/pkg/api"
	"voice-archive/pkg/config"
	"voice-archive/pkg/pipeline"
	"voice-archive/pkg/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := config.Load()

	archive, err := newArchive(cfg.Storage)
	if err != nil {
		logger.Fatal("failed to initialize archive", zap.Error(err))
	}
	defer archive.Close()
	logger.Info("archive ready", zap.String("backend", cfg.Storage.Backend))

	manager := pipeline.NewManager(cfg.Pipeline, cfg.Metadata, archive, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.Start(ctx); err != nil {
		logger.Fatal("failed to start pipeline", zap.Error(err))
	}
	defer manager.Stop()

	handlers := api.NewHandlers(manager, archive, cfg, logger)
	router := mux.NewRouter()
	handlers.Register(router)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func newArchive(cfg config.StorageConfig) (storage.Archive, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryArchive(), nil
	case "badger":
		return storage.NewLocalArchive(cfg.Path)
	case "remote":
		if cfg.RemoteBaseURL == "" {
			return nil, fmt.Errorf("remote backend requires STORAGE_REMOTE_URL")
		}
		return storage.NewRemoteArchive(cfg.RemoteBaseURL, cfg.RemoteAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
