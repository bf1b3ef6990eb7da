package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/stochastix/riskd/internal/cache"
	"github.com/stochastix/riskd/internal/config"
	"github.com/stochastix/riskd/internal/engine"
	"github.com/stochastix/riskd/internal/messaging"
	"github.com/stochastix/riskd/internal/risk"
	"github.com/stochastix/riskd/internal/server"
	"github.com/stochastix/riskd/internal/store"
	"github.com/stochastix/riskd/internal/telemetry"
	"github.com/stochastix/riskd/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.New(logLevel, os.Getenv("LOG_FORMAT"))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	cfgManager := config.NewManager(zapLogger)
	cfg, err := cfgManager.Load()
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := cfgManager.Watch(); err != nil {
		zapLogger.Warn("Config hot-reload unavailable", zap.Error(err))
	}
	defer cfgManager.Close()

	shutdownTracer, err := telemetry.InitTracer("riskd")
	if err != nil {
		zapLogger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	repo, err := store.Open(cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open database", zap.Error(err))
	}
	defer repo.Close()

	ctx := context.Background()

	var resultCache engine.ResultCache
	if cfg.Redis.Enabled {
		rc, err := cache.New(ctx, cfg.Redis, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect result cache", zap.Error(err))
		}
		defer rc.Close()
		resultCache = rc
	}

	var publisher *messaging.Publisher
	if cfg.Kafka.Enabled {
		publisher, err = messaging.NewPublisher(cfg.Kafka, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create event publisher", zap.Error(err))
		}
		defer publisher.Close()
	}

	eng := engine.New(zapLogger, cfg.Engine, repo, resultCache, publisher)
	riskSvc := risk.NewService(zapLogger, cfg.Risk.MaxPortfolioVaR)

	srv := server.New(zapLogger, cfg, eng, riskSvc, repo, publisher)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zapLogger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.GracefulShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Engine shutdown failed", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		zapLogger.Error("Tracer shutdown failed", zap.Error(err))
	}

	zapLogger.Info("Shutdown complete")
}
