package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"formshield-server/configs"
	httpEngine "formshield-server/internal/app/http"
	"formshield-server/internal/logics"
	"formshield-server/internal/repositories"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to configs.yaml")
	flag.Parse()

	configs.Init(configPath)
	defer configs.Logger.Sync()

	configs.Logger.Info("Starting formshield server")

	repositories.Init()

	logics.CleanupSvc.Start()
	defer logics.CleanupSvc.Stop()

	server := httpEngine.NewServer()

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			configs.Logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	configs.Logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		configs.Logger.Error("Shutdown failed", zap.Error(err))
	}
}
