package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prompt-share/backend/internal/app"
	"prompt-share/backend/internal/bootstrap"
	appLogger "prompt-share/backend/internal/infra/logger"
	"prompt-share/backend/internal/infra/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := appLogger.Init(); err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer appLogger.Sync()
	logger := appLogger.S().With("component", "main")

	metrics.MustRegister()

	resources, err := app.Bootstrap(ctx)
	if err != nil {
		logger.Fatalw("bootstrap failed", "error", err)
	}
	defer func() {
		if err := resources.Close(); err != nil {
			logger.Warnw("resource cleanup error", "error", err)
		}
	}()

	application, err := bootstrap.BuildApplication(ctx, appLogger.S(), resources)
	if err != nil {
		logger.Fatalw("build application failed", "error", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", resources.Flags.HTTPPort),
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infow("http server listening", "addr", srv.Addr, "mode", resources.Flags.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("http server shutdown error", "error", err)
	}

	// 退出前把缓冲中的浏览量刷回数据库，减少计数丢失。
	application.Search.FlushViewBuffer(shutdownCtx)
}
