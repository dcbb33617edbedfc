package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mealcycle/mealcycle/internal/app"
	"github.com/mealcycle/mealcycle/internal/platform/config"
	"github.com/mealcycle/mealcycle/internal/platform/logging"
	"github.com/mealcycle/mealcycle/internal/platform/otel"
)

func main() {
	var cfg app.Config
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("parse config: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "mealcycle")
	if err != nil {
		config.Exitf("setup tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("shutdown tracing", zap.Error(err))
		}
	}()

	service, err := app.New(cfg, logger)
	if err != nil {
		config.Exitf("initialize service: %v", err)
	}
	defer func() {
		if err := service.Close(); err != nil {
			logger.Warn("close service", zap.Error(err))
		}
	}()

	if err := service.Run(ctx); err != nil {
		config.Exitf("serve: %v", err)
	}
}
