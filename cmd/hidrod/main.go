package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hidrodados/coletor/internal/adapter/ana"
	"github.com/hidrodados/coletor/internal/adapter/inmet"
	"github.com/hidrodados/coletor/internal/api"
	"github.com/hidrodados/coletor/internal/config"
	"github.com/hidrodados/coletor/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	anaClient := ana.NewClient(cfg.ANABaseURL, cfg.RequestTimeout, logger, metrics)
	inmetClient := inmet.NewClient(cfg.INMETBaseURL, cfg.RequestTimeout, logger, metrics)

	srv := api.New(cfg, anaClient, inmetClient, logger, metrics, func() error { return nil })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("hidrod starting",
		"addr", cfg.HTTPAddr,
		"ana", cfg.ANABaseURL,
		"inmet", cfg.INMETBaseURL,
		"merge", cfg.MergeBaseURL)

	if err := srv.Run(ctx); err != nil {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
