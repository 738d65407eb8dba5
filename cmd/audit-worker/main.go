package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iliyamo/ceremony-admission/internal/config"
	"github.com/iliyamo/ceremony-admission/internal/database"
	"github.com/iliyamo/ceremony-admission/internal/logger"
	"github.com/iliyamo/ceremony-admission/internal/queue"
	"github.com/iliyamo/ceremony-admission/internal/repository"
)

// The audit worker drains the scan.recorded queue into the scans table.
// It is only needed when the server runs with AUDIT_SINK=queue.
func main() {
	cfg := config.Load()
	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		lg.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	lg.Info("audit worker started", zap.String("queue", queue.ScanQueueName))
	err = queue.StartScanConsumer(ctx, cfg.RabbitURL, repository.NewScanRepo(db), lg)
	if err != nil && !errors.Is(err, context.Canceled) {
		lg.Fatal("scan consumer", zap.Error(err))
	}
	lg.Info("audit worker stopped")
}
