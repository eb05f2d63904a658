package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/document-extractor/config"
	"github.com/feichai0017/document-extractor/internal/service/document"
	"github.com/feichai0017/document-extractor/pkg/logger"
	"github.com/feichai0017/document-extractor/pkg/queue"
	"github.com/feichai0017/document-extractor/pkg/worker"
)

func main() {
	cfg := config.GetConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(cfg.Log.OutputPaths),
		logger.WithErrorPaths(cfg.Log.ErrorPaths),
		logger.WithDevelopment(cfg.Log.Development),
		logger.WithInitialFields(map[string]interface{}{"service": "extractor-worker"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	docService, err := document.GetService(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create document service", logger.Error(err))
		os.Exit(1)
	}

	documentWorker, err := worker.NewDocumentWorker(&worker.Config{
		Queue:       queue.ConfigFromRedis(cfg.Redis),
		Concurrency: cfg.Worker.Concurrency,
		Queues:      queue.Queues,
	}, docService, log)
	if err != nil {
		log.Error("Failed to create document worker", logger.Error(err))
		os.Exit(1)
	}

	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker started", logger.Int("concurrency", cfg.Worker.Concurrency))

	<-ctx.Done()

	log.Info("Shutting down worker...")
	documentWorker.Stop()
	if err := docService.Close(); err != nil {
		log.Error("Failed to release document service", logger.Error(err))
	}
	log.Info("Worker stopped")
}
