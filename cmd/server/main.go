package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-extractor/api/handlers"
	"github.com/feichai0017/document-extractor/api/routes"
	"github.com/feichai0017/document-extractor/config"
	"github.com/feichai0017/document-extractor/internal/service/document"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

func main() {
	cfg := config.GetConfig()

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(cfg.Log.OutputPaths),
		logger.WithErrorPaths(cfg.Log.ErrorPaths),
		logger.WithDevelopment(cfg.Log.Development),
		logger.WithInitialFields(map[string]interface{}{"service": "extractor-api"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docService, err := document.GetService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create document service", logger.Error(err))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = 32 << 20
	routes.SetupRoutes(r, handlers.NewHandlers(docService, log), cfg.Server, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Extraction.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
	if err := docService.Close(); err != nil {
		log.Error("Failed to release document service", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Server stopped")
}
