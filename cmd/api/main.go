package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calin/convohist/internal/api"
	"github.com/calin/convohist/internal/config"
	"github.com/calin/convohist/internal/crm"
	"github.com/calin/convohist/internal/export"
	"github.com/calin/convohist/internal/logger"
	"github.com/calin/convohist/internal/repository"
	"github.com/calin/convohist/internal/service"
	"github.com/calin/convohist/internal/sso"
	"github.com/calin/convohist/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database for the export audit log
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.Fatalf("Failed to initialize database: %v", err)
	}
	auditRepo := repository.NewExportHistoryRepository(db)

	// Initialize artifact storage
	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		appLogger.Fatalf("Failed to initialize storage: %v", err)
	}
	if s3Store, ok := objectStorage.(*storage.S3Storage); ok {
		if err := s3Store.EnsureBucket(context.Background()); err != nil {
			appLogger.Fatalf("Failed to ensure storage bucket: %v", err)
		}
	}

	// CRM credentials and API client
	tokens := crm.NewTokenStore(&crm.TokenStoreConfig{
		BaseURL:      cfg.CRM.BaseURL,
		ClientID:     cfg.CRM.ClientID,
		ClientSecret: cfg.CRM.ClientSecret,
	}, appLogger)

	crmClient := crm.NewClient(&crm.ClientConfig{
		BaseURL: cfg.CRM.BaseURL,
		Timeout: time.Duration(cfg.CRM.TimeoutSec) * time.Second,
	}, tokens, appLogger)

	historyService := crm.NewHistoryService(crmClient, &crm.HistoryConfig{
		PageSize:  cfg.CRM.PageSize,
		PageDelay: cfg.CRM.PageDelay(),
	}, appLogger)

	contactService := crm.NewContactService(crmClient, appLogger)

	// PDF renderer
	renderer := export.NewRenderer(&export.RendererConfig{
		EmailBodyLimit:  cfg.Export.EmailBodyLimit,
		TranscriptLimit: cfg.Export.TranscriptLimit,
	}, appLogger)

	// Export job controller
	registry := service.NewRegistry()
	exportService := service.NewExportService(
		registry,
		historyService,
		renderer,
		objectStorage,
		auditRepo,
		appLogger,
		&service.ExportServiceConfig{
			Retention:    cfg.Export.Retention(),
			ReapInterval: cfg.Export.ReapInterval(),
		},
	)

	// Background reaper for expired jobs and artifacts
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	exportService.StartReaper(reaperCtx)

	// SSO decryptor is optional
	var decryptor *sso.Decryptor
	if cfg.CRM.SSOKey != "" {
		decryptor, err = sso.NewDecryptor(cfg.CRM.SSOKey)
		if err != nil {
			appLogger.Fatalf("Failed to initialize SSO decryptor: %v", err)
		}
	}

	// Setup router
	router := api.SetupRouter(&api.RouterDeps{
		Exports:   exportService,
		Contacts:  contactService,
		Tokens:    tokens,
		Audit:     auditRepo,
		Decryptor: decryptor,
	}, &cfg.Server, appLogger)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.Infof("Starting API server: port=%d, mode=%s", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	stopReaper()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Server exited")
}
