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
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/cache"
	"marketplace-sync-service/internal/clients/ebay"
	"marketplace-sync-service/internal/config"
	"marketplace-sync-service/internal/database"
	"marketplace-sync-service/internal/encryption"
	"marketplace-sync-service/internal/handlers"
	"marketplace-sync-service/internal/jobs"
	"marketplace-sync-service/internal/middleware"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
	"marketplace-sync-service/internal/secrets"
	"marketplace-sync-service/internal/services"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	entry := logrus.NewEntry(logger).WithField("service", "marketplace-sync-service")

	// Resolve the marketplace app secret from GCP Secret Manager when configured
	var secretManager *secrets.GCPSecretManager
	if cfg.GCPProjectID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		sm, err := secrets.NewGCPSecretManager(ctx, cfg.GCPProjectID)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize GCP Secret Manager")
		} else {
			secretManager = sm
			defer secretManager.Close()
			if cfg.Marketplace.ClientSecretName != "" {
				if err := secretManager.ResolveMarketplaceCredentials(ctx, &cfg.Marketplace); err != nil {
					logger.WithError(err).Warn("Failed to resolve marketplace credentials")
				} else {
					logger.Info("Marketplace credentials resolved from GCP Secret Manager")
				}
			}
		}
		cancel()
	}

	// Buyer PII and OAuth tokens are encrypted with per-tenant keys
	var piiEncryptor *encryption.PIIEncryptor
	switch {
	case secretManager != nil:
		piiEncryptor = encryption.NewPIIEncryptor(secretManager)
		logger.Info("PII encryption keys stored in GCP Secret Manager")
	case cfg.PIIEncryptionKey != "":
		keys, err := encryption.NewStaticKeyProvider(cfg.PIIEncryptionKey)
		if err != nil {
			logger.WithError(err).Fatal("Invalid PII_ENCRYPTION_KEY")
		}
		piiEncryptor = encryption.NewPIIEncryptor(keys)
		logger.Info("PII encryption keys derived from PII_ENCRYPTION_KEY")
	case cfg.Environment == "production":
		logger.Fatal("PII encryption requires GCP_PROJECT_ID or PII_ENCRYPTION_KEY in production")
	default:
		logger.Warn("PII encryption disabled, buyer data and tokens are stored in plaintext")
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.WithError(err).Warn("Auto-migration failed")
	} else {
		logger.Info("Database models migrated")
	}

	// Initialize repositories
	connectionRepo := repository.NewConnectionRepository(db, piiEncryptor)
	selectionRepo := repository.NewSelectionRepository(db)
	orderRepo := repository.NewOrderRepository(db, piiEncryptor)
	inventoryRepo := repository.NewInventoryRepository(db)
	syncRepo := repository.NewSyncRepository(db)

	// Marketplace clients and listing cache
	clientFactory := ebay.NewFactory(cfg.Marketplace, entry)
	listingCache := cache.NewListingCache(cfg.RedisURL, cfg.ListingCacheTTL)
	defer listingCache.Close()
	if listingCache.Enabled() {
		logger.Info("Listing cache connected to Redis")
	} else {
		logger.Info("Listing cache disabled")
	}

	// Initialize services
	tokenService := services.NewTokenService(connectionRepo, selectionRepo, clientFactory, models.Environment(cfg.Marketplace.Environment), entry)
	selectionService := services.NewSelectionService(tokenService, selectionRepo, entry)
	discoveryService := services.NewDiscoveryService(tokenService, listingCache, entry)
	orderSyncService := services.NewOrderSyncService(tokenService, selectionService, orderRepo, entry)
	fulfillmentService := services.NewFulfillmentService(tokenService, orderRepo, entry)
	inventoryService := services.NewInventoryService(tokenService, selectionService, inventoryRepo, entry)
	syncService := services.NewSyncService(tokenService, syncRepo, selectionService, orderSyncService, inventoryService, entry)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db)
	connectionHandler := handlers.NewConnectionHandler(tokenService)
	listingHandler := handlers.NewListingHandler(discoveryService, selectionService)
	orderHandler := handlers.NewOrderHandler(orderSyncService, fulfillmentService)
	inventoryHandler := handlers.NewInventoryHandler(inventoryService)
	syncHandler := handlers.NewSyncHandler(syncService, cfg.AutoSync)

	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET is not set, the cron endpoint rejects every call")
	}

	router := setupRouter(cfg, healthHandler, connectionHandler, listingHandler, orderHandler, inventoryHandler, syncHandler)

	// In-process schedule for deployments without an external cron
	jobCtx, jobCancel := context.WithCancel(context.Background())
	var autoSyncJob *jobs.AutoSyncJob
	if cfg.AutoSync.Interval > 0 {
		autoSyncJob = jobs.NewAutoSyncJob(syncService, services.AutoSyncOptions{
			MaxPages:         cfg.AutoSync.MaxPages,
			MaxConnections:   cfg.AutoSync.MaxConnections,
			PageSize:         cfg.AutoSync.PageSize,
			RefreshInventory: cfg.AutoSync.RefreshInventory,
		}, cfg.AutoSync.Interval, entry).WithFullSyncEvery(cfg.AutoSync.FullSyncEvery)
		go autoSyncJob.Start(jobCtx)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Infof("Marketplace sync service starting on port %s (env: %s)", cfg.Port, cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	<-quit
	logger.Info("Shutting down server...")

	jobCancel()
	if autoSyncJob != nil {
		autoSyncJob.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server shutdown complete")
}

// setupRouter configures the HTTP router
func setupRouter(
	cfg *config.Config,
	healthHandler *handlers.HealthHandler,
	connectionHandler *handlers.ConnectionHandler,
	listingHandler *handlers.ListingHandler,
	orderHandler *handlers.OrderHandler,
	inventoryHandler *handlers.InventoryHandler,
	syncHandler *handlers.SyncHandler,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health check
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Cron trigger authenticates with the shared secret, not a tenant
	cron := router.Group("/api/v1/cron", middleware.CronAuth(cfg.CronSecret))
	{
		cron.GET("/ebay-sync", syncHandler.Run)
		cron.POST("/ebay-sync", syncHandler.Run)
		cron.GET("/ebay-sync/runs", syncHandler.Runs)
	}

	// API routes - require tenant ID
	v1 := router.Group("/api/v1")
	v1.Use(middleware.TenantMiddleware(), middleware.RequireTenantID())
	{
		ebayRoutes := v1.Group("/ebay")
		{
			ebayRoutes.GET("/auth-url", connectionHandler.AuthURL)
			ebayRoutes.POST("/connections/exchange", connectionHandler.Exchange)
			ebayRoutes.GET("/connections", connectionHandler.List)
			ebayRoutes.DELETE("/connections/:id", connectionHandler.Delete)

			ebayRoutes.GET("/connections/:id/listings", listingHandler.Discover)
			ebayRoutes.GET("/connections/:id/selection", listingHandler.GetSelection)
			ebayRoutes.PUT("/connections/:id/selection", listingHandler.SaveSelection)

			ebayRoutes.POST("/connections/:id/orders/sync", orderHandler.Sync)
			ebayRoutes.POST("/connections/:id/orders/:orderId/fulfill", orderHandler.Fulfill)
			ebayRoutes.GET("/orders", orderHandler.List)
			ebayRoutes.GET("/orders/:orderId", orderHandler.Get)

			ebayRoutes.POST("/connections/:id/inventory/refresh", inventoryHandler.Refresh)
			ebayRoutes.PUT("/connections/:id/inventory/quantity", inventoryHandler.SetQuantity)
		}
	}

	return router
}
