package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	container "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Container"
	"gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.DashboardService/controllers"
)

func main() {
	// Initialize dependency injection container
	ctr, err := container.NewContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	config := ctr.GetConfig()
	logger.Logger.Info().Str("hub", config.Hub.URL).Str("store", config.Store.Type).Msg("Starting SFY dashboard service")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runRepo, err := ctr.GetRunRepository(ctx)
	if err != nil {
		logger.FatalWithError(err, "Failed to initialize run history store")
	}

	discoveryService, err := ctr.GetDiscoveryService(ctx)
	if err != nil {
		logger.FatalWithError(err, "Failed to initialize discovery")
	}

	healthChecker, err := ctr.GetHealthChecker(ctx)
	if err != nil {
		logger.FatalWithError(err, "Failed to initialize health checker")
	}

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Configure CORS from config
	corsConfig := cors.Config{
		AllowOrigins:     config.CORS.AllowedOrigins,
		AllowMethods:     config.CORS.AllowedMethods,
		AllowHeaders:     config.CORS.AllowedHeaders,
		ExposeHeaders:    config.CORS.ExposedHeaders,
		AllowCredentials: config.CORS.AllowCredentials,
		MaxAge:           time.Duration(config.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	// Create controllers and register routes
	fleetController := controllers.NewFleetController(discoveryService, runRepo, logger)
	healthController := controllers.NewHealthController(healthChecker, logger)

	fleetController.RegisterRoutes(router)
	healthController.RegisterRoutes(router)

	port := config.Server.Port

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("HTTP server starting on port " + port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithError(err, "Failed to start HTTP server")
		}
	}()

	runCtx, stopRuns := context.WithCancel(context.Background())
	defer stopRuns()

	if err := discoveryService.Start(runCtx); err != nil {
		logger.FatalWithError(err, "Failed to start discovery")
	}

	logger.Info("Dashboard service running... press Ctrl+C to stop")

	// Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")
	stopRuns()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Server forced to shutdown")
	}
}
