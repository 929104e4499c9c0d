package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// Configure logging
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Mail Chat Relay Service")

	// Load configuration
	config, err := LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	// Initialize flat-file stores
	contacts := NewContactStore(config.Storage.ContactsPath())
	processed := NewProcessedStore(config.Storage.ProcessedPath())
	processed.Load()

	credentials := NewCredentialStore(config.Storage.CredentialsPath(), Credentials{
		ClientID:     config.Gmail.ClientID,
		ClientSecret: config.Gmail.ClientSecret,
		RefreshToken: config.Gmail.RefreshToken,
	})

	// Initialize optional relay-log database
	var logs *RelayLogStore
	if config.Database.Enabled() {
		logs, err = NewRelayLogStore(&config.Database)
		if err != nil {
			logrus.Fatalf("Failed to initialize relay log database: %v", err)
		}
	}

	// Initialize metrics
	metrics := NewMetrics()

	// Initialize mail fetcher
	var fetcher EmailFetcher
	if config.Gmail.UseIMAP {
		fetcher, err = NewIMAPFetcher(&config.Gmail)
		if err != nil {
			logrus.Fatalf("Failed to create IMAP fetcher: %v", err)
		}
		logrus.Info("Using IMAP for email fetching")
	} else if creds := credentials.Load(); creds.Configured() {
		fetcher, err = NewGmailFetcher(&config.Gmail, creds)
		if err != nil {
			logrus.Fatalf("Failed to create Gmail fetcher: %v", err)
		}
		logrus.Info("Using Gmail API for email fetching")
	} else {
		logrus.Warn("Gmail credentials not configured; polling is paused until credentials are saved")
	}

	// Initialize messaging gateway client
	messenger := NewGatewayClient(&config.Gateway)

	// Initialize relay pipeline
	relay := NewRelay(fetcher, contacts, processed, messenger, logs, metrics)

	// Initialize scheduler
	scheduler := NewScheduler(&config.Scheduler, relay, processed, metrics)

	// Initialize HTTP handlers
	handlers := NewHandlers(contacts, processed, credentials, messenger, relay, scheduler, logs, &config.Gmail)

	// Setup HTTP server
	router := setupRouter(handlers)
	server := &http.Server{
		Addr:         ":" + config.Server.Port,
		Handler:      router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}

	// Start scheduler
	if err := scheduler.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("Starting HTTP server on port %s", config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop scheduler and wait for in-flight jobs
	if err := scheduler.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	scheduler.Wait()

	// Final processed-set flush
	if err := processed.Flush(); err != nil {
		logrus.Errorf("Failed to flush processed emails: %v", err)
	}

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	// Close relay (and its fetcher)
	if err := relay.Close(); err != nil {
		logrus.Errorf("Failed to close relay: %v", err)
	}

	logrus.Info("Server stopped gracefully")
}

// setupRouter sets up the HTTP router with middleware
func setupRouter(handlers *Handlers) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	// Create router
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware())

	// Setup routes
	handlers.SetupRoutes(router)

	return router
}

// loggerMiddleware adds logging middleware
func loggerMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	})
}
