package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handlers contains all HTTP handlers of the control surface
type Handlers struct {
	contacts    *ContactStore
	processed   *ProcessedStore
	credentials *CredentialStore
	messenger   Messenger
	relay       *Relay
	scheduler   *Scheduler
	logs        *RelayLogStore
	gmailConfig *GmailConfig
}

// NewHandlers creates new HTTP handlers
func NewHandlers(contacts *ContactStore, processed *ProcessedStore, credentials *CredentialStore, messenger Messenger, relay *Relay, scheduler *Scheduler, logs *RelayLogStore, gmailConfig *GmailConfig) *Handlers {
	return &Handlers{
		contacts:    contacts,
		processed:   processed,
		credentials: credentials,
		messenger:   messenger,
		relay:       relay,
		scheduler:   scheduler,
		logs:        logs,
		gmailConfig: gmailConfig,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Health check
	router.GET("/health", h.HealthCheck)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		// Messaging channel
		api.GET("/messaging/status", h.GetMessagingStatus)

		// Contact directory
		api.GET("/contacts", h.GetContacts)
		api.POST("/contacts", h.UpsertContact)
		api.DELETE("/contacts/:email", h.DeleteContact)

		// Gmail credentials
		api.GET("/credentials", h.GetCredentials)
		api.POST("/credentials", h.UpdateCredentials)

		// Relay logs
		api.GET("/logs", h.GetLogs)

		// Scheduler control
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:             "running",
		MessagingConnected: h.messenger.Ready(),
		ProcessedCount:     h.processed.Count(),
	})
}

// GetMessagingStatus returns the messaging channel session status
func (h *Handlers) GetMessagingStatus(c *gin.Context) {
	response := MessagingStatusResponse{}
	if name, identifier, ok := h.messenger.Info(); ok {
		response.Connected = true
		response.Info = &MessagingInfo{
			Name:       name,
			Identifier: identifier,
		}
	}
	c.JSON(http.StatusOK, response)
}

// GetContacts returns the full contact directory
func (h *Handlers) GetContacts(c *gin.Context) {
	contacts, err := h.contacts.GetAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "storage_error",
			Message: "Failed to load contacts",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, contacts)
}

// UpsertContact adds or updates a contact
func (h *Handlers) UpsertContact(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Email and phone are required",
			Code:    http.StatusBadRequest,
		})
		return
	}

	contacts, err := h.contacts.Upsert(req.Email, req.Phone)
	if err != nil {
		logrus.Errorf("Failed to save contact: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "storage_error",
			Message: "Failed to save contact",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"contacts": contacts,
	})
}

// DeleteContact removes a contact
func (h *Handlers) DeleteContact(c *gin.Context) {
	removed, err := h.contacts.Remove(c.Param("email"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "storage_error",
			Message: "Failed to delete contact",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetCredentials reports whether Gmail credentials are configured. Secret
// values are never returned.
func (h *Handlers) GetCredentials(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"configured": h.credentials.Configured(),
	})
}

// UpdateCredentials saves new Gmail credentials and reconfigures the mail
// fetcher
func (h *Handlers) UpdateCredentials(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "All Gmail credentials are required",
		})
		return
	}

	creds := Credentials{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		RefreshToken: req.RefreshToken,
	}

	if err := h.credentials.Save(creds); err != nil {
		logrus.Errorf("Failed to save credentials: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to save credentials",
		})
		return
	}

	fetcher, err := NewGmailFetcher(h.gmailConfig, creds)
	if err != nil {
		logrus.Errorf("Failed to reconfigure Gmail fetcher: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to reconfigure Gmail client",
		})
		return
	}
	h.relay.SetFetcher(fetcher)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetLogs returns relay log entries with pagination
func (h *Handlers) GetLogs(c *gin.Context) {
	if h.logs == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "logs_disabled",
			Message: "Relay log database is not configured",
			Code:    http.StatusServiceUnavailable,
		})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	entries, total, err := h.logs.List(page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch relay logs",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs": entries,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// RunOnce triggers one relay pass
func (h *Handlers) RunOnce(c *gin.Context) {
	h.scheduler.RunOnce()
	c.JSON(http.StatusOK, gin.H{
		"message": "Relay pass completed",
	})
}

// GetSchedulerStatus returns the current scheduler status
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	status := "stopped"
	var nextRun, lastRun string
	if h.scheduler.IsRunning() {
		status = "running"
		if t := h.scheduler.NextRun(); !t.IsZero() {
			nextRun = t.Format(time.RFC3339)
		}
		if t := h.scheduler.LastRun(); !t.IsZero() {
			lastRun = t.Format(time.RFC3339)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"next_run": nextRun,
		"last_run": lastRun,
	})
}
