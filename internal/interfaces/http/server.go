// Package http exposes the portal and the approval callback over REST.
// It is a thin adapter that translates HTTP requests to application calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/vendor-portal/internal/application/service"
	"github.com/garyjia/vendor-portal/internal/application/workflow"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Escalator submits the active level of a supplier to the workflow engine
type Escalator interface {
	Escalate(ctx context.Context, supplierName string) (*workflow.EscalationResult, error)
	Resend(ctx context.Context, supplierName string) (*workflow.EscalationResult, error)
}

// CallbackProcessor applies approve/reject notifications
type CallbackProcessor interface {
	Process(ctx context.Context, req *workflow.CallbackRequest) (*workflow.CallbackResult, error)
}

// HealthChecker reports component health
type HealthChecker interface {
	Health(ctx context.Context) (healthy bool, report interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxUploadMemory int64
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		MaxUploadMemory: 32 << 20,
	}
}

// Services are the application entry points served over HTTP.
// Webhook is optional.
type Services struct {
	Suppliers   service.SupplierService
	Directory   service.DirectoryService
	Attachments service.AttachmentService
	GST         service.GSTService
	Export      service.ExportService
	Escalator   Escalator
	Callbacks   CallbackProcessor
	Health      HealthChecker
	Webhook     gin.HandlerFunc
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.MaxMultipartMemory = config.MaxUploadMemory

	server := &Server{
		config:   config,
		router:   router,
		services: services,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(corsMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// corsMiddleware lets the portal UI call the API from another origin
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.logger)

	s.router.GET("/health", h.HealthCheck)

	if s.services.Webhook != nil {
		s.router.POST("/webhook/lark", s.services.Webhook)
	}

	api := s.router.Group("/api")
	{
		// Suppliers
		api.POST("/suppliers", h.CreateSupplier)
		api.GET("/suppliers", h.ListSuppliers)
		api.GET("/suppliers/export", h.ExportSuppliers)
		api.GET("/suppliers/:name", h.GetSupplier)
		api.GET("/suppliers/:name/approvals", h.ListApprovals)
		api.GET("/suppliers/:name/history", h.ListHistory)
		api.POST("/suppliers/:name/escalate", h.Escalate)

		// Attachments
		api.POST("/suppliers/:name/attachments", h.UploadAttachments)
		api.GET("/suppliers/:name/attachments", h.ListAttachments)
		api.GET("/suppliers/:name/attachments/archive", h.DownloadArchive)
		api.GET("/suppliers/:name/attachments/content", h.AttachmentContents)
		api.GET("/suppliers/:name/attachments/:id", h.DownloadAttachment)

		// GST
		api.POST("/suppliers/:name/gst/scan", h.ScanGST)
		api.GET("/suppliers/:name/gst", h.ListGST)

		// Approver directory
		api.GET("/approvers", h.ListApprovers)
		api.POST("/approvers", h.AddApprover)

		// Workflow engine callback
		api.POST("/approvals/callback", h.ApprovalCallback)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
