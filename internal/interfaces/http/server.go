// Package http provides the HTTP adapter for the completion workflow.
// This is a thin adapter layer that translates HTTP requests to session and service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/application/service"
	"github.com/garyjia/field-service/internal/application/workflow"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Metrics records request metrics and exposes the scrape endpoint
type Metrics interface {
	ObserveHTTP(method, route, status string, seconds float64)
	Handler() http.Handler
}

// HealthFunc reports component health for /health
type HealthFunc func(ctx context.Context) (healthy bool, details interface{})

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxUploadBytes bounds multipart request bodies
	MaxUploadBytes int64
	// FilesDir is served under /files when local storage is used
	FilesDir string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxUploadBytes: 32 << 20,
	}
}

// Dependencies are the application components the server exposes
type Dependencies struct {
	Sessions      *workflow.Manager
	Orders        port.ServiceOrderRepository
	Notifications service.NotificationService
	Reports       service.ReportService
	Auth          *Authenticator
	Metrics       Metrics
	Health        HealthFunc
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Dependencies
	logger     Logger
}

// NewServer creates a new HTTP server with the given dependencies
func NewServer(config ServerConfig, deps Dependencies, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	if deps.Auth == nil {
		deps.Auth = NewAuthenticator("", "")
	}

	server := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	if s.deps.Metrics != nil {
		s.router.Use(s.metricsMiddleware())
	}
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

// metricsMiddleware records request counts and latency by route template
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.ObserveHTTP(
			c.Request.Method,
			route,
			fmt.Sprintf("%d", c.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.deps, s.config.MaxUploadBytes, s.logger)

	s.router.GET("/health", handlers.HealthCheck)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
	if s.config.FilesDir != "" {
		s.router.Static("/files", s.config.FilesDir)
	}

	api := s.router.Group("/api", s.deps.Auth.Middleware())
	{
		// Orders
		api.GET("/orders", handlers.ListOrders)
		api.POST("/orders", RequireAdmin(), handlers.CreateOrder)
		api.GET("/orders/:id", handlers.GetOrder)
		api.GET("/orders/:id/session", handlers.FindSession)
		api.POST("/orders/:id/sessions", handlers.OpenSession)
		api.GET("/orders/:id/report", handlers.DownloadReport)

		// Sessions
		sessions := api.Group("/sessions/:sid")
		sessions.GET("", handlers.GetSession)
		sessions.DELETE("", handlers.CancelSession)
		sessions.POST("/steps/next", handlers.NextStep)
		sessions.POST("/steps/back", handlers.PreviousStep)
		sessions.PUT("/steps/current", handlers.GoToStep)
		sessions.PUT("/report", handlers.SetReport)
		sessions.POST("/attachments", handlers.UploadAttachments)
		sessions.DELETE("/attachments", handlers.RemoveAttachment)
		sessions.POST("/signatures/:role", handlers.AttachSignature)
		sessions.DELETE("/signatures/:role", handlers.ClearSignature)
		sessions.POST("/bypass", handlers.SetBypass)
		sessions.POST("/payment", handlers.ConfirmPayment)
		sessions.POST("/fiscal/request", handlers.RequestFiscal)
		sessions.PUT("/fiscal/draft", handlers.SetFiscalDraft)
		sessions.POST("/fiscal/emit", handlers.EmitFiscal)
		sessions.POST("/fiscal/retry", handlers.RetryFiscal)
		sessions.POST("/fiscal/skip", handlers.SkipFiscal)
		sessions.POST("/finalize", handlers.Finalize)
	}
}

// Start starts the HTTP server
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
