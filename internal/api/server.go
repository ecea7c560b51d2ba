// Package api handles HTTP and WebSocket API endpoints
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/thereceipt/btprinter-bridge/internal/bridge"
	"github.com/thereceipt/btprinter-bridge/internal/command"
)

// Session is the part of the printer session the status endpoint reports on
type Session interface {
	Connected() bool
	Address() string
}

// Server is the API server
type Server struct {
	router   *gin.Engine
	bridge   *bridge.Bridge
	session  Session
	executor *command.Executor
	upgrader websocket.Upgrader
	log      zerolog.Logger

	clientsMu sync.RWMutex
	clients   map[*WSClient]bool
}

// NewServer creates a new API server
func NewServer(b *bridge.Bridge, session Session, executor *command.Executor, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))
	router.Use(corsMiddleware())

	server := &Server{
		router:   router,
		bridge:   b,
		session:  session,
		executor: executor,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		log:     log,
		clients: make(map[*WSClient]bool),
	}

	server.setupRoutes()

	return server
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Method channel
	s.router.POST("/call", s.handleCall)

	// Convenience endpoints
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/devices", s.handleDevices)

	// Command endpoint
	s.router.POST("/command", s.handleCommand)

	// WebSocket
	s.router.GET("/ws", s.handleWebSocket)

	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}

// handleCall runs one method call and returns its result
func (s *Server) handleCall(c *gin.Context) {
	var call bridge.MethodCall
	if err := c.ShouldBindJSON(&call); err != nil || call.Method == "" {
		c.JSON(400, gin.H{"error": "method is required"})
		return
	}

	result := s.bridge.Handle(c.Request.Context(), call)
	if result.Error != nil && result.Error.Code == bridge.CodeNotImplemented {
		c.JSON(404, result)
		return
	}
	c.JSON(200, result)
}

// handleStatus reports adapter and session state
func (s *Server) handleStatus(c *gin.Context) {
	enabled := s.bridge.Handle(c.Request.Context(), bridge.MethodCall{Method: bridge.MethodBluetoothStatus})

	c.JSON(200, gin.H{
		"bluetooth": enabled.Value,
		"connected": s.session.Connected(),
		"address":   s.session.Address(),
	})
}

// handleDevices returns the paired devices as name#address
func (s *Server) handleDevices(c *gin.Context) {
	result := s.bridge.Handle(c.Request.Context(), bridge.MethodCall{Method: bridge.MethodLinkedDevices})

	c.JSON(200, gin.H{
		"devices": result.Value,
	})
}

// handleCommand handles command execution requests
func (s *Server) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "command is required"})
		return
	}

	result := s.executor.Execute(c.Request.Context(), req.Command)

	if result.Success {
		response := gin.H{
			"success": true,
		}
		if result.Message != "" {
			response["message"] = result.Message
		}
		for k, v := range result.Data {
			response[k] = v
		}
		c.JSON(200, response)
	} else {
		c.JSON(400, gin.H{
			"success": false,
			"error":   result.Error,
		})
	}
}

// Run serves on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("🌐 API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.closeClients()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
