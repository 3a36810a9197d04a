// Package server exposes the orchestration core over HTTP: a JSON API for
// agents and operators, and a WebSocket stream mirroring the event bus.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opensourcewtf/waaah/internal/agent/registry"
	"github.com/opensourcewtf/waaah/internal/common/config"
	"github.com/opensourcewtf/waaah/internal/common/httpmw"
	"github.com/opensourcewtf/waaah/internal/common/logger"
	"github.com/opensourcewtf/waaah/internal/dispatch"
	"github.com/opensourcewtf/waaah/internal/events/bus"
	"github.com/opensourcewtf/waaah/internal/store"
	"github.com/opensourcewtf/waaah/internal/sysprompt"
	"github.com/opensourcewtf/waaah/internal/task"
)

// Server wires the HTTP surface to the core services.
type Server struct {
	cfg      *config.Config
	logger   *logger.Logger
	registry *registry.Registry
	tasks    *task.Service
	dispatch *dispatch.Coordinator
	prompts  *sysprompt.Manager
	store    store.Store
	hub      *eventHub

	engine *gin.Engine
	http   *http.Server
}

// New creates the HTTP server and registers all routes.
func New(cfg *config.Config, log *logger.Logger, reg *registry.Registry, tasks *task.Service, coord *dispatch.Coordinator, prompts *sysprompt.Manager, st store.Store, eventBus bus.EventBus) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpmw.RequestLogger(log, "waaah"))
	engine.Use(httpmw.OtelTracing("waaah"))

	hub, err := newEventHub(eventBus, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create event hub: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		logger:   log,
		registry: reg,
		tasks:    tasks,
		dispatch: coord,
		prompts:  prompts,
		store:    st,
		hub:      hub,
		engine:   engine,
	}
	s.registerRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}
	return s, nil
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/ws", s.handleWebSocket)

	api := s.engine.Group("/api/v1")

	agents := api.Group("/agents")
	agents.POST("", s.handleRegisterAgent)
	agents.GET("", s.handleListAgents)
	agents.GET("/:id", s.handleGetAgent)
	agents.GET("/:id/status", s.handleAgentStatus)
	agents.POST("/:id/heartbeat", s.handleHeartbeat)
	agents.POST("/:id/evict", s.handleRequestEviction)
	agents.POST("/:id/wait", s.handleWaitForPrompt)

	tasks := api.Group("/tasks")
	tasks.POST("", s.handleEnqueueTask)
	tasks.GET("", s.handleListTasks)
	tasks.GET("/:id", s.handleGetTask)
	tasks.POST("/:id/ack", s.handleAckTask)
	tasks.POST("/:id/progress", s.handleUpdateProgress)
	tasks.POST("/:id/response", s.handleSendResponse)
	tasks.POST("/:id/cancel", s.handleCancelTask)
	tasks.POST("/:id/retry", s.handleForceRetry)
	tasks.POST("/:id/block", s.handleBlockTask)
	tasks.POST("/:id/answer", s.handleAnswerTask)
	tasks.GET("/:id/wait", s.handleWaitForCompletion)
	tasks.GET("/:id/messages", s.handleListMessages)
	tasks.POST("/:id/messages", s.handleAddMessage)
	tasks.GET("/:id/comments", s.handleListComments)
	tasks.POST("/:id/comments", s.handleAddComment)

	api.POST("/comments/:id/resolve", s.handleResolveComment)
	api.POST("/system-prompts/broadcast", s.handleBroadcastPrompt)
	api.GET("/logs", s.handleListLogs)
	api.GET("/security-events", s.handleListSecurityEvents)
}

// Start begins serving. Blocks until the listener fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the event hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}
