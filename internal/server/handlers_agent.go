package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

func (s *Server) handleRegisterAgent(c *gin.Context) {
	var req v1.RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent, err := s.registry.Register(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (s *Server) handleListAgents(c *gin.Context) {
	agents, err := s.registry.List(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents, "total": len(agents)})
}

func (s *Server) handleGetAgent(c *gin.Context) {
	agent, err := s.registry.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (s *Server) handleAgentStatus(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := s.registry.ResolveID(ctx, c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	status, err := s.registry.Status(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	if err := s.registry.Heartbeat(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleRequestEviction(c *gin.Context) {
	var req v1.RequestEvictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	id, err := s.registry.ResolveID(ctx, c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.registry.RequestEviction(ctx, id, req.Reason, req.Action); err != nil {
		s.respondError(c, err)
		return
	}
	// A parked wait must observe the flag immediately.
	s.dispatch.WakeAgent(id)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleWaitForPrompt is the long-poll entry point. The response is the next
// deliverable (task, eviction, or system prompt) or an empty object when the
// clamped timeout elapses.
func (s *Server) handleWaitForPrompt(c *gin.Context) {
	var req v1.WaitForPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timeout := s.clampWaitTimeout(req.TimeoutSec)
	result, err := s.dispatch.WaitForTask(c.Request.Context(), c.Param("id"), req.Capabilities, req.WorkspaceContext, timeout)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if result == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, result)
}

// clampWaitTimeout bounds a requested wait to the configured window. Zero
// selects the default.
func (s *Server) clampWaitTimeout(sec int) time.Duration {
	if sec == 0 {
		sec = s.cfg.Wait.DefaultTimeoutSec
	}
	if sec < v1.WaitTimeoutMin {
		sec = v1.WaitTimeoutMin
	}
	max := s.cfg.Wait.MaxTimeoutSec
	if max <= 0 {
		max = v1.WaitTimeoutMax
	}
	if sec > max {
		sec = max
	}
	return time.Duration(sec) * time.Second
}
