package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

func (s *Server) handleEnqueueTask(c *gin.Context) {
	var req v1.AssignTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, reserved, err := s.tasks.Enqueue(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v1.AssignTaskResponse{TaskID: created.ID, ReservedAgentID: reserved})
}

func (s *Server) handleListTasks(c *gin.Context) {
	var filter v1.TaskFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tasks, err := s.tasks.List(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "total": len(tasks)})
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleAckTask(c *gin.Context) {
	var req v1.AckTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := s.tasks.Ack(c.Request.Context(), c.Param("id"), req.AgentID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleUpdateProgress(c *gin.Context) {
	var req v1.UpdateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := s.tasks.UpdateProgress(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleSendResponse(c *gin.Context) {
	var req v1.SendResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := s.tasks.SendResponse(c.Request.Context(), c.Param("id"), req.AgentID, &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleCancelTask(c *gin.Context) {
	var req v1.CancelTaskRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	task, err := s.tasks.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleForceRetry(c *gin.Context) {
	task, err := s.tasks.ForceRetry(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleBlockTask(c *gin.Context) {
	var req v1.BlockTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := s.tasks.Block(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleAnswerTask(c *gin.Context) {
	var req v1.AnswerTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := s.tasks.Answer(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// handleWaitForCompletion long-polls until the task reaches a terminal state.
// Returns the terminal snapshot, or an empty object on timeout.
func (s *Server) handleWaitForCompletion(c *gin.Context) {
	timeoutSec := 0
	if raw := c.Query("timeout_sec"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timeout_sec must be an integer"})
			return
		}
		timeoutSec = parsed
	}

	task, err := s.dispatch.WaitForTaskCompletion(c.Request.Context(), c.Param("id"), s.clampWaitTimeout(timeoutSec))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if task == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleListMessages(c *gin.Context) {
	msgs, err := s.tasks.Messages(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "total": len(msgs)})
}

func (s *Server) handleAddMessage(c *gin.Context) {
	var req v1.AddMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := s.tasks.AddMessage(c.Request.Context(), c.Param("id"), req.Role, req.Content, req.Metadata)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleListComments(c *gin.Context) {
	comments, err := s.tasks.ListReviewComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments, "total": len(comments)})
}

func (s *Server) handleAddComment(c *gin.Context) {
	var req v1.AddReviewCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment := &v1.ReviewComment{
		TaskID:     c.Param("id"),
		FilePath:   req.FilePath,
		LineNumber: req.LineNumber,
		Content:    req.Content,
		ThreadID:   req.ThreadID,
	}
	if err := s.tasks.AddReviewComment(c.Request.Context(), comment); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (s *Server) handleResolveComment(c *gin.Context) {
	var req v1.ResolveCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.tasks.ResolveReviewComment(c.Request.Context(), c.Param("id"), req.Resolved); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
