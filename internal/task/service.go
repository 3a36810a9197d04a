// Package task implements the task lifecycle: enqueue, delivery handshake,
// progress, blocking, terminal transitions, and the dependency state machine.
package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opensourcewtf/waaah/internal/agent/registry"
	"github.com/opensourcewtf/waaah/internal/common/apperr"
	"github.com/opensourcewtf/waaah/internal/common/logger"
	"github.com/opensourcewtf/waaah/internal/dispatch"
	"github.com/opensourcewtf/waaah/internal/events"
	"github.com/opensourcewtf/waaah/internal/events/bus"
	"github.com/opensourcewtf/waaah/internal/promptguard"
	"github.com/opensourcewtf/waaah/internal/store"
	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

// defaultAckTimeout bounds how long a reserved task waits for its
// acknowledgement before the scheduler returns it to the queue.
const defaultAckTimeout = 30 * time.Second

// Service owns all task state transitions. Every write to a task row goes
// through it so that history, events, and redelivery stay consistent.
type Service struct {
	store    store.Store
	registry *registry.Registry
	dispatch *dispatch.Coordinator
	guard    *promptguard.Guard
	bus      bus.EventBus
	activity *events.Recorder
	logger   *logger.Logger

	ackTimeout time.Duration
}

// NewService creates the task lifecycle service.
func NewService(st store.Store, reg *registry.Registry, coord *dispatch.Coordinator, guard *promptguard.Guard, eventBus bus.EventBus, activity *events.Recorder, log *logger.Logger) *Service {
	return &Service{
		store:    st,
		registry: reg,
		dispatch: coord,
		guard:    guard,
		bus:      eventBus,
		activity: activity,
		logger:   log,

		ackTimeout: defaultAckTimeout,
	}
}

// SetAckTimeout overrides the acknowledgement deadline.
func (s *Service) SetAckTimeout(d time.Duration) {
	if d > 0 {
		s.ackTimeout = d
	}
}

// Enqueue validates, screens, and persists a new task, then attempts
// immediate delivery to a parked waiter. Returns the created task and the id
// of the agent it was reserved for, if any.
func (s *Service) Enqueue(ctx context.Context, req *v1.AssignTaskRequest) (*v1.Task, string, error) {
	if req.Prompt == "" {
		return nil, "", fmt.Errorf("prompt is required: %w", apperr.ErrInvalidRouting)
	}
	if !req.Priority.Valid() {
		return nil, "", fmt.Errorf("unknown priority %q: %w", req.Priority, apperr.ErrInvalidRouting)
	}
	priority := req.Priority
	if priority == "" {
		priority = v1.PriorityNormal
	}

	routing := req.To
	if routing.AgentID != "" {
		id, err := s.registry.ResolveID(ctx, routing.AgentID)
		if err != nil {
			return nil, "", fmt.Errorf("target agent %q: %w", routing.AgentID, apperr.ErrInvalidRouting)
		}
		routing.AgentID = id
	}

	if _, err := s.guard.Screen(ctx, req.From, req.Prompt); err != nil {
		return nil, "", err
	}

	unmet, err := s.unmetDependencies(ctx, req.Dependencies)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	task := &v1.Task{
		Status:       v1.TaskStatusQueued,
		Prompt:       req.Prompt,
		Priority:     priority,
		From:         req.From,
		To:           routing,
		Context:      req.Context,
		Dependencies: req.Dependencies,
		History: []v1.HistoryEntry{{
			Timestamp: now,
			Status:    v1.TaskStatusQueued,
			Message:   "task created",
		}},
	}
	if len(unmet) > 0 {
		task.Status = v1.TaskStatusBlocked
		task.History[0].Status = v1.TaskStatusBlocked
		task.History[0].Message = "blocked on unfinished dependencies: " + strings.Join(unmet, ", ")
	}

	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, "", err
	}

	s.publish(ctx, events.TopicTask, "task.enqueued", task)
	s.activity.Record(ctx, "task", fmt.Sprintf("task %s enqueued by %s", task.ID, req.From.ID), map[string]interface{}{
		"task_id":  task.ID,
		"status":   string(task.Status),
		"priority": string(task.Priority),
	})

	var reserved string
	if task.Status == v1.TaskStatusQueued {
		reserved, err = s.dispatch.TryDeliver(ctx, task)
		if err != nil {
			s.logger.Warn("immediate delivery failed", zap.String("task_id", task.ID), zap.Error(err))
		}
	}
	return task, reserved, nil
}

// Ack confirms receipt of a reserved task and assigns it to the agent. Only
// the agent the task was reserved for may acknowledge; anyone else trips a
// security event.
func (s *Service) Ack(ctx context.Context, taskID, agentID string) (*v1.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != v1.TaskStatusPendingAck {
		return nil, apperr.WrongStatef("task %s is %s, not PENDING_ACK", taskID, task.Status)
	}
	if task.PendingAckAgentID != agentID {
		event := &v1.SecurityEvent{
			Source: "agent",
			FromID: agentID,
			Prompt: fmt.Sprintf("ack for task %s reserved for %s", taskID, task.PendingAckAgentID),
			Flags:  []string{"wrong-agent-ack"},
			Action: "BLOCKED",
		}
		if err := s.store.AddSecurityEvent(ctx, event); err != nil {
			s.logger.Error("failed to record security event", zap.Error(err))
		}
		return nil, fmt.Errorf("task %s is reserved for another agent: %w", taskID, apperr.ErrWrongAgent)
	}

	now := time.Now().UTC()
	task.Status = v1.TaskStatusAssigned
	task.AssignedTo = agentID
	task.PendingAckAgentID = ""
	task.AckSentAt = nil
	task.History = append(task.History, v1.HistoryEntry{
		Timestamp: now,
		Status:    v1.TaskStatusAssigned,
		AgentID:   agentID,
		Message:   fmt.Sprintf("acknowledged by %s", agentID),
	})
	// Conditional on the row still being PENDING_ACK: an ack expiry sweep
	// racing this call must not be overwritten, and vice versa.
	if err := s.store.UpdateTaskFrom(ctx, task, v1.TaskStatusPendingAck); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicDelegation, "task.accepted", task)
	s.activity.Record(ctx, "task", fmt.Sprintf("task %s accepted by %s", task.ID, agentID), map[string]interface{}{
		"task_id":  task.ID,
		"agent_id": agentID,
	})
	return task, nil
}

// UpdateProgress records a progress report, moving an ASSIGNED task to
// IN_PROGRESS on the first report. Progress doubles as an agent heartbeat.
func (s *Service) UpdateProgress(ctx context.Context, taskID string, req *v1.UpdateProgressRequest) (*v1.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != v1.TaskStatusAssigned && task.Status != v1.TaskStatusInProgress {
		return nil, apperr.WrongStatef("task %s is %s, progress needs ASSIGNED or IN_PROGRESS", taskID, task.Status)
	}
	if task.AssignedTo != req.AgentID {
		return nil, fmt.Errorf("task %s is assigned to %s: %w", taskID, task.AssignedTo, apperr.ErrWrongAgent)
	}

	now := time.Now().UTC()
	prev := task.Status
	if task.Status == v1.TaskStatusAssigned {
		task.Status = v1.TaskStatusInProgress
		task.History = append(task.History, v1.HistoryEntry{
			Timestamp: now,
			Status:    v1.TaskStatusInProgress,
			AgentID:   req.AgentID,
			Message:   "work started",
		})
	}
	task.LastProgressAt = &now
	if err := s.store.UpdateTaskFrom(ctx, task, prev); err != nil {
		return nil, err
	}

	metadata := map[string]interface{}{"type": "progress"}
	if req.Percentage != nil {
		metadata["percentage"] = *req.Percentage
	}
	if err := s.store.AddTaskMessage(ctx, &v1.TaskMessage{
		TaskID:   taskID,
		Role:     "agent",
		Content:  req.Message,
		Metadata: metadata,
	}); err != nil {
		return nil, err
	}

	if err := s.registry.Heartbeat(ctx, req.AgentID); err != nil {
		s.logger.Debug("progress heartbeat failed", zap.String("agent_id", req.AgentID), zap.Error(err))
	}
	return task, nil
}

// SendResponse records an agent's result and moves the task to COMPLETED,
// FAILED, or IN_REVIEW. Completion events fire only after the terminal state
// is durably written; a COMPLETED result also unblocks dependent tasks.
func (s *Service) SendResponse(ctx context.Context, taskID, agentID string, req *v1.SendResponseRequest) (*v1.Task, error) {
	switch req.Status {
	case v1.TaskStatusCompleted, v1.TaskStatusFailed, v1.TaskStatusInReview:
	default:
		return nil, apperr.WrongStatef("response status must be COMPLETED, FAILED, or IN_REVIEW, got %s", req.Status)
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	switch task.Status {
	case v1.TaskStatusAssigned, v1.TaskStatusInProgress, v1.TaskStatusInReview:
	default:
		return nil, apperr.WrongStatef("task %s is %s, cannot accept a response", taskID, task.Status)
	}
	if agentID != "" && task.AssignedTo != agentID {
		return nil, fmt.Errorf("task %s is assigned to %s: %w", taskID, task.AssignedTo, apperr.ErrWrongAgent)
	}

	now := time.Now().UTC()
	prev := task.Status
	task.Status = req.Status
	task.Response = &v1.Response{Message: req.Message, Artifacts: req.Artifacts, Diff: req.Diff}
	task.History = append(task.History, v1.HistoryEntry{
		Timestamp: now,
		Status:    req.Status,
		AgentID:   task.AssignedTo,
		Message:   req.Message,
	})
	if req.Status.IsTerminal() {
		task.CompletedAt = &now
	}
	if err := s.store.UpdateTaskFrom(ctx, task, prev); err != nil {
		return nil, err
	}

	switch req.Status {
	case v1.TaskStatusCompleted:
		s.publish(ctx, events.TopicCompletion, "task.completed", task)
	case v1.TaskStatusFailed:
		s.publish(ctx, events.TopicCompletion, "task.failed", task)
	case v1.TaskStatusInReview:
		s.publish(ctx, events.TopicTask, "task.in_review", task)
	}
	s.activity.Record(ctx, "task", fmt.Sprintf("task %s moved to %s", task.ID, task.Status), map[string]interface{}{
		"task_id":  task.ID,
		"agent_id": task.AssignedTo,
		"status":   string(task.Status),
	})

	if req.Status.IsTerminal() {
		s.dispatch.NotifyCompletion(task)
	}
	if req.Status == v1.TaskStatusCompleted {
		if err := s.unblockDependents(ctx, task.ID); err != nil {
			s.logger.Error("failed to unblock dependents", zap.String("task_id", task.ID), zap.Error(err))
		}
	}
	return task, nil
}

// Cancel terminates a non-terminal task.
func (s *Service) Cancel(ctx context.Context, taskID, reason string) (*v1.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, apperr.WrongStatef("task %s is already %s", taskID, task.Status)
	}

	now := time.Now().UTC()
	message := "cancelled"
	if reason != "" {
		message = "cancelled: " + reason
	}
	prev := task.Status
	task.Status = v1.TaskStatusCancelled
	task.PendingAckAgentID = ""
	task.AckSentAt = nil
	task.CompletedAt = &now
	task.History = append(task.History, v1.HistoryEntry{
		Timestamp: now,
		Status:    v1.TaskStatusCancelled,
		Message:   message,
	})
	if err := s.store.UpdateTaskFrom(ctx, task, prev); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicCompletion, "task.cancelled", task)
	s.activity.Record(ctx, "task", fmt.Sprintf("task %s cancelled", task.ID), map[string]interface{}{
		"task_id": task.ID,
		"reason":  reason,
	})
	s.dispatch.NotifyCompletion(task)
	return task, nil
}

// ForceRetry returns a stuck or failed task to the queue, clearing its
// assignment and previous response. COMPLETED and IN_REVIEW tasks cannot be
// retried.
func (s *Service) ForceRetry(ctx context.Context, taskID string) (*v1.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	switch task.Status {
	case v1.TaskStatusPendingAck, v1.TaskStatusAssigned, v1.TaskStatusInProgress,
		v1.TaskStatusFailed, v1.TaskStatusCancelled:
	default:
		return nil, apperr.WrongStatef("task %s is %s, cannot force retry", taskID, task.Status)
	}

	now := time.Now().UTC()
	prev := task.Status
	task.Status = v1.TaskStatusQueued
	task.AssignedTo = ""
	task.Response = nil
	task.PendingAckAgentID = ""
	task.AckSentAt = nil
	task.CompletedAt = nil
	task.LastProgressAt = nil
	task.History = append(task.History, v1.HistoryEntry{
		Timestamp: now,
		Status:    v1.TaskStatusQueued,
		Message:   "force retried",
	})
	if err := s.store.UpdateTaskFrom(ctx, task, prev); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicTask, "task.requeued", task)
	s.activity.Record(ctx, "task", fmt.Sprintf("task %s force retried", task.ID), map[string]interface{}{
		"task_id": task.ID,
	})
	if _, err := s.dispatch.TryDeliver(ctx, task); err != nil {
		s.logger.Warn("redelivery after retry failed", zap.String("task_id", task.ID), zap.Error(err))
	}
	return task, nil
}

// Block parks a running task on an agent question. The question lands in the
// conversation log so the asker sees it in context.
func (s *Service) Block(ctx context.Context, taskID string, req *v1.BlockTaskRequest) (*v1.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != v1.TaskStatusAssigned && task.Status != v1.TaskStatusInProgress {
		return nil, apperr.WrongStatef("task %s is %s, only running tasks can block", taskID, task.Status)
	}

	now := time.Now().UTC()
	prev := task.Status
	task.Status = v1.TaskStatusBlocked
	task.History = append(task.History, v1.HistoryEntry{
		Timestamp: now,
		Status:    v1.TaskStatusBlocked,
		AgentID:   task.AssignedTo,
		Message:   "blocked on question",
	})
	if err := s.store.UpdateTaskFrom(ctx, task, prev); err != nil {
		return nil, err
	}

	if err := s.store.AddTaskMessage(ctx, &v1.TaskMessage{
		TaskID:  taskID,
		Role:    "agent",
		Content: req.Question,
		Metadata: map[string]interface{}{
			"type":    "question",
			"reason":  req.Reason,
			"summary": req.Summary,
		},
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicTask, "task.blocked", task)
	s.activity.Record(ctx, "task", fmt.Sprintf("task %s blocked on a question", task.ID), map[string]interface{}{
		"task_id":  task.ID,
		"agent_id": task.AssignedTo,
	})
	return task, nil
}

// Answer resolves a question-blocked task and requeues it, pinned to the
// agent that asked so the conversation resumes where it stopped.
func (s *Service) Answer(ctx context.Context, taskID string, req *v1.AnswerTaskRequest) (*v1.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != v1.TaskStatusBlocked {
		return nil, apperr.WrongStatef("task %s is %s, not BLOCKED", taskID, task.Status)
	}
	if unmet, err := s.unmetDependencies(ctx, task.Dependencies); err != nil {
		return nil, err
	} else if len(unmet) > 0 {
		return nil, apperr.WrongStatef("task %s is blocked on dependencies, not a question", taskID)
	}

	if err := s.store.AddTaskMessage(ctx, &v1.TaskMessage{
		TaskID:   taskID,
		Role:     "user",
		Content:  req.Answer,
		Metadata: map[string]interface{}{"type": "answer"},
	}); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task.Status = v1.TaskStatusQueued
	if task.AssignedTo != "" {
		task.To.AgentID = task.AssignedTo
		task.AssignedTo = ""
	}
	task.History = append(task.History, v1.HistoryEntry{
		Timestamp: now,
		Status:    v1.TaskStatusQueued,
		Message:   "question answered",
	})
	if err := s.store.UpdateTaskFrom(ctx, task, v1.TaskStatusBlocked); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicTask, "task.requeued", task)
	s.activity.Record(ctx, "task", fmt.Sprintf("task %s answered", task.ID), map[string]interface{}{
		"task_id": task.ID,
	})
	if _, err := s.dispatch.TryDeliver(ctx, task); err != nil {
		s.logger.Warn("redelivery after answer failed", zap.String("task_id", task.ID), zap.Error(err))
	}
	return task, nil
}

// Get returns a task by id.
func (s *Service) Get(ctx context.Context, taskID string) (*v1.Task, error) {
	return s.store.GetTask(ctx, taskID)
}

// List returns tasks matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter v1.TaskFilter) ([]*v1.Task, error) {
	return s.store.ListTasks(ctx, filter)
}

// Messages returns a task's conversation log in chronological order.
func (s *Service) Messages(ctx context.Context, taskID string) ([]*v1.TaskMessage, error) {
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return s.store.ListTaskMessages(ctx, taskID)
}

// AddMessage appends a message to a task's conversation log.
func (s *Service) AddMessage(ctx context.Context, taskID, role, content string, metadata map[string]interface{}) (*v1.TaskMessage, error) {
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	msg := &v1.TaskMessage{TaskID: taskID, Role: role, Content: content, Metadata: metadata}
	if err := s.store.AddTaskMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// AddReviewComment attaches an inline review note to a task.
func (s *Service) AddReviewComment(ctx context.Context, comment *v1.ReviewComment) error {
	if _, err := s.store.GetTask(ctx, comment.TaskID); err != nil {
		return err
	}
	return s.store.AddReviewComment(ctx, comment)
}

// ListReviewComments returns a task's review comments.
func (s *Service) ListReviewComments(ctx context.Context, taskID string) ([]*v1.ReviewComment, error) {
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return s.store.ListReviewComments(ctx, taskID)
}

// ResolveReviewComment marks a review comment resolved or unresolved.
func (s *Service) ResolveReviewComment(ctx context.Context, id string, resolved bool) error {
	return s.store.ResolveReviewComment(ctx, id, resolved)
}

// ExpireAcks returns unacknowledged reservations older than the ack deadline
// to the queue and attempts redelivery. Called from the scheduler tick.
func (s *Service) ExpireAcks(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredAcks(ctx, time.Now().Add(-s.ackTimeout))
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, task := range expired {
		agentID := task.PendingAckAgentID
		now := time.Now().UTC()
		task.Status = v1.TaskStatusQueued
		task.PendingAckAgentID = ""
		task.AckSentAt = nil
		task.History = append(task.History, v1.HistoryEntry{
			Timestamp: now,
			Status:    v1.TaskStatusQueued,
			AgentID:   agentID,
			Message:   fmt.Sprintf("ACK timeout from %s", agentID),
		})
		err := s.store.UpdateTaskFrom(ctx, task, v1.TaskStatusPendingAck)
		if errors.Is(err, apperr.ErrWrongState) {
			// The agent acknowledged (or the task was cancelled) between the
			// listing and this write. Leave the newer transition alone.
			s.logger.Debug("reservation moved on before expiry", zap.String("task_id", task.ID))
			continue
		}
		if err != nil {
			return requeued, err
		}
		requeued++

		s.logger.Warn("reservation expired",
			zap.String("task_id", task.ID),
			zap.String("agent_id", agentID),
		)
		s.publish(ctx, events.TopicTask, "task.requeued", task)
		if _, err := s.dispatch.TryDeliver(ctx, task); err != nil {
			s.logger.Warn("redelivery after ack timeout failed", zap.String("task_id", task.ID), zap.Error(err))
		}
	}
	return requeued, nil
}

// UnblockReady requeues BLOCKED tasks whose dependencies are all COMPLETED.
// Question-blocked tasks carry no unmet dependencies yet stay parked; they
// are released only by an answer. Called from the scheduler tick.
func (s *Service) UnblockReady(ctx context.Context) (int, error) {
	blocked, err := s.store.ListTasks(ctx, v1.TaskFilter{Status: v1.TaskStatusBlocked})
	if err != nil {
		return 0, err
	}

	released := 0
	for _, task := range blocked {
		if len(task.Dependencies) == 0 {
			continue
		}
		unmet, err := s.unmetDependencies(ctx, task.Dependencies)
		if err != nil {
			return released, err
		}
		if len(unmet) > 0 {
			continue
		}
		if err := s.requeueUnblocked(ctx, task); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

// unblockDependents releases tasks waiting on the given task, when all their
// other dependencies are also done.
func (s *Service) unblockDependents(ctx context.Context, taskID string) error {
	dependents, err := s.store.ListDependents(ctx, taskID)
	if err != nil {
		return err
	}
	for _, dep := range dependents {
		if dep.Status != v1.TaskStatusBlocked {
			continue
		}
		unmet, err := s.unmetDependencies(ctx, dep.Dependencies)
		if err != nil {
			return err
		}
		if len(unmet) > 0 {
			continue
		}
		if err := s.requeueUnblocked(ctx, dep); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) requeueUnblocked(ctx context.Context, task *v1.Task) error {
	now := time.Now().UTC()
	task.Status = v1.TaskStatusQueued
	task.History = append(task.History, v1.HistoryEntry{
		Timestamp: now,
		Status:    v1.TaskStatusQueued,
		Message:   "dependencies satisfied",
	})
	err := s.store.UpdateTaskFrom(ctx, task, v1.TaskStatusBlocked)
	if errors.Is(err, apperr.ErrWrongState) {
		// Released by a concurrent answer or cancel; nothing left to do.
		return nil
	}
	if err != nil {
		return err
	}

	s.publish(ctx, events.TopicTask, "task.unblocked", task)
	s.activity.Record(ctx, "task", fmt.Sprintf("task %s unblocked", task.ID), map[string]interface{}{
		"task_id": task.ID,
	})
	if _, err := s.dispatch.TryDeliver(ctx, task); err != nil {
		s.logger.Warn("redelivery after unblock failed", zap.String("task_id", task.ID), zap.Error(err))
	}
	return nil
}

// unmetDependencies resolves each dependency id and returns those not yet
// COMPLETED. A dependency id that does not exist is an error.
func (s *Service) unmetDependencies(ctx context.Context, deps []string) ([]string, error) {
	var unmet []string
	for _, depID := range deps {
		dep, err := s.store.GetTask(ctx, depID)
		if err != nil {
			return nil, fmt.Errorf("dependency %s: %w", depID, err)
		}
		if dep.Status != v1.TaskStatusCompleted {
			unmet = append(unmet, depID)
		}
	}
	return unmet, nil
}

func (s *Service) publish(ctx context.Context, topic, eventType string, task *v1.Task) {
	err := s.bus.Publish(ctx, topic, bus.NewEvent(eventType, "task", map[string]interface{}{
		"task_id":  task.ID,
		"status":   string(task.Status),
		"agent_id": task.AssignedTo,
	}))
	if err != nil {
		s.logger.Warn("failed to publish task event",
			zap.String("topic", topic),
			zap.String("type", eventType),
			zap.Error(err),
		)
	}
}
