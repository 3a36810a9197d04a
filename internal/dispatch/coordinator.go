// Package dispatch implements the wait coordinator: it parks agents in
// long-poll waits, wakes them when relevant state changes, and performs the
// atomic find-and-reserve step that hands a task to exactly one waiter.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opensourcewtf/waaah/internal/agent/registry"
	"github.com/opensourcewtf/waaah/internal/common/appctx"
	"github.com/opensourcewtf/waaah/internal/common/apperr"
	"github.com/opensourcewtf/waaah/internal/common/logger"
	"github.com/opensourcewtf/waaah/internal/matching"
	"github.com/opensourcewtf/waaah/internal/store"
	"github.com/opensourcewtf/waaah/internal/sysprompt"
	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

// waiter is one parked waitForTask call. The channel is buffered so a
// deliverer never blocks: a nil value is a generic wake (re-scan), a non-nil
// value is a reserved result handed directly to this waiter.
type waiter struct {
	agentID string
	profile matching.Profile
	ch      chan *v1.WaitResult
	since   time.Time
}

// Coordinator serialises delivery decisions. A single mutex guards the scan
// of QUEUED tasks, the PENDING_ACK reservation write, and the waiter map;
// it is never held across a suspension point.
type Coordinator struct {
	store    store.Store
	registry *registry.Registry
	prompts  *sysprompt.Manager
	logger   *logger.Logger

	mu                sync.Mutex
	waiters           map[string]*waiter
	completionWaiters map[string][]chan *v1.Task
}

// New creates a wait coordinator.
func New(st store.Store, reg *registry.Registry, prompts *sysprompt.Manager, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:             st,
		registry:          reg,
		prompts:           prompts,
		logger:            log,
		waiters:           make(map[string]*waiter),
		completionWaiters: make(map[string][]chan *v1.Task),
	}
}

// WaitForTask suspends until a matching task is reserved for the agent, an
// eviction or system prompt is delivered, or the timeout elapses (nil result).
// The effective profile is the wait request's capabilities and workspace,
// falling back to the agent's registered declaration.
func (c *Coordinator) WaitForTask(ctx context.Context, agentID string, capabilities []string, workspace *v1.WorkspaceContext, timeout time.Duration) (*v1.WaitResult, error) {
	agent, err := c.registry.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}

	profile := matching.Profile{AgentID: agent.ID, Capabilities: capabilities, Workspace: workspace}
	if len(profile.Capabilities) == 0 {
		profile.Capabilities = agent.Capabilities
	}
	if profile.Workspace == nil {
		profile.Workspace = agent.WorkspaceContext
	}

	c.mu.Lock()
	result, err := c.scanLocked(ctx, profile)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if result != nil {
		c.mu.Unlock()
		return result, nil
	}

	w := &waiter{
		agentID: agent.ID,
		profile: profile,
		ch:      make(chan *v1.WaitResult, 1),
		since:   time.Now(),
	}
	if prev, ok := c.waiters[agent.ID]; ok {
		// An agent holds at most one wait; displace the stale one. The
		// displaced caller observes it is no longer registered and returns.
		select {
		case prev.ch <- nil:
		default:
		}
	}
	c.waiters[agent.ID] = w
	c.mu.Unlock()

	sinceMs := w.since.UnixMilli()
	if err := c.store.SetAgentWaiting(ctx, agent.ID, &sinceMs); err != nil {
		c.logger.Warn("failed to set waiting flag", zap.String("agent_id", agent.ID), zap.Error(err))
	}
	defer c.clearWaiting(agent.ID, w)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case result := <-w.ch:
			if result != nil {
				c.removeWaiter(agent.ID, w)
				return result, nil
			}
			// Generic wake: re-run the full scan. The state we were woken
			// for may already be gone; that is expected and benign.
			c.mu.Lock()
			if c.waiters[agent.ID] != w {
				c.mu.Unlock()
				return c.drainDelivered(w), nil
			}
			result, err := c.scanLocked(ctx, profile)
			if err != nil {
				delete(c.waiters, agent.ID)
				c.mu.Unlock()
				return nil, err
			}
			if result != nil {
				delete(c.waiters, agent.ID)
				c.mu.Unlock()
				return result, nil
			}
			c.mu.Unlock()

		case <-timer.C:
			c.removeWaiter(agent.ID, w)
			// A delivery may have raced the timeout; prefer it over null.
			return c.drainDelivered(w), nil

		case <-ctx.Done():
			c.removeWaiter(agent.ID, w)
			if result := c.drainDelivered(w); result != nil {
				c.releaseUndelivered(result, agent.ID)
			}
			return nil, ctx.Err()
		}
	}
}

// WakeAgent signals a parked wait, if any, to re-run its scan.
func (c *Coordinator) WakeAgent(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.waiters[agentID]; ok {
		select {
		case w.ch <- nil:
		default:
		}
	}
}

// TryDeliver attempts to reserve the task for the longest-waiting matching
// agent and hand it over directly. Returns the reserved agent id, or "" when
// no parked waiter matches.
func (c *Coordinator) TryDeliver(ctx context.Context, task *v1.Task) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if task.Status != v1.TaskStatusQueued {
		return "", nil
	}

	// The caller's snapshot may be stale: a parked wait can reserve the task
	// between the caller's read and this critical section. Re-read the row
	// under the lock and deliver only if it is still QUEUED.
	fresh, err := c.store.GetTask(ctx, task.ID)
	if err != nil {
		return "", err
	}
	if fresh.Status != v1.TaskStatusQueued {
		return "", nil
	}

	var best *waiter
	for _, w := range c.waiters {
		if !matching.Matches(fresh, w.profile) {
			continue
		}
		if best == nil || w.since.Before(best.since) {
			best = w
		}
	}
	if best == nil {
		return "", nil
	}

	if err := c.reserveLocked(ctx, fresh, best.agentID); err != nil {
		return "", err
	}
	delete(c.waiters, best.agentID)

	// Replace any pending generic wake with the reserved result.
	select {
	case <-best.ch:
	default:
	}
	best.ch <- &v1.WaitResult{Task: fresh}

	return best.agentID, nil
}

// WaitForTaskCompletion suspends until the task reaches a terminal state or
// the timeout elapses. Returns the task snapshot, or nil on timeout.
func (c *Coordinator) WaitForTaskCompletion(ctx context.Context, taskID string, timeout time.Duration) (*v1.Task, error) {
	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return task, nil
	}

	ch := make(chan *v1.Task, 1)
	c.mu.Lock()
	c.completionWaiters[taskID] = append(c.completionWaiters[taskID], ch)
	c.mu.Unlock()
	defer c.removeCompletionWaiter(taskID, ch)

	// Re-check after registering so a completion racing the registration is
	// not missed.
	task, err = c.store.GetTask(ctx, taskID)
	if err == nil && task.Status.IsTerminal() {
		return task, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case task := <-ch:
		return task, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NotifyCompletion wakes completion waiters with the terminal snapshot.
// Callers invoke it only after the terminal state is durably written.
func (c *Coordinator) NotifyCompletion(task *v1.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.completionWaiters[task.ID] {
		select {
		case ch <- task:
		default:
		}
	}
	delete(c.completionWaiters, task.ID)
}

// WaitingAgents returns the ids of currently parked agents, for diagnostics.
func (c *Coordinator) WaitingAgents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.waiters))
	for id := range c.waiters {
		ids = append(ids, id)
	}
	return ids
}

// SweepWaitingFlags clears persisted waiting flags older than the threshold
// for agents with no live in-process wait. This is a safety net for flags
// orphaned by a crash; normal waits clear their own flag.
func (c *Coordinator) SweepWaitingFlags(ctx context.Context, threshold time.Duration) error {
	agents, err := c.store.ListAgents(ctx)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-threshold).UnixMilli()

	for _, agent := range agents {
		if agent.WaitingSince == nil || *agent.WaitingSince > cutoff {
			continue
		}
		c.mu.Lock()
		_, live := c.waiters[agent.ID]
		c.mu.Unlock()
		if live {
			continue
		}
		if err := c.store.SetAgentWaiting(ctx, agent.ID, nil); err != nil {
			c.logger.Warn("failed to sweep waiting flag", zap.String("agent_id", agent.ID), zap.Error(err))
		}
	}
	return nil
}

// scanLocked checks, in order, for a pending eviction, a queued system
// prompt, and a deliverable task. Caller holds c.mu; all persistence writes
// for the reservation happen inside the critical section.
func (c *Coordinator) scanLocked(ctx context.Context, profile matching.Profile) (*v1.WaitResult, error) {
	agent, err := c.store.GetAgent(ctx, profile.AgentID)
	if err != nil {
		return nil, err
	}

	if agent.EvictionRequested {
		action := agent.EvictionAction
		if action == "" {
			action = v1.EvictionRestart
		}
		if err := c.registry.ClearEviction(ctx, agent.ID); err != nil {
			return nil, err
		}
		return &v1.WaitResult{Eviction: &v1.Eviction{Reason: agent.EvictionReason, Action: action}}, nil
	}

	prompt, err := c.prompts.Pop(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	if prompt != nil {
		return &v1.WaitResult{SystemPrompt: prompt}, nil
	}

	queued, err := c.store.ListQueuedTasks(ctx)
	if err != nil {
		return nil, err
	}
	task := matching.PickTask(queued, profile)
	if task == nil {
		return nil, nil
	}
	if err := c.reserveLocked(ctx, task, agent.ID); err != nil {
		return nil, err
	}
	return &v1.WaitResult{Task: task}, nil
}

// reserveLocked transitions a QUEUED task to PENDING_ACK for an agent. The
// write is conditional on the row still being QUEUED. Caller holds c.mu.
func (c *Coordinator) reserveLocked(ctx context.Context, task *v1.Task, agentID string) error {
	now := time.Now().UTC()
	task.Status = v1.TaskStatusPendingAck
	task.PendingAckAgentID = agentID
	task.AckSentAt = &now
	task.History = append(task.History, v1.HistoryEntry{
		Timestamp: now,
		Status:    v1.TaskStatusPendingAck,
		AgentID:   agentID,
		Message:   fmt.Sprintf("reserved for agent %s", agentID),
	})
	if err := c.store.UpdateTaskFrom(ctx, task, v1.TaskStatusQueued); err != nil {
		return err
	}

	c.logger.Debug("task reserved",
		zap.String("task_id", task.ID),
		zap.String("agent_id", agentID),
	)
	return nil
}

// drainDelivered returns a result that was pushed concurrently with the
// waiter's removal, if any.
func (c *Coordinator) drainDelivered(w *waiter) *v1.WaitResult {
	select {
	case result := <-w.ch:
		return result
	default:
		return nil
	}
}

// releaseUndelivered undoes a reservation the caller never received because
// it abandoned the wait.
func (c *Coordinator) releaseUndelivered(result *v1.WaitResult, agentID string) {
	ctx, cancel := appctx.Detached(nil, 5*time.Second)
	defer cancel()

	switch {
	case result.Task != nil:
		task := result.Task
		c.mu.Lock()
		now := time.Now().UTC()
		task.Status = v1.TaskStatusQueued
		task.PendingAckAgentID = ""
		task.AckSentAt = nil
		task.History = append(task.History, v1.HistoryEntry{
			Timestamp: now,
			Status:    v1.TaskStatusQueued,
			AgentID:   agentID,
			Message:   fmt.Sprintf("delivery to %s abandoned", agentID),
		})
		err := c.store.UpdateTaskFrom(ctx, task, v1.TaskStatusPendingAck)
		c.mu.Unlock()
		if errors.Is(err, apperr.ErrWrongState) {
			// Another writer (cancel, ack expiry) moved the task on already.
			c.logger.Debug("abandoned reservation already released elsewhere",
				zap.String("task_id", task.ID))
			return
		}
		if err != nil {
			c.logger.Error("failed to release abandoned reservation",
				zap.String("task_id", task.ID), zap.Error(err))
			return
		}
		if _, err := c.TryDeliver(ctx, task); err != nil {
			c.logger.Warn("redelivery after abandoned wait failed",
				zap.String("task_id", task.ID), zap.Error(err))
		}

	case result.SystemPrompt != nil:
		if err := c.store.EnqueueSystemPrompt(ctx, result.SystemPrompt); err != nil {
			c.logger.Error("failed to re-queue undelivered system prompt",
				zap.String("prompt_id", result.SystemPrompt.ID), zap.Error(err))
		}

	case result.Eviction != nil:
		if err := c.store.SetAgentEviction(ctx, agentID, true, result.Eviction.Reason, result.Eviction.Action); err != nil {
			c.logger.Error("failed to restore undelivered eviction",
				zap.String("agent_id", agentID), zap.Error(err))
		}
	}
}

func (c *Coordinator) removeWaiter(agentID string, w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiters[agentID] == w {
		delete(c.waiters, agentID)
	}
}

func (c *Coordinator) removeCompletionWaiter(taskID string, ch chan *v1.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chans := c.completionWaiters[taskID]
	for i, existing := range chans {
		if existing == ch {
			c.completionWaiters[taskID] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(c.completionWaiters[taskID]) == 0 {
		delete(c.completionWaiters, taskID)
	}
}

// clearWaiting resets the persisted waiting flag when a wait exits. A
// displaced wait skips the reset: the newer wait for the same agent owns the
// flag now. Uses a fresh context because the caller's may already be cancelled.
func (c *Coordinator) clearWaiting(agentID string, w *waiter) {
	c.mu.Lock()
	current, live := c.waiters[agentID]
	c.mu.Unlock()
	if live && current != w {
		return
	}

	ctx, cancel := appctx.Detached(nil, 5*time.Second)
	defer cancel()
	if err := c.store.SetAgentWaiting(ctx, agentID, nil); err != nil {
		c.logger.Warn("failed to clear waiting flag", zap.String("agent_id", agentID), zap.Error(err))
	}
}
