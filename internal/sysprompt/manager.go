// Package sysprompt manages the out-of-band message queue: one-shot prompts
// delivered to agents in place of a task on their next wait.
package sysprompt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/opensourcewtf/waaah/internal/common/apperr"
	"github.com/opensourcewtf/waaah/internal/common/logger"
	"github.com/opensourcewtf/waaah/internal/events"
	"github.com/opensourcewtf/waaah/internal/store"
	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

// Resolver maps agent references (id, alias, display name) to agent records.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (*v1.Agent, error)
	List(ctx context.Context) ([]*v1.Agent, error)
}

// Waker kicks a parked wait so the agent re-checks its queue. Wired after
// construction because the wait coordinator pops prompts through this manager.
type Waker interface {
	WakeAgent(agentID string)
}

// Manager queues and pops system prompts.
type Manager struct {
	store    store.Store
	resolver Resolver
	activity *events.Recorder
	logger   *logger.Logger
	waker    Waker
}

// New creates a system prompt manager.
func New(st store.Store, resolver Resolver, activity *events.Recorder, log *logger.Logger) *Manager {
	return &Manager{store: st, resolver: resolver, activity: activity, logger: log}
}

// SetWaker wires the wait coordinator in after construction.
func (m *Manager) SetWaker(w Waker) {
	m.waker = w
}

// Queue inserts a one-shot prompt for a single agent and wakes its wait.
func (m *Manager) Queue(ctx context.Context, agentID, promptType, message string, payload map[string]interface{}, priority v1.TaskPriority) (*v1.SystemPrompt, error) {
	prompt := &v1.SystemPrompt{
		AgentID:    agentID,
		PromptType: promptType,
		Message:    message,
		Payload:    payload,
		Priority:   priority,
	}
	if err := m.store.EnqueueSystemPrompt(ctx, prompt); err != nil {
		return nil, err
	}

	m.logger.Debug("system prompt queued",
		zap.String("agent_id", agentID),
		zap.String("prompt_type", promptType),
	)
	if m.waker != nil {
		m.waker.WakeAgent(agentID)
	}
	return prompt, nil
}

// Pop atomically takes the next pending prompt for an agent, or nil.
func (m *Manager) Pop(ctx context.Context, agentID string) (*v1.SystemPrompt, error) {
	return m.store.PopSystemPrompt(ctx, agentID)
}

// Broadcast fans a prompt out to a set of agents selected by exactly one of
// target agent, target capability, or the broadcast flag. One row is queued
// per matching agent; there is no wildcard consumer at delivery time.
func (m *Manager) Broadcast(ctx context.Context, req *v1.BroadcastSystemPromptRequest) (int, error) {
	targets, err := m.selectTargets(ctx, req)
	if err != nil {
		return 0, err
	}
	if len(targets) == 0 {
		return 0, fmt.Errorf("broadcast %s: %w", req.PromptType, apperr.ErrNoMatches)
	}

	for _, agent := range targets {
		if _, err := m.Queue(ctx, agent.ID, req.PromptType, req.Message, req.Payload, req.Priority); err != nil {
			return 0, err
		}
	}

	m.activity.Record(ctx, "sysprompt", fmt.Sprintf("broadcast %s to %d agents", req.PromptType, len(targets)), map[string]interface{}{
		"prompt_type":  req.PromptType,
		"target_count": len(targets),
	})
	return len(targets), nil
}

func (m *Manager) selectTargets(ctx context.Context, req *v1.BroadcastSystemPromptRequest) ([]*v1.Agent, error) {
	switch {
	case req.TargetAgentID != "":
		agent, err := m.resolver.Resolve(ctx, req.TargetAgentID)
		if err != nil {
			return nil, err
		}
		return []*v1.Agent{agent}, nil

	case req.TargetCapability != "":
		agents, err := m.resolver.List(ctx)
		if err != nil {
			return nil, err
		}
		var matched []*v1.Agent
		for _, agent := range agents {
			for _, cap := range agent.Capabilities {
				if cap == req.TargetCapability {
					matched = append(matched, agent)
					break
				}
			}
		}
		return matched, nil

	case req.Broadcast:
		return m.resolver.List(ctx)

	default:
		return nil, fmt.Errorf("broadcast needs a target agent, capability, or broadcast flag: %w", apperr.ErrInvalidRouting)
	}
}
