// Package registry owns the set of known agents: registration, alias
// resolution, heartbeats, eviction flags, and derived connection status.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opensourcewtf/waaah/internal/common/apperr"
	"github.com/opensourcewtf/waaah/internal/common/logger"
	"github.com/opensourcewtf/waaah/internal/events"
	"github.com/opensourcewtf/waaah/internal/events/bus"
	"github.com/opensourcewtf/waaah/internal/store"
	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

// heartbeatDebounce caps last_seen writes to one per agent per window.
const heartbeatDebounce = 10 * time.Second

var identityPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Registry manages agent records. All mutation of agent rows goes through it.
type Registry struct {
	store    store.Store
	bus      bus.EventBus
	activity *events.Recorder
	logger   *logger.Logger

	mu        sync.Mutex
	lastTouch map[string]time.Time
}

// New creates an agent registry.
func New(st store.Store, eventBus bus.EventBus, activity *events.Recorder, log *logger.Logger) *Registry {
	return &Registry{
		store:     st,
		bus:       eventBus,
		activity:  activity,
		logger:    log,
		lastTouch: make(map[string]time.Time),
	}
}

// Register upserts an agent by id. Aliases are merged with any previously
// registered set; a pending eviction signal is cleared.
func (r *Registry) Register(ctx context.Context, req *v1.RegisterAgentRequest) (*v1.Agent, error) {
	if !identityPattern.MatchString(req.ID) {
		return nil, fmt.Errorf("agent id %q: %w", req.ID, apperr.ErrInvalidIdentity)
	}

	aliases := req.Aliases
	if existing, err := r.store.GetAgent(ctx, req.ID); err == nil {
		aliases = mergeAliases(existing.Aliases, req.Aliases)
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.ID
	}

	agent := &v1.Agent{
		ID:               req.ID,
		DisplayName:      displayName,
		Aliases:          aliases,
		Capabilities:     req.Capabilities,
		WorkspaceContext: req.WorkspaceContext,
		Color:            req.Color,
		LastSeen:         time.Now().UnixMilli(),
	}
	if err := r.store.UpsertAgent(ctx, agent); err != nil {
		return nil, err
	}

	r.logger.Info("agent registered",
		zap.String("agent_id", agent.ID),
		zap.Strings("capabilities", agent.Capabilities),
	)
	r.activity.Record(ctx, "agent", fmt.Sprintf("agent %s registered", agent.ID), map[string]interface{}{
		"agent_id": agent.ID,
	})

	return agent, nil
}

// Get returns an agent by exact id.
func (r *Registry) Get(ctx context.Context, id string) (*v1.Agent, error) {
	return r.store.GetAgent(ctx, id)
}

// List returns all registered agents.
func (r *Registry) List(ctx context.Context) ([]*v1.Agent, error) {
	return r.store.ListAgents(ctx)
}

// Resolve maps an id, alias, or display name to the agent record. Alias and
// display name matching is case-insensitive; exact id wins.
func (r *Registry) Resolve(ctx context.Context, ref string) (*v1.Agent, error) {
	if agent, err := r.store.GetAgent(ctx, ref); err == nil {
		return agent, nil
	}
	if id, err := r.store.ResolveAlias(ctx, ref); err == nil {
		return r.store.GetAgent(ctx, id)
	}

	agents, err := r.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	lowered := strings.ToLower(strings.TrimSpace(ref))
	for _, agent := range agents {
		if strings.ToLower(agent.DisplayName) == lowered {
			return agent, nil
		}
	}
	return nil, apperr.NotFoundf("agent %s", ref)
}

// ResolveID maps an id, alias, or display name to the canonical agent id.
func (r *Registry) ResolveID(ctx context.Context, ref string) (string, error) {
	agent, err := r.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	return agent.ID, nil
}

// Heartbeat refreshes an agent's last_seen timestamp. Writes are debounced
// to at most one per agent per 10 s; skipped beats are not an error.
func (r *Registry) Heartbeat(ctx context.Context, id string) error {
	now := time.Now()

	r.mu.Lock()
	last, ok := r.lastTouch[id]
	if ok && now.Sub(last) < heartbeatDebounce {
		r.mu.Unlock()
		return nil
	}
	r.lastTouch[id] = now
	r.mu.Unlock()

	if err := r.store.TouchAgent(ctx, id, now.UnixMilli()); err != nil {
		r.mu.Lock()
		delete(r.lastTouch, id)
		r.mu.Unlock()
		return err
	}
	return nil
}

// RequestEviction flags an agent for eviction. The signal is delivered over
// the agent's next wait; the caller is responsible for waking a parked wait.
func (r *Registry) RequestEviction(ctx context.Context, id, reason string, action v1.EvictionAction) error {
	if action == "" {
		action = v1.EvictionRestart
	}
	if err := r.store.SetAgentEviction(ctx, id, true, reason, action); err != nil {
		return err
	}

	r.activity.Record(ctx, "agent", fmt.Sprintf("eviction requested for %s", id), map[string]interface{}{
		"agent_id": id,
		"reason":   reason,
		"action":   string(action),
	})
	if err := r.bus.Publish(ctx, events.TopicEviction, bus.NewEvent("eviction.requested", "registry", map[string]interface{}{
		"agent_id": id,
		"reason":   reason,
		"action":   string(action),
	})); err != nil {
		r.logger.Warn("failed to publish eviction event", zap.Error(err))
	}
	return nil
}

// ClearEviction removes an agent's pending eviction signal.
func (r *Registry) ClearEviction(ctx context.Context, id string) error {
	return r.store.SetAgentEviction(ctx, id, false, "", "")
}

// Status derives an agent's connection status from its running tasks and
// waiting flag. lastSeen plays no part in the derivation.
func (r *Registry) Status(ctx context.Context, id string) (*v1.AgentStatus, error) {
	agent, err := r.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}

	active, err := r.store.ListActiveTasksForAgent(ctx, id)
	if err != nil {
		return nil, err
	}

	status := &v1.AgentStatus{Agent: agent, Connection: v1.ConnectionOffline}
	for _, task := range active {
		if task.Status == v1.TaskStatusAssigned || task.Status == v1.TaskStatusInProgress {
			status.Connection = v1.ConnectionProcessing
			status.ActiveTask = task.ID
			break
		}
	}
	if status.Connection == v1.ConnectionOffline && agent.WaitingSince != nil {
		status.Connection = v1.ConnectionWaiting
	}
	return status, nil
}

func mergeAliases(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	var merged []string
	for _, alias := range append(append([]string{}, existing...), incoming...) {
		key := strings.ToLower(strings.TrimSpace(alias))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, alias)
	}
	sort.Strings(merged)
	return merged
}
