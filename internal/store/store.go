// Package store defines the persistence interface for the orchestration core.
package store

import (
	"context"
	"time"

	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

// Store is the durable state behind the registry, the queue, and the
// activity log. Implementations must be safe for concurrent use.
type Store interface {
	// Agent operations
	UpsertAgent(ctx context.Context, agent *v1.Agent) error
	GetAgent(ctx context.Context, id string) (*v1.Agent, error)
	ListAgents(ctx context.Context) ([]*v1.Agent, error)
	DeleteAgent(ctx context.Context, id string) error
	ResolveAlias(ctx context.Context, alias string) (string, error)
	CountAgents(ctx context.Context) (int, error)
	TouchAgent(ctx context.Context, id string, lastSeen int64) error
	SetAgentWaiting(ctx context.Context, id string, since *int64) error
	SetAgentEviction(ctx context.Context, id string, requested bool, reason string, action v1.EvictionAction) error

	// Task operations
	CreateTask(ctx context.Context, task *v1.Task) error
	GetTask(ctx context.Context, id string) (*v1.Task, error)
	UpdateTask(ctx context.Context, task *v1.Task) error
	UpdateTaskFrom(ctx context.Context, task *v1.Task, from v1.TaskStatus) error
	ListTasks(ctx context.Context, filter v1.TaskFilter) ([]*v1.Task, error)
	ListQueuedTasks(ctx context.Context) ([]*v1.Task, error)
	ListExpiredAcks(ctx context.Context, cutoff time.Time) ([]*v1.Task, error)
	ListActiveTasksForAgent(ctx context.Context, agentID string) ([]*v1.Task, error)
	ListDependents(ctx context.Context, taskID string) ([]*v1.Task, error)

	// Conversation log operations
	AddTaskMessage(ctx context.Context, msg *v1.TaskMessage) error
	ListTaskMessages(ctx context.Context, taskID string) ([]*v1.TaskMessage, error)

	// Review operations
	AddReviewComment(ctx context.Context, comment *v1.ReviewComment) error
	ListReviewComments(ctx context.Context, taskID string) ([]*v1.ReviewComment, error)
	ResolveReviewComment(ctx context.Context, id string, resolved bool) error

	// System prompt queue operations
	EnqueueSystemPrompt(ctx context.Context, prompt *v1.SystemPrompt) error
	PopSystemPrompt(ctx context.Context, agentID string) (*v1.SystemPrompt, error)
	CountSystemPrompts(ctx context.Context, agentID string) (int, error)

	// Activity log operations
	AppendLog(ctx context.Context, entry *v1.LogEntry) error
	ListLogs(ctx context.Context, filter v1.LogFilter) ([]*v1.LogEntry, error)
	PruneLogs(ctx context.Context, before time.Time) (int64, error)

	// Security event operations
	AddSecurityEvent(ctx context.Context, event *v1.SecurityEvent) error
	ListSecurityEvents(ctx context.Context, limit int) ([]*v1.SecurityEvent, error)
}
