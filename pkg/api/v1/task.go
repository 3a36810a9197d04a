// Package v1 defines the wire types for the WAAAH orchestration API.
package v1

import "time"

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "QUEUED"
	TaskStatusPendingAck TaskStatus = "PENDING_ACK"
	TaskStatusAssigned   TaskStatus = "ASSIGNED"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusInReview   TaskStatus = "IN_REVIEW"
	TaskStatusBlocked    TaskStatus = "BLOCKED"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

// IsTerminal returns true for states from which a task cannot progress.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// TaskPriority orders tasks within a delivery decision.
type TaskPriority string

const (
	PriorityNormal   TaskPriority = "normal"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// Rank returns a comparable weight for the priority (critical > high > normal).
// Unknown values rank as normal.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 2
	case PriorityHigh:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the priority is one of the known levels.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityHigh, PriorityCritical, "":
		return true
	}
	return false
}

// Origin identifies who submitted a task.
type Origin struct {
	Type string `json:"type"` // "user" or "agent"
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Routing describes where a task may be delivered. Any subset of the fields
// may be set; unset fields do not constrain matching.
type Routing struct {
	AgentID              string   `json:"agent_id,omitempty"`
	Role                 string   `json:"role,omitempty"`
	WorkspaceID          string   `json:"workspace_id,omitempty"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
}

// Response carries an agent's result for a task.
type Response struct {
	Message   string   `json:"message"`
	Artifacts []string `json:"artifacts,omitempty"`
	Diff      string   `json:"diff,omitempty"`
}

// HistoryEntry records one status change of a task.
type HistoryEntry struct {
	Timestamp time.Time  `json:"timestamp"`
	Status    TaskStatus `json:"status"`
	AgentID   string     `json:"agent_id,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Task is a unit of work dispatched to an agent.
type Task struct {
	ID                string                 `json:"id"`
	Status            TaskStatus             `json:"status"`
	Prompt            string                 `json:"prompt"`
	Priority          TaskPriority           `json:"priority"`
	From              Origin                 `json:"from"`
	To                Routing                `json:"to"`
	AssignedTo        string                 `json:"assigned_to,omitempty"`
	Context           map[string]interface{} `json:"context,omitempty"`
	Response          *Response              `json:"response,omitempty"`
	Dependencies      []string               `json:"dependencies,omitempty"`
	History           []HistoryEntry         `json:"history,omitempty"`
	PendingAckAgentID string                 `json:"pending_ack_agent_id,omitempty"`
	AckSentAt         *time.Time             `json:"ack_sent_at,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	CompletedAt       *time.Time             `json:"completed_at,omitempty"`
	LastProgressAt    *time.Time             `json:"last_progress_at,omitempty"`
}

// TaskMessage is one entry in a task's append-only conversation log.
type TaskMessage struct {
	ID        string                 `json:"id"`
	TaskID    string                 `json:"task_id"`
	Role      string                 `json:"role"` // "user", "agent" or "system"
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ReviewComment is an inline review note attached to a task.
type ReviewComment struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	FilePath   string    `json:"file_path,omitempty"`
	LineNumber int       `json:"line_number,omitempty"`
	Content    string    `json:"content"`
	ThreadID   string    `json:"thread_id,omitempty"`
	Resolved   bool      `json:"resolved"`
	CreatedAt  time.Time `json:"created_at"`
}

// TaskFilter narrows task listings. Zero-valued fields do not filter.
type TaskFilter struct {
	Status      TaskStatus `json:"status,omitempty" form:"status"`
	AgentID     string     `json:"agent_id,omitempty" form:"agent_id"`
	WorkspaceID string     `json:"workspace_id,omitempty" form:"workspace_id"`
	Limit       int        `json:"limit,omitempty" form:"limit"`
}

// AssignTaskRequest enqueues a new task.
type AssignTaskRequest struct {
	Prompt       string                 `json:"prompt" binding:"required"`
	Priority     TaskPriority           `json:"priority,omitempty"`
	Context      map[string]interface{} `json:"context,omitempty"`
	To           Routing                `json:"to"`
	From         Origin                 `json:"from"`
	Dependencies []string               `json:"dependencies,omitempty"`
}

// AssignTaskResponse reports the created task and, when a waiting agent
// matched immediately, the agent the task was reserved for.
type AssignTaskResponse struct {
	TaskID          string `json:"task_id"`
	ReservedAgentID string `json:"reserved_agent_id,omitempty"`
}

// SendResponseRequest reports an agent's result for a task.
type SendResponseRequest struct {
	AgentID   string     `json:"agent_id,omitempty"`
	Status    TaskStatus `json:"status" binding:"required"`
	Message   string     `json:"message"`
	Artifacts []string   `json:"artifacts,omitempty"`
	Diff      string     `json:"diff,omitempty"`
}

// CancelTaskRequest terminates a task.
type CancelTaskRequest struct {
	Reason string `json:"reason,omitempty"`
}

// AddMessageRequest appends to a task's conversation log.
type AddMessageRequest struct {
	Role     string                 `json:"role" binding:"required"`
	Content  string                 `json:"content" binding:"required"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AddReviewCommentRequest attaches an inline review note to a task.
type AddReviewCommentRequest struct {
	FilePath   string `json:"file_path,omitempty"`
	LineNumber int    `json:"line_number,omitempty"`
	Content    string `json:"content" binding:"required"`
	ThreadID   string `json:"thread_id,omitempty"`
}

// ResolveCommentRequest toggles a review comment's resolved flag.
type ResolveCommentRequest struct {
	Resolved bool `json:"resolved"`
}

// AckTaskRequest confirms receipt of a delivered task.
type AckTaskRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
}

// UpdateProgressRequest records agent progress on a running task.
type UpdateProgressRequest struct {
	AgentID    string `json:"agent_id" binding:"required"`
	Message    string `json:"message" binding:"required"`
	Percentage *int   `json:"percentage,omitempty"`
}

// BlockTaskRequest parks a task on an agent question.
type BlockTaskRequest struct {
	Reason   string `json:"reason"`
	Question string `json:"question" binding:"required"`
	Summary  string `json:"summary,omitempty"`
}

// AnswerTaskRequest resolves a blocked task's question.
type AnswerTaskRequest struct {
	Answer string `json:"answer" binding:"required"`
}
