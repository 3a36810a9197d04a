package v1

import "time"

// Wait timeout bounds in seconds. Requests outside the bounds are clamped.
const (
	WaitTimeoutMin     = 1
	WaitTimeoutMax     = 3600
	WaitTimeoutDefault = 290
)

// EvictionAction tells an evicted agent what to do after draining.
type EvictionAction string

const (
	EvictionRestart  EvictionAction = "RESTART"
	EvictionShutdown EvictionAction = "SHUTDOWN"
)

// Eviction is a control message delivered through the wait channel.
type Eviction struct {
	Reason string         `json:"reason"`
	Action EvictionAction `json:"action"`
}

// SystemPrompt is a queued one-shot out-of-band message for an agent,
// delivered in place of a task on the agent's next wait.
type SystemPrompt struct {
	ID         string                 `json:"id"`
	AgentID    string                 `json:"agent_id"` // "*" for a broadcast row
	PromptType string                 `json:"prompt_type"`
	Message    string                 `json:"message"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Priority   TaskPriority           `json:"priority,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// WaitResult is the outcome of a waitForPrompt call. Exactly one of the
// fields is set; a nil WaitResult means the wait timed out.
type WaitResult struct {
	Task         *Task         `json:"task,omitempty"`
	Eviction     *Eviction     `json:"eviction,omitempty"`
	SystemPrompt *SystemPrompt `json:"system_prompt,omitempty"`
}

// WaitForPromptRequest parks an agent until work, an eviction, a system
// prompt, or the timeout arrives.
type WaitForPromptRequest struct {
	Capabilities     []string          `json:"capabilities,omitempty"`
	WorkspaceContext *WorkspaceContext `json:"workspace_context,omitempty"`
	TimeoutSec       int               `json:"timeout_sec,omitempty"`
}

// BroadcastSystemPromptRequest queues a system prompt for a set of agents.
// Exactly one of TargetAgentID, TargetCapability, or Broadcast selects the
// recipients; fan-out inserts one row per matching agent.
type BroadcastSystemPromptRequest struct {
	PromptType       string                 `json:"prompt_type" binding:"required"`
	Message          string                 `json:"message" binding:"required"`
	Payload          map[string]interface{} `json:"payload,omitempty"`
	Priority         TaskPriority           `json:"priority,omitempty"`
	TargetAgentID    string                 `json:"target_agent_id,omitempty"`
	TargetCapability string                 `json:"target_capability,omitempty"`
	Broadcast        bool                   `json:"broadcast,omitempty"`
}

// BroadcastSystemPromptResponse reports how many agents were targeted.
type BroadcastSystemPromptResponse struct {
	TargetCount int `json:"target_count"`
}

// LogEntry is one durable activity log record.
type LogEntry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Category  string                 `json:"category"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// LogFilter narrows activity log listings.
type LogFilter struct {
	Category string `json:"category,omitempty" form:"category"`
	Limit    int    `json:"limit,omitempty" form:"limit"`
}

// SecurityEvent records the outcome of prompt screening.
type SecurityEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "cli", "discord" or "agent"
	FromID    string    `json:"from_id,omitempty"`
	Prompt    string    `json:"prompt"` // truncated to 500 chars
	Flags     []string  `json:"flags,omitempty"`
	Action    string    `json:"action"` // BLOCKED, ALLOWED or WARNED
}
