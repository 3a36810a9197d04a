package v1

// WorkspaceContext binds an agent to a code repository or local directory.
type WorkspaceContext struct {
	Type   string `json:"type"` // "local" or "github"
	RepoID string `json:"repo_id"`
	Path   string `json:"path,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// ConnectionStatus is the derived liveness of an agent. It is a function of
// the agent's running tasks and waiting flag, not of lastSeen.
type ConnectionStatus string

const (
	ConnectionProcessing ConnectionStatus = "PROCESSING"
	ConnectionWaiting    ConnectionStatus = "WAITING"
	ConnectionOffline    ConnectionStatus = "OFFLINE"
)

// Agent is a remote worker known to the registry.
type Agent struct {
	ID                string            `json:"id"`
	DisplayName       string            `json:"display_name"`
	Aliases           []string          `json:"aliases,omitempty"`
	Capabilities      []string          `json:"capabilities,omitempty"`
	WorkspaceContext  *WorkspaceContext `json:"workspace_context,omitempty"`
	Color             string            `json:"color,omitempty"`
	LastSeen          int64             `json:"last_seen"`               // unix ms, informational only
	WaitingSince      *int64            `json:"waiting_since,omitempty"` // unix ms, non-nil iff parked in a wait
	EvictionRequested bool              `json:"eviction_requested"`
	EvictionReason    string            `json:"eviction_reason,omitempty"`
	EvictionAction    EvictionAction    `json:"eviction_action,omitempty"`
}

// AgentStatus is the read-only status view of an agent.
type AgentStatus struct {
	Agent      *Agent           `json:"agent"`
	Connection ConnectionStatus `json:"connection"`
	ActiveTask string           `json:"active_task,omitempty"`
}

// RegisterAgentRequest registers (or re-registers) an agent.
type RegisterAgentRequest struct {
	ID               string            `json:"id" binding:"required"`
	DisplayName      string            `json:"display_name"`
	Aliases          []string          `json:"aliases,omitempty"`
	Capabilities     []string          `json:"capabilities,omitempty"`
	WorkspaceContext *WorkspaceContext `json:"workspace_context,omitempty"`
	Color            string            `json:"color,omitempty"`
}

// RequestEvictionRequest asks an agent to restart or shut down. The signal is
// delivered through the agent's next wait.
type RequestEvictionRequest struct {
	Reason string         `json:"reason"`
	Action EvictionAction `json:"action" binding:"required"`
}
