// Package matching decides whether a task can be delivered to a waiting
// agent. It is a stateless predicate over the task's routing descriptor and
// the agent's effective profile; all alias resolution happens before a
// profile reaches this package.
package matching

import (
	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

// Profile is the effective delivery profile of a waiting agent: its resolved
// id plus the capabilities and workspace it presented on this wait (falling
// back to its registered declaration).
type Profile struct {
	AgentID      string
	Capabilities []string
	Workspace    *v1.WorkspaceContext
}

// Matches reports whether the task may be delivered to the profile. Only
// QUEUED tasks are deliverable.
func Matches(task *v1.Task, profile Profile) bool {
	if task.Status != v1.TaskStatusQueued {
		return false
	}

	// Explicit target pins the task to one agent id.
	if task.To.AgentID != "" && task.To.AgentID != profile.AgentID {
		return false
	}

	// Workspace affinity is exact string equality against the agent's repo id
	// or path. An unbound agent never matches a workspace-bound task.
	if task.To.WorkspaceID != "" {
		if profile.Workspace == nil {
			return false
		}
		if profile.Workspace.RepoID != task.To.WorkspaceID && profile.Workspace.Path != task.To.WorkspaceID {
			return false
		}
	}

	if len(task.To.RequiredCapabilities) > 0 {
		if !hasAll(profile.Capabilities, task.To.RequiredCapabilities) {
			return false
		}
	} else if task.To.Role != "" {
		// Legacy routing: the role is treated as a single required capability.
		if !hasAll(profile.Capabilities, []string{task.To.Role}) {
			return false
		}
	}

	return true
}

// PickTask returns the best deliverable task for the profile: highest
// priority first, then oldest createdAt, then id for determinism. Returns
// nil when nothing matches.
func PickTask(tasks []*v1.Task, profile Profile) *v1.Task {
	var best *v1.Task
	for _, task := range tasks {
		if !Matches(task, profile) {
			continue
		}
		if best == nil || better(task, best) {
			best = task
		}
	}
	return best
}

func better(a, b *v1.Task) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra > rb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func hasAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, c := range have {
		set[c] = struct{}{}
	}
	for _, c := range want {
		if _, ok := set[c]; !ok {
			return false
		}
	}
	return true
}
