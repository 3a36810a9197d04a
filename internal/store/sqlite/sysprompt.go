package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

// broadcastAgentID marks a prompt row visible to every agent. Broadcast rows
// are never deleted on pop; each agent's prompt_watermark tracks how far into
// the broadcast stream it has read.
const broadcastAgentID = "*"

// EnqueueSystemPrompt inserts a one-shot prompt row for an agent (or "*").
func (s *Store) EnqueueSystemPrompt(ctx context.Context, prompt *v1.SystemPrompt) error {
	if prompt.ID == "" {
		prompt.ID = uuid.New().String()
	}
	if prompt.CreatedAt.IsZero() {
		prompt.CreatedAt = time.Now().UTC()
	}
	if prompt.Priority == "" {
		prompt.Priority = v1.PriorityNormal
	}
	payload, err := json.Marshal(prompt.Payload)
	if err != nil || prompt.Payload == nil {
		payload = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO system_prompts (id, agent_id, prompt_type, message, payload, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), prompt.ID, prompt.AgentID, prompt.PromptType, prompt.Message, string(payload),
		string(prompt.Priority), prompt.CreatedAt)
	return err
}

// PopSystemPrompt atomically takes the oldest dedicated prompt for an agent,
// falling back to the oldest unseen broadcast row. Dedicated rows are
// consumed by deletion; broadcast rows advance the agent's watermark instead
// so every agent sees them exactly once. Returns nil when the queue is empty.
func (s *Store) PopSystemPrompt(ctx context.Context, agentID string) (*v1.SystemPrompt, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var watermark sql.NullTime
	err = tx.QueryRowContext(ctx, tx.Rebind(`
		SELECT prompt_watermark FROM agents WHERE id = ?
	`), agentID).Scan(&watermark)
	haveAgentRow := err == nil
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	dedicated, err := queryOnePrompt(ctx, tx, tx.Rebind(`
		SELECT id, agent_id, prompt_type, message, payload, priority, created_at
		FROM system_prompts WHERE agent_id = ?
		ORDER BY created_at, id LIMIT 1
	`), agentID)
	if err != nil {
		return nil, err
	}

	picked := dedicated
	if picked == nil && haveAgentRow {
		since := time.Time{}
		if watermark.Valid {
			since = watermark.Time
		}
		picked, err = queryOnePrompt(ctx, tx, tx.Rebind(`
			SELECT id, agent_id, prompt_type, message, payload, priority, created_at
			FROM system_prompts WHERE agent_id = ? AND created_at > ?
			ORDER BY created_at, id LIMIT 1
		`), broadcastAgentID, since)
		if err != nil {
			return nil, err
		}
	}
	if picked == nil {
		return nil, nil
	}

	if picked.AgentID == broadcastAgentID {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE agents SET prompt_watermark = ? WHERE id = ?
		`), picked.CreatedAt, agentID); err != nil {
			return nil, err
		}
	} else {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			DELETE FROM system_prompts WHERE id = ?
		`), picked.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return picked, nil
}

// CountSystemPrompts returns the number of pending prompts addressed directly
// to an agent. Broadcast rows are excluded (their pending-ness is per reader).
func (s *Store) CountSystemPrompts(ctx context.Context, agentID string) (int, error) {
	var count int
	err := s.ro.QueryRowContext(ctx, s.ro.Rebind(`
		SELECT COUNT(1) FROM system_prompts WHERE agent_id = ?
	`), agentID).Scan(&count)
	return count, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func queryOnePrompt(ctx context.Context, q queryRower, query string, args ...interface{}) (*v1.SystemPrompt, error) {
	prompt := &v1.SystemPrompt{}
	var payload, priority string
	err := q.QueryRowContext(ctx, query, args...).Scan(
		&prompt.ID, &prompt.AgentID, &prompt.PromptType, &prompt.Message,
		&payload, &priority, &prompt.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(payload), &prompt.Payload)
	prompt.Priority = v1.TaskPriority(priority)
	return prompt, nil
}
