package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/opensourcewtf/waaah/internal/common/apperr"
	sqliteutil "github.com/opensourcewtf/waaah/internal/common/sqlite"
	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

const agentColumns = `id, display_name, aliases, capabilities, workspace, color, last_seen, waiting_since, eviction_requested, eviction_reason, eviction_action`

// UpsertAgent inserts or replaces an agent row and rewrites its alias index.
// Registration clears any pending eviction signal; the broadcast watermark
// survives re-registration. Aliases are stored lowercased for
// case-insensitive resolution.
func (s *Store) UpsertAgent(ctx context.Context, agent *v1.Agent) error {
	aliases, err := json.Marshal(agent.Aliases)
	if err != nil {
		aliases = []byte("[]")
	}
	capabilities, err := json.Marshal(agent.Capabilities)
	if err != nil {
		capabilities = []byte("[]")
	}
	workspace := ""
	if agent.WorkspaceContext != nil {
		raw, err := json.Marshal(agent.WorkspaceContext)
		if err == nil {
			workspace = string(raw)
		}
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO agents (id, display_name, aliases, capabilities, workspace, color, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			aliases = excluded.aliases,
			capabilities = excluded.capabilities,
			workspace = excluded.workspace,
			color = excluded.color,
			last_seen = excluded.last_seen,
			eviction_requested = 0,
			eviction_reason = '',
			eviction_action = '',
			updated_at = excluded.updated_at
	`), agent.ID, agent.DisplayName, string(aliases), string(capabilities), workspace, agent.Color, agent.LastSeen, now, now)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM aliases WHERE agent_id = ?`), agent.ID); err != nil {
		return err
	}
	for _, alias := range agent.Aliases {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if alias == "" {
			continue
		}
		if _, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO aliases (alias, agent_id) VALUES (?, ?)
			ON CONFLICT(alias) DO UPDATE SET agent_id = excluded.agent_id
		`), alias, agent.ID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ResolveAlias returns the agent id an alias maps to. The lookup is
// case-insensitive.
func (s *Store) ResolveAlias(ctx context.Context, alias string) (string, error) {
	var agentID string
	err := s.ro.QueryRowContext(ctx, s.ro.Rebind(`
		SELECT agent_id FROM aliases WHERE alias = ?
	`), strings.ToLower(strings.TrimSpace(alias))).Scan(&agentID)
	if err == sql.ErrNoRows {
		return "", apperr.NotFoundf("alias %s", alias)
	}
	return agentID, err
}

// GetAgent retrieves an agent by ID
func (s *Store) GetAgent(ctx context.Context, id string) (*v1.Agent, error) {
	row := s.ro.QueryRowContext(ctx, s.ro.Rebind(`
		SELECT `+agentColumns+` FROM agents WHERE id = ?
	`), id)
	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("agent %s", id)
	}
	return agent, err
}

// ListAgents returns all registered agents ordered by ID.
func (s *Store) ListAgents(ctx context.Context) ([]*v1.Agent, error) {
	rows, err := s.ro.QueryContext(ctx, `
		SELECT `+agentColumns+` FROM agents ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*v1.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	return result, rows.Err()
}

// DeleteAgent deletes an agent by ID
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM agents WHERE id = ?`), id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFoundf("agent %s", id)
	}
	return nil
}

// CountAgents returns the number of registered agents.
func (s *Store) CountAgents(ctx context.Context) (int, error) {
	var count int
	err := s.ro.QueryRowContext(ctx, `SELECT COUNT(1) FROM agents`).Scan(&count)
	return count, err
}

// TouchAgent updates an agent's last_seen timestamp (unix ms).
func (s *Store) TouchAgent(ctx context.Context, id string, lastSeen int64) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE agents SET last_seen = ?, updated_at = ? WHERE id = ?
	`), lastSeen, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFoundf("agent %s", id)
	}
	return nil
}

// SetAgentWaiting records when an agent parked in a wait (nil clears the flag).
func (s *Store) SetAgentWaiting(ctx context.Context, id string, since *int64) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE agents SET waiting_since = ?, updated_at = ? WHERE id = ?
	`), since, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFoundf("agent %s", id)
	}
	return nil
}

// SetAgentEviction sets or clears an agent's pending eviction signal.
func (s *Store) SetAgentEviction(ctx context.Context, id string, requested bool, reason string, action v1.EvictionAction) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE agents
		SET eviction_requested = ?, eviction_reason = ?, eviction_action = ?, updated_at = ?
		WHERE id = ?
	`), sqliteutil.BoolToInt(requested), reason, string(action), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFoundf("agent %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*v1.Agent, error) {
	agent := &v1.Agent{}
	var aliases, capabilities, workspace string
	var waitingSince sql.NullInt64
	var evictionRequested int
	var evictionAction string

	if err := row.Scan(
		&agent.ID,
		&agent.DisplayName,
		&aliases,
		&capabilities,
		&workspace,
		&agent.Color,
		&agent.LastSeen,
		&waitingSince,
		&evictionRequested,
		&agent.EvictionReason,
		&evictionAction,
	); err != nil {
		return nil, err
	}

	_ = json.Unmarshal([]byte(aliases), &agent.Aliases)
	_ = json.Unmarshal([]byte(capabilities), &agent.Capabilities)
	if workspace != "" {
		wc := &v1.WorkspaceContext{}
		if err := json.Unmarshal([]byte(workspace), wc); err == nil {
			agent.WorkspaceContext = wc
		}
	}
	if waitingSince.Valid {
		agent.WaitingSince = &waitingSince.Int64
	}
	agent.EvictionRequested = evictionRequested != 0
	agent.EvictionAction = v1.EvictionAction(evictionAction)
	return agent, nil
}
