package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/opensourcewtf/waaah/internal/common/apperr"
	"github.com/opensourcewtf/waaah/internal/db/dialect"
	"github.com/opensourcewtf/waaah/internal/tracing"
	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

const taskColumns = `id, status, prompt, priority, from_type, from_id, from_name,
	to_agent_id, to_role, to_workspace_id, to_capabilities, assigned_to,
	context, response, dependencies, history, pending_ack_agent_id,
	ack_sent_at, created_at, completed_at, last_progress_at`

// CreateTask creates a new task
func (s *Store) CreateTask(ctx context.Context, task *v1.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	capabilities, contextJSON, response, dependencies, history := marshalTaskFields(task)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO tasks (id, status, prompt, priority, from_type, from_id, from_name,
			to_agent_id, to_role, to_workspace_id, to_capabilities, assigned_to,
			context, response, dependencies, history, pending_ack_agent_id,
			ack_sent_at, created_at, completed_at, last_progress_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), task.ID, string(task.Status), task.Prompt, string(task.Priority),
		task.From.Type, task.From.ID, task.From.Name,
		task.To.AgentID, task.To.Role, task.To.WorkspaceID, capabilities, task.AssignedTo,
		contextJSON, response, dependencies, history, task.PendingAckAgentID,
		task.AckSentAt, task.CreatedAt, task.CompletedAt, task.LastProgressAt, task.CreatedAt)
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return rollbackErr
		}
		return err
	}

	return tx.Commit()
}

// GetTask retrieves a task by ID
func (s *Store) GetTask(ctx context.Context, id string) (*v1.Task, error) {
	row := s.ro.QueryRowContext(ctx, s.ro.Rebind(`
		SELECT `+taskColumns+` FROM tasks WHERE id = ?
	`), id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("task %s", id)
	}
	return task, err
}

// UpdateTask persists the full task row unconditionally.
func (s *Store) UpdateTask(ctx context.Context, task *v1.Task) error {
	rows, err := s.writeTaskRow(ctx, task, ``, nil)
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.NotFoundf("task %s", task.ID)
	}
	return nil
}

// UpdateTaskFrom persists the full task row only while the stored status still
// equals from. When a concurrent transition got there first the row is left
// untouched and a wrong-state error is returned, so a stale snapshot can never
// overwrite another writer's transition.
func (s *Store) UpdateTaskFrom(ctx context.Context, task *v1.Task, from v1.TaskStatus) error {
	rows, err := s.writeTaskRow(ctx, task, ` AND status = ?`, []interface{}{string(from)})
	if err != nil {
		return err
	}
	if rows != 0 {
		return nil
	}
	current, err := s.GetTask(ctx, task.ID)
	if err != nil {
		return err
	}
	return apperr.WrongStatef("task %s is %s, expected %s", task.ID, current.Status, from)
}

func (s *Store) writeTaskRow(ctx context.Context, task *v1.Task, where string, whereArgs []interface{}) (int64, error) {
	capabilities, contextJSON, response, dependencies, history := marshalTaskFields(task)

	args := []interface{}{string(task.Status), task.Prompt, string(task.Priority),
		task.From.Type, task.From.ID, task.From.Name,
		task.To.AgentID, task.To.Role, task.To.WorkspaceID, capabilities,
		task.AssignedTo, contextJSON, response, dependencies, history,
		task.PendingAckAgentID, task.AckSentAt, task.CompletedAt, task.LastProgressAt,
		time.Now().UTC(), task.ID}
	args = append(args, whereArgs...)

	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE tasks SET status = ?, prompt = ?, priority = ?,
			from_type = ?, from_id = ?, from_name = ?,
			to_agent_id = ?, to_role = ?, to_workspace_id = ?, to_capabilities = ?,
			assigned_to = ?, context = ?, response = ?, dependencies = ?, history = ?,
			pending_ack_agent_id = ?, ack_sent_at = ?, completed_at = ?, last_progress_at = ?,
			updated_at = ?
		WHERE id = ?`+where+`
	`), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListTasks returns tasks matching the filter, newest first.
func (s *Store) ListTasks(ctx context.Context, filter v1.TaskFilter) ([]*v1.Task, error) {
	ctx, span := tracing.Tracer("waaah-db").Start(ctx, "db.ListTasks")
	defer span.End()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []interface{}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.AgentID != "" {
		query += ` AND assigned_to = ?`
		args = append(args, filter.AgentID)
	}
	if filter.WorkspaceID != "" {
		query += ` AND to_workspace_id = ?`
		args = append(args, filter.WorkspaceID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.ro.QueryContext(ctx, s.ro.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanTasks(rows)
}

// ListQueuedTasks returns QUEUED tasks ordered by enqueue time (oldest first).
// Priority ordering is applied by the dispatcher, which needs the full set.
func (s *Store) ListQueuedTasks(ctx context.Context) ([]*v1.Task, error) {
	rows, err := s.ro.QueryContext(ctx, s.ro.Rebind(`
		SELECT `+taskColumns+` FROM tasks
		WHERE status = ?
		ORDER BY created_at, id
	`), string(v1.TaskStatusQueued))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanTasks(rows)
}

// ListExpiredAcks returns PENDING_ACK tasks whose delivery was sent before the cutoff.
func (s *Store) ListExpiredAcks(ctx context.Context, cutoff time.Time) ([]*v1.Task, error) {
	rows, err := s.ro.QueryContext(ctx, s.ro.Rebind(`
		SELECT `+taskColumns+` FROM tasks
		WHERE status = ? AND ack_sent_at IS NOT NULL AND ack_sent_at < ?
		ORDER BY ack_sent_at
	`), string(v1.TaskStatusPendingAck), cutoff)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanTasks(rows)
}

// ListActiveTasksForAgent returns the tasks an agent is currently responsible
// for: assigned non-terminal work plus un-acked deliveries reserved for it.
func (s *Store) ListActiveTasksForAgent(ctx context.Context, agentID string) ([]*v1.Task, error) {
	rows, err := s.ro.QueryContext(ctx, s.ro.Rebind(`
		SELECT `+taskColumns+` FROM tasks
		WHERE (assigned_to = ? AND status IN (?, ?, ?, ?))
		   OR (pending_ack_agent_id = ? AND status = ?)
		ORDER BY created_at
	`), agentID,
		string(v1.TaskStatusAssigned), string(v1.TaskStatusInProgress),
		string(v1.TaskStatusInReview), string(v1.TaskStatusBlocked),
		agentID, string(v1.TaskStatusPendingAck))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanTasks(rows)
}

// ListDependents returns non-terminal tasks that declare taskID as a
// dependency. The LIKE pre-filter narrows candidates; the JSON field is
// re-checked after scanning.
func (s *Store) ListDependents(ctx context.Context, taskID string) ([]*v1.Task, error) {
	like := dialect.Like(s.ro.DriverName())
	rows, err := s.ro.QueryContext(ctx, s.ro.Rebind(`
		SELECT `+taskColumns+` FROM tasks
		WHERE status IN (?, ?) AND dependencies `+like+` ?
		ORDER BY created_at
	`), string(v1.TaskStatusQueued), string(v1.TaskStatusBlocked), `%"`+taskID+`"%`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	candidates, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	var result []*v1.Task
	for _, task := range candidates {
		for _, dep := range task.Dependencies {
			if dep == taskID {
				result = append(result, task)
				break
			}
		}
	}
	return result, nil
}

func marshalTaskFields(task *v1.Task) (capabilities, contextJSON, response, dependencies, history string) {
	raw, err := json.Marshal(task.To.RequiredCapabilities)
	if err != nil {
		raw = []byte("[]")
	}
	capabilities = string(raw)

	raw, err = json.Marshal(task.Context)
	if err != nil || task.Context == nil {
		raw = []byte("{}")
	}
	contextJSON = string(raw)

	if task.Response != nil {
		raw, err = json.Marshal(task.Response)
		if err == nil {
			response = string(raw)
		}
	}

	raw, err = json.Marshal(task.Dependencies)
	if err != nil {
		raw = []byte("[]")
	}
	dependencies = string(raw)

	raw, err = json.Marshal(task.History)
	if err != nil {
		raw = []byte("[]")
	}
	history = string(raw)
	return
}

func scanTask(row rowScanner) (*v1.Task, error) {
	task := &v1.Task{}
	var capabilities, contextJSON, response, dependencies, history string
	var ackSentAt, completedAt, lastProgressAt sql.NullTime

	if err := row.Scan(
		&task.ID, &task.Status, &task.Prompt, &task.Priority,
		&task.From.Type, &task.From.ID, &task.From.Name,
		&task.To.AgentID, &task.To.Role, &task.To.WorkspaceID, &capabilities, &task.AssignedTo,
		&contextJSON, &response, &dependencies, &history, &task.PendingAckAgentID,
		&ackSentAt, &task.CreatedAt, &completedAt, &lastProgressAt,
	); err != nil {
		return nil, err
	}

	_ = json.Unmarshal([]byte(capabilities), &task.To.RequiredCapabilities)
	_ = json.Unmarshal([]byte(contextJSON), &task.Context)
	if response != "" {
		resp := &v1.Response{}
		if err := json.Unmarshal([]byte(response), resp); err == nil {
			task.Response = resp
		}
	}
	_ = json.Unmarshal([]byte(dependencies), &task.Dependencies)
	_ = json.Unmarshal([]byte(history), &task.History)
	if ackSentAt.Valid {
		t := ackSentAt.Time
		task.AckSentAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	if lastProgressAt.Valid {
		t := lastProgressAt.Time
		task.LastProgressAt = &t
	}
	return task, nil
}

func scanTasks(rows *sql.Rows) ([]*v1.Task, error) {
	var result []*v1.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	return result, rows.Err()
}
