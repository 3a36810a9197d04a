package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/opensourcewtf/waaah/internal/common/apperr"
	sqliteutil "github.com/opensourcewtf/waaah/internal/common/sqlite"
	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

// AddTaskMessage appends a message to a task's conversation log.
func (s *Store) AddTaskMessage(ctx context.Context, msg *v1.TaskMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil || msg.Metadata == nil {
		metadata = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO task_messages (id, task_id, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), msg.ID, msg.TaskID, msg.Role, msg.Content, string(metadata), msg.Timestamp)
	return err
}

// ListTaskMessages returns a task's messages in chronological order.
func (s *Store) ListTaskMessages(ctx context.Context, taskID string) ([]*v1.TaskMessage, error) {
	rows, err := s.ro.QueryContext(ctx, s.ro.Rebind(`
		SELECT id, task_id, role, content, metadata, created_at
		FROM task_messages
		WHERE task_id = ?
		ORDER BY created_at, id
	`), taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*v1.TaskMessage
	for rows.Next() {
		msg := &v1.TaskMessage{}
		var metadata string
		if err := rows.Scan(&msg.ID, &msg.TaskID, &msg.Role, &msg.Content, &metadata, &msg.Timestamp); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(metadata), &msg.Metadata)
		result = append(result, msg)
	}
	return result, rows.Err()
}

// AddReviewComment attaches an inline review note to a task.
func (s *Store) AddReviewComment(ctx context.Context, comment *v1.ReviewComment) error {
	if comment.ID == "" {
		comment.ID = uuid.New().String()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO review_comments (id, task_id, file_path, line_number, content, thread_id, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), comment.ID, comment.TaskID, comment.FilePath, comment.LineNumber, comment.Content,
		comment.ThreadID, sqliteutil.BoolToInt(comment.Resolved), comment.CreatedAt)
	return err
}

// ListReviewComments returns a task's review comments in chronological order.
func (s *Store) ListReviewComments(ctx context.Context, taskID string) ([]*v1.ReviewComment, error) {
	rows, err := s.ro.QueryContext(ctx, s.ro.Rebind(`
		SELECT id, task_id, file_path, line_number, content, thread_id, resolved, created_at
		FROM review_comments
		WHERE task_id = ?
		ORDER BY created_at, id
	`), taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*v1.ReviewComment
	for rows.Next() {
		comment := &v1.ReviewComment{}
		var resolved int
		if err := rows.Scan(&comment.ID, &comment.TaskID, &comment.FilePath, &comment.LineNumber,
			&comment.Content, &comment.ThreadID, &resolved, &comment.CreatedAt); err != nil {
			return nil, err
		}
		comment.Resolved = resolved != 0
		result = append(result, comment)
	}
	return result, rows.Err()
}

// ResolveReviewComment marks a review comment resolved or unresolved.
func (s *Store) ResolveReviewComment(ctx context.Context, id string, resolved bool) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE review_comments SET resolved = ? WHERE id = ?
	`), sqliteutil.BoolToInt(resolved), id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFoundf("review comment %s", id)
	}
	return nil
}
