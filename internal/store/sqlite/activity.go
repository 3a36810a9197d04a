package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

// AppendLog writes one activity log record.
func (s *Store) AppendLog(ctx context.Context, entry *v1.LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil || entry.Metadata == nil {
		metadata = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO logs (id, category, message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), entry.ID, entry.Category, entry.Message, string(metadata), entry.Timestamp)
	return err
}

// ListLogs returns activity log records, newest first.
func (s *Store) ListLogs(ctx context.Context, filter v1.LogFilter) ([]*v1.LogEntry, error) {
	query := `SELECT id, category, message, metadata, created_at FROM logs`
	var args []interface{}
	if filter.Category != "" {
		query += ` WHERE category = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.ro.QueryContext(ctx, s.ro.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*v1.LogEntry
	for rows.Next() {
		entry := &v1.LogEntry{}
		var metadata string
		if err := rows.Scan(&entry.ID, &entry.Category, &entry.Message, &metadata, &entry.Timestamp); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(metadata), &entry.Metadata)
		result = append(result, entry)
	}
	return result, rows.Err()
}

// PruneLogs deletes activity log records older than the cutoff and returns
// how many were removed.
func (s *Store) PruneLogs(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		DELETE FROM logs WHERE created_at < ?
	`), before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// AddSecurityEvent records a prompt screening outcome.
func (s *Store) AddSecurityEvent(ctx context.Context, event *v1.SecurityEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	flags, err := json.Marshal(event.Flags)
	if err != nil {
		flags = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO security_events (id, source, from_id, prompt, flags, action, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), event.ID, event.Source, event.FromID, event.Prompt, string(flags), event.Action, event.Timestamp)
	return err
}

// ListSecurityEvents returns screening records, newest first.
func (s *Store) ListSecurityEvents(ctx context.Context, limit int) ([]*v1.SecurityEvent, error) {
	query := `SELECT id, source, from_id, prompt, flags, action, created_at FROM security_events ORDER BY created_at DESC, id`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.ro.QueryContext(ctx, s.ro.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*v1.SecurityEvent
	for rows.Next() {
		event := &v1.SecurityEvent{}
		var flags string
		if err := rows.Scan(&event.ID, &event.Source, &event.FromID, &event.Prompt, &flags, &event.Action, &event.Timestamp); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(flags), &event.Flags)
		result = append(result, event)
	}
	return result, rows.Err()
}
