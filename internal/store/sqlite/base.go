// Package sqlite provides the SQLite-backed store implementation.
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	sqliteutil "github.com/opensourcewtf/waaah/internal/common/sqlite"
	"github.com/opensourcewtf/waaah/internal/db/dialect"
)

// Store provides SQLite-based storage for agents, tasks, prompts, and logs.
// Connection lifetime belongs to the caller (the db.Pool in production).
type Store struct {
	db *sqlx.DB // writer
	ro *sqlx.DB // reader (read-only pool)
}

// NewWithDB creates a store over existing writer and reader connections and
// initializes the schema.
func NewWithDB(writer, reader *sqlx.DB) (*Store, error) {
	st := &Store{db: writer, ro: reader}
	if err := st.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return st, nil
}

// DB returns the underlying writer for shared access.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// initSchema creates the database tables if they don't exist
func (s *Store) initSchema() error {
	if err := s.initAgentSchema(); err != nil {
		return err
	}
	if err := s.initTaskSchema(); err != nil {
		return err
	}
	if err := s.initPromptSchema(); err != nil {
		return err
	}
	if err := s.initActivitySchema(); err != nil {
		return err
	}
	return s.runMigrations()
}

func (s *Store) initAgentSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		aliases TEXT NOT NULL DEFAULT '[]',
		capabilities TEXT NOT NULL DEFAULT '[]',
		workspace TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		last_seen INTEGER NOT NULL DEFAULT 0,
		waiting_since INTEGER,
		eviction_requested INTEGER NOT NULL DEFAULT 0,
		eviction_reason TEXT NOT NULL DEFAULT '',
		eviction_action TEXT NOT NULL DEFAULT '',
		prompt_watermark TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS aliases (
		alias TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_aliases_alias ON aliases(alias);
	CREATE INDEX IF NOT EXISTS idx_aliases_agent_id ON aliases(agent_id);
	`)
	return err
}

func (s *Store) initTaskSchema() error {
	if _, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		prompt TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'normal',
		from_type TEXT NOT NULL DEFAULT '',
		from_id TEXT NOT NULL DEFAULT '',
		from_name TEXT NOT NULL DEFAULT '',
		to_agent_id TEXT NOT NULL DEFAULT '',
		to_role TEXT NOT NULL DEFAULT '',
		to_workspace_id TEXT NOT NULL DEFAULT '',
		to_capabilities TEXT NOT NULL DEFAULT '[]',
		assigned_to TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT '{}',
		response TEXT NOT NULL DEFAULT '',
		dependencies TEXT NOT NULL DEFAULT '[]',
		history TEXT NOT NULL DEFAULT '[]',
		pending_ack_agent_id TEXT NOT NULL DEFAULT '',
		ack_sent_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		last_progress_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_messages (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS review_comments (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		file_path TEXT NOT NULL DEFAULT '',
		line_number INTEGER NOT NULL DEFAULT 0,
		content TEXT NOT NULL,
		thread_id TEXT NOT NULL DEFAULT '',
		resolved INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);
	`); err != nil {
		return err
	}
	return s.initTaskIndexes()
}

func (s *Store) initTaskIndexes() error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_to_agent_id ON tasks(to_agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_to_workspace_id ON tasks(to_workspace_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assigned_to ON tasks(assigned_to)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_task_created ON task_messages(task_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_review_comments_task_id ON review_comments(task_id)`,
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) initPromptSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS system_prompts (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		prompt_type TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		priority TEXT NOT NULL DEFAULT 'normal',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_system_prompts_agent_created ON system_prompts(agent_id, created_at);
	`)
	return err
}

func (s *Store) initActivitySchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS logs (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_logs_category ON logs(category);

	CREATE TABLE IF NOT EXISTS security_events (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL DEFAULT '',
		from_id TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL,
		flags TEXT NOT NULL DEFAULT '[]',
		action TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_security_events_created_at ON security_events(created_at);
	`)
	return err
}

// runMigrations applies idempotent column additions for schema evolution.
// PRAGMA table_info is SQLite-only; Postgres databases are created from the
// current schema and need no backfill.
func (s *Store) runMigrations() error {
	if dialect.IsPostgres(s.db.DriverName()) {
		return nil
	}
	if err := sqliteutil.EnsureColumn(s.db.DB, "agents", "eviction_action", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if err := sqliteutil.EnsureColumn(s.db.DB, "agents", "prompt_watermark", "TIMESTAMP"); err != nil {
		return err
	}
	if err := sqliteutil.EnsureColumn(s.db.DB, "tasks", "last_progress_at", "TIMESTAMP"); err != nil {
		return err
	}
	return sqliteutil.EnsureColumn(s.db.DB, "tasks", "pending_ack_agent_id", "TEXT NOT NULL DEFAULT ''")
}
