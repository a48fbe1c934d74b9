package taskboard

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists tasks to SQLite so a board survives process restarts.
// The in-memory board stays the source of truth; writes go through the
// board's single-writer path.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed initializes) the task database.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create task store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id         INTEGER PRIMARY KEY,
	title      TEXT NOT NULL,
	status     TEXT NOT NULL,
	notes      TEXT NOT NULL DEFAULT '',
	owner      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize task store: %w", err)
	}

	return &Store{db: db}, nil
}

// Load returns all persisted tasks in id order.
func (s *Store) Load() ([]Task, error) {
	rows, err := s.db.Query(
		`SELECT id, title, status, notes, owner, created_at, updated_at FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var task Task
		var created, updated string
		if err := rows.Scan(&task.ID, &task.Title, &task.Status, &task.Notes, &task.Owner, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		task.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// Save upserts one task.
func (s *Store) Save(task Task) error {
	_, err := s.db.Exec(
		`INSERT INTO tasks (id, title, status, notes, owner, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   status = excluded.status,
		   notes = excluded.notes,
		   owner = excluded.owner,
		   updated_at = excluded.updated_at`,
		task.ID, task.Title, string(task.Status), task.Notes, task.Owner,
		task.CreatedAt.Format(time.RFC3339Nano), task.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save task #%d: %w", task.ID, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
