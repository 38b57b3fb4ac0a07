// Package store is the durable mirror behind the in-memory task store.
// Failures here are reported to callers and treated as soft warnings;
// the in-memory state stays authoritative.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/stellarlinkco/taskclaw/internal/task"
)

const timeLayout = time.RFC3339Nano

type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *SQLite) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			text TEXT NOT NULL,
			is_completed INTEGER NOT NULL DEFAULT 0,
			completed_at TEXT,
			due_date TEXT,
			priority TEXT NOT NULL DEFAULT 'medium',
			reminders TEXT NOT NULL DEFAULT '[]',
			category TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT 'Other',
			custom_notification_time TEXT,
			created_at TEXT NOT NULL,
			seq INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner, seq)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_owner ON messages(owner)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put is an idempotent upsert by id. Insertion order is preserved via a
// monotonically assigned seq that survives re-puts of the same id.
func (s *SQLite) Put(t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminders, err := json.Marshal(timesToStrings(t.Reminders))
	if err != nil {
		return fmt.Errorf("encode reminders: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO tasks
		(id, owner, text, is_completed, completed_at, due_date, priority, reminders, category, type, custom_notification_time, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM tasks))
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			text = excluded.text,
			is_completed = excluded.is_completed,
			completed_at = excluded.completed_at,
			due_date = excluded.due_date,
			priority = excluded.priority,
			reminders = excluded.reminders,
			category = excluded.category,
			type = excluded.type,
			custom_notification_time = excluded.custom_notification_time,
			created_at = excluded.created_at`,
		t.ID, t.Owner, t.Text, boolToInt(t.IsCompleted),
		optTime(t.CompletedAt), optTime(t.DueDate),
		string(t.Priority), string(reminders), t.Category, string(t.Type),
		optTime(t.CustomNotificationTime), t.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("put task %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLite) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) GetAll(owner string) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, owner, text, is_completed, completed_at, due_date, priority, reminders, category, type, custom_notification_time, created_at
		FROM tasks WHERE owner = ? ORDER BY seq`, owner)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		var (
			t                          task.Task
			completed                  int
			completedAt, due, custom   sql.NullString
			priority, typ, remindersJS string
			createdAt                  string
		)
		if err := rows.Scan(&t.ID, &t.Owner, &t.Text, &completed, &completedAt, &due, &priority, &remindersJS, &t.Category, &typ, &custom, &createdAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.IsCompleted = completed != 0
		t.Priority = task.ParsePriority(priority)
		t.Type = task.ParseType(typ)
		if t.CompletedAt, err = parseOptTime(completedAt); err != nil {
			return nil, err
		}
		if t.DueDate, err = parseOptTime(due); err != nil {
			return nil, err
		}
		if t.CustomNotificationTime, err = parseOptTime(custom); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", t.ID, err)
		}
		var reminderStrs []string
		if err := json.Unmarshal([]byte(remindersJS), &reminderStrs); err != nil {
			return nil, fmt.Errorf("decode reminders for %s: %w", t.ID, err)
		}
		for _, rs := range reminderStrs {
			at, err := time.Parse(timeLayout, rs)
			if err != nil {
				return nil, fmt.Errorf("parse reminder for %s: %w", t.ID, err)
			}
			t.Reminders = append(t.Reminders, at)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Message is one persisted conversation turn. The millisecond timestamp
// lives in the id prefix; retrieval order derives from it.
type Message struct {
	ID      string
	Owner   string
	Role    string
	Content string
}

// NewMessageID embeds the creation instant in the id so ordering never
// needs a separate column.
func NewMessageID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

func (s *SQLite) PutMessage(m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO messages (id, owner, role, content) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET role = excluded.role, content = excluded.content`,
		m.ID, m.Owner, m.Role, m.Content)
	if err != nil {
		return fmt.Errorf("put message %s: %w", m.ID, err)
	}
	return nil
}

// Messages returns the owner's conversation log ordered by the timestamp
// embedded in each record id.
func (s *SQLite) Messages(owner string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, owner, role, content FROM messages WHERE owner = ?
		ORDER BY CAST(substr(id, 1, instr(id, '-') - 1) AS INTEGER), id`, owner)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Owner, &m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(timeLayout)
}

func parseOptTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", ns.String, err)
	}
	return &t, nil
}

func timesToStrings(ts []time.Time) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Format(timeLayout))
	}
	return out
}
