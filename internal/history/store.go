// Package history persists the chat transcript to a local SQLite database so
// a panel restart does not lose the conversation.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"clawpanel/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	session_key TEXT NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_key, created_at);
`

// Message is one persisted transcript entry.
type Message struct {
	ID         string    `json:"id"`
	SessionKey string    `json:"session_key"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store wraps the transcript database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the transcript database at path.
func Open(path string) (*Store, error) {
	expandedPath, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", expandedPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, path: expandedPath}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one message and returns the stored entry.
func (s *Store) Append(sessionKey, role, content string) (*Message, error) {
	msg := &Message{
		ID:         uuid.New().String(),
		SessionKey: sessionKey,
		Role:       role,
		Content:    content,
		CreatedAt:  time.Now(),
	}

	_, err := s.db.Exec(
		"INSERT INTO messages (id, session_key, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ID, msg.SessionKey, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// List returns up to limit messages for a session in chronological order.
// limit <= 0 returns everything.
func (s *Store) List(sessionKey string, limit int) ([]*Message, error) {
	query := "SELECT id, role, content, created_at FROM messages WHERE session_key = ? ORDER BY created_at ASC"
	args := []any{sessionKey}
	if limit > 0 {
		// Window to the most recent entries while keeping output chronological.
		query = `SELECT id, role, content, created_at FROM (
			SELECT id, role, content, created_at FROM messages
			WHERE session_key = ? ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at ASC`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{SessionKey: sessionKey}
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Clear deletes every message for a session. Used on conversation reset.
func (s *Store) Clear(sessionKey string) error {
	_, err := s.db.Exec("DELETE FROM messages WHERE session_key = ?", sessionKey)
	return err
}
