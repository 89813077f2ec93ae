// ABOUTME: SQLite implementation of the MessageStore interface using modernc.org/sqlite
// ABOUTME: Provides the append-only message log with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so lexical order of the stored text matches
// chronological order, which MIN/MAX and ORDER BY rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements MessageStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. The special path ":memory:"
// opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	inMemory := path == ":memory:"
	dsn := path
	if !inMemory {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if inMemory {
		// Every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else {
		// Enable WAL mode for better concurrent performance
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL DEFAULT '',
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL,

			CHECK (role IN ('user', 'ai'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_created
			ON messages(created_at);

		CREATE INDEX IF NOT EXISTS idx_messages_session_created
			ON messages(session_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Append inserts a message. ID and CreatedAt are generated when empty.
func (s *SQLiteStore) Append(ctx context.Context, msg *Message) (*Message, error) {
	if !msg.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", msg.Role)
	}

	stored := *msg
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	stored.CreatedAt = stored.CreatedAt.UTC()

	query := `
		INSERT INTO messages (id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		stored.ID,
		stored.SessionID,
		string(stored.Role),
		stored.Content,
		stored.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("appended message",
		"message_id", stored.ID,
		"session_id", stored.SessionID,
		"role", stored.Role)
	return &stored, nil
}

// Query returns messages in chronological order, ties broken by insertion order.
func (s *SQLiteStore) Query(ctx context.Context, sessionID string) ([]*Message, error) {
	query := `
		SELECT id, session_id, role, content, created_at
		FROM messages
	`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at ASC, seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var role, createdAtStr string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = Role(role)
		msg.CreatedAt, err = time.Parse(timeLayout, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

// DeleteMany deletes all messages of a session, or every message when
// sessionID is empty.
func (s *SQLiteStore) DeleteMany(ctx context.Context, sessionID string) (int64, error) {
	query := `DELETE FROM messages`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting messages: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted messages: %w", err)
	}

	s.logger.Debug("deleted messages", "session_id", sessionID, "count", n)
	return n, nil
}

// DeleteMessage deletes a single message by ID.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AggregateSessions groups messages by session, most recently active first.
func (s *SQLiteStore) AggregateSessions(ctx context.Context) ([]SessionAggregate, error) {
	query := `
		SELECT session_id, COUNT(*), MIN(created_at), MAX(created_at) AS last_created_at
		FROM messages
		WHERE session_id != ''
		GROUP BY session_id
		ORDER BY last_created_at DESC, session_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("aggregating sessions: %w", err)
	}
	defer rows.Close()

	var aggregates []SessionAggregate
	for rows.Next() {
		var agg SessionAggregate
		var firstStr, lastStr string
		if err := rows.Scan(&agg.SessionID, &agg.Count, &firstStr, &lastStr); err != nil {
			return nil, fmt.Errorf("scanning aggregate: %w", err)
		}
		if agg.FirstCreatedAt, err = time.Parse(timeLayout, firstStr); err != nil {
			return nil, fmt.Errorf("parsing first created_at: %w", err)
		}
		if agg.LastCreatedAt, err = time.Parse(timeLayout, lastStr); err != nil {
			return nil, fmt.Errorf("parsing last created_at: %w", err)
		}
		aggregates = append(aggregates, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating aggregates: %w", err)
	}

	return aggregates, nil
}
