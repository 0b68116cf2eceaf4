// ABOUTME: SQLite implementation of the conversation Repository using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements the Repository interface using SQLite
type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteRepository creates a new SQLite repository at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	r := &SQLiteRepository{
		db:     db,
		logger: logger,
	}

	if err := r.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite repository initialized", "path", path)
	return r, nil
}

// createSchema creates the database tables if they don't exist
func (r *SQLiteRepository) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_created
			ON conversations(created_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			seq             INTEGER NOT NULL,
			role            TEXT NOT NULL,
			content_type    TEXT NOT NULL,
			parts_json      TEXT NOT NULL,
			metadata_json   TEXT,
			created_at      TEXT NOT NULL,

			PRIMARY KEY (conversation_id, id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq
			ON messages(conversation_id, seq);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// UpsertSummary inserts or updates the listing row for a conversation.
// Messages are untouched; a summary never removes cached detail.
func (r *SQLiteRepository) UpsertSummary(ctx context.Context, s *ConversationSummary) error {
	query := `
		INSERT INTO conversations (id, title, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title
	`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.Title,
		s.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	r.logger.Debug("upserted conversation summary", "conversation_id", s.ID)
	return nil
}

// UpsertDetail inserts or updates a conversation together with its messages.
// The stored message sequence mirrors the slice order exactly, so a Get
// returns messages in the same order they were written.
func (r *SQLiteRepository) UpsertDetail(ctx context.Context, d *ConversationDetail) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var updatedAt *string
	if d.UpdatedAt != nil {
		s := d.UpdatedAt.UTC().Format(time.RFC3339Nano)
		updatedAt = &s
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at
	`, d.ID, d.Title, d.CreatedAt.UTC().Format(time.RFC3339Nano), updatedAt)
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	for i, msg := range d.Messages {
		partsJSON, err := json.Marshal(msg.Content.Parts)
		if err != nil {
			return fmt.Errorf("marshaling message parts: %w", err)
		}

		var metadataJSON *string
		if len(msg.Metadata) > 0 {
			b, err := json.Marshal(msg.Metadata)
			if err != nil {
				return fmt.Errorf("marshaling message metadata: %w", err)
			}
			s := string(b)
			metadataJSON = &s
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, seq, role, content_type, parts_json, metadata_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(conversation_id, id) DO UPDATE SET
				seq = excluded.seq,
				parts_json = excluded.parts_json,
				metadata_json = excluded.metadata_json
		`,
			msg.ID,
			d.ID,
			i,
			string(msg.Role),
			msg.Content.Type,
			string(partsJSON),
			metadataJSON,
			msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("upserting message %s: %w", msg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	r.logger.Debug("upserted conversation detail",
		"conversation_id", d.ID,
		"messages", len(d.Messages),
	)
	return nil
}

// List returns one page of conversation summaries, newest first.
func (r *SQLiteRepository) List(ctx context.Context, offset, limit int) (*Page[ConversationSummary], error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("offset must be non-negative, got %d", offset)
	}

	total, err := r.Count(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, created_at
		FROM conversations
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	items := []ConversationSummary{}
	for rows.Next() {
		var s ConversationSummary
		var createdAt string
		if err := rows.Scan(&s.ID, &s.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}

	return &Page[ConversationSummary]{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// Get retrieves a conversation with its messages in stored sequence order.
// Returns ErrNotFound if the conversation is not cached locally.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*ConversationDetail, error) {
	d := &ConversationDetail{}
	var createdAt string
	var updatedAt *string

	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`, id).Scan(&d.ID, &d.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if updatedAt != nil {
		t, err := time.Parse(time.RFC3339Nano, *updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		d.UpdatedAt = &t
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, role, content_type, parts_json, metadata_json, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg Message
		var role, partsJSON, msgCreatedAt string
		var metadataJSON *string

		if err := rows.Scan(&msg.ID, &role, &msg.Content.Type, &partsJSON, &metadataJSON, &msgCreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.Role = Role(role)
		if err := json.Unmarshal([]byte(partsJSON), &msg.Content.Parts); err != nil {
			return nil, fmt.Errorf("unmarshaling message parts: %w", err)
		}
		if metadataJSON != nil {
			if err := json.Unmarshal([]byte(*metadataJSON), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling message metadata: %w", err)
			}
		}
		msg.CreatedAt, err = time.Parse(time.RFC3339Nano, msgCreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}

		d.Messages = append(d.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return d, nil
}

// Count returns the number of cached conversations.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&total); err != nil {
		return 0, fmt.Errorf("counting conversations: %w", err)
	}
	return total, nil
}

// Close closes the underlying database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
